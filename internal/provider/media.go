package provider

import (
	"context"
	"net/url"
	"strconv"

	"go.uber.org/zap"
)

const mediaFields = "id,caption,media_type,media_url,thumbnail_url,permalink,timestamp"

// ListMedia fetches a single page of the account's media, newest first. Only one
// page is requested; MediaPage.NextCursor signals that more items exist.
func (c *Client) ListMedia(ctx context.Context, accessToken string, limit int) (*MediaPage, error) {
	query := url.Values{}
	query.Set("fields", mediaFields)
	query.Set("limit", strconv.Itoa(ClampLimit(limit)))
	query.Set("access_token", accessToken)

	var body struct {
		Data   []RawMediaItem `json:"data"`
		Paging struct {
			Cursors struct {
				After string `json:"after"`
			} `json:"cursors"`
			Next string `json:"next"`
		} `json:"paging"`
	}
	if err := c.getJSON(ctx, OpListMedia, "/me/media", query, &body); err != nil {
		return nil, err
	}

	page := &MediaPage{Items: body.Data}
	if body.Paging.Next != "" {
		page.NextCursor = body.Paging.Cursors.After
		if page.NextCursor == "" {
			page.NextCursor = body.Paging.Next
		}
	}

	c.log.Debug("media listed", zap.Int("count", len(page.Items)), zap.Bool("has_more", page.HasMore()))
	return page, nil
}
