package provider

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// Refresh renews a long-lived token. The provider only accepts tokens that have
// not yet expired.
func (c *Client) Refresh(ctx context.Context, accessToken string) (*LongLivedToken, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, errors.New("provider refresh: access token is required")
	}

	query := url.Values{}
	query.Set("grant_type", "ig_refresh_token")
	query.Set("access_token", accessToken)

	var token LongLivedToken
	if err := c.getJSON(ctx, OpRefresh, "/refresh_access_token", query, &token); err != nil {
		return nil, err
	}
	if err := validateToken(OpRefresh, &token); err != nil {
		return nil, err
	}

	c.log.Info("access token refreshed", zap.Int64("expires_in", token.ExpiresIn))
	return &token, nil
}
