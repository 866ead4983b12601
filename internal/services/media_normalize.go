package services

import (
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/jsmooother/ej-development-sub001/internal/models"
	"github.com/jsmooother/ej-development-sub001/internal/provider"
)

// providerTimeLayout is the timestamp format of the Graph API.
const providerTimeLayout = "2006-01-02T15:04:05-0700"

// MediaView is the public representation of a media item, used in API responses
// and in the cached feed payload.
type MediaView struct {
	ID           string    `json:"id"`
	MediaType    string    `json:"media_type"`
	MediaURL     string    `json:"media_url"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	Permalink    string    `json:"permalink"`
	Caption      string    `json:"caption"`
	Timestamp    time.Time `json:"timestamp"`
}

func mapMediaType(raw string) (string, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "IMAGE":
		return models.MediaTypeImage, true
	case "VIDEO", "REELS":
		return models.MediaTypeVideo, true
	case "CAROUSEL_ALBUM":
		return models.MediaTypeCarousel, true
	default:
		return "", false
	}
}

func parseProviderTime(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{providerTimeLayout, time.RFC3339} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC()
		}
	}
	return time.Time{}
}

// normalizeMedia maps provider items into storable rows in feed order. Items with an
// unknown type, no id, or a duplicate id are dropped and counted in skipped.
func normalizeMedia(credentialID, generation string, raw []provider.RawMediaItem) (items []models.MediaItem, skipped int) {
	items = make([]models.MediaItem, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))

	for _, r := range raw {
		id := strings.TrimSpace(r.ID.String())
		mediaType, ok := mapMediaType(r.MediaType)
		if !ok || id == "" {
			skipped++
			continue
		}
		if _, dup := seen[id]; dup {
			skipped++
			continue
		}
		seen[id] = struct{}{}

		caption := ""
		if r.Caption != nil {
			caption = *r.Caption
		}
		thumbnail := r.ThumbnailURL
		if thumbnail == "" {
			thumbnail = r.MediaURL
		}

		items = append(items, models.MediaItem{
			CredentialID: credentialID,
			ID:           id,
			MediaType:    mediaType,
			MediaURL:     r.MediaURL,
			ThumbnailURL: thumbnail,
			Permalink:    r.Permalink,
			Caption:      caption,
			Timestamp:    parseProviderTime(r.Timestamp),
			Position:     len(items),
			Generation:   generation,
			Raw:          datatypes.JSON(r.Raw),
		})
	}
	return items, skipped
}

func toViews(items []models.MediaItem) []MediaView {
	views := make([]MediaView, len(items))
	for i, item := range items {
		views[i] = MediaView{
			ID:           item.ID,
			MediaType:    item.MediaType,
			MediaURL:     item.MediaURL,
			ThumbnailURL: item.ThumbnailURL,
			Permalink:    item.Permalink,
			Caption:      item.Caption,
			Timestamp:    item.Timestamp,
		}
	}
	return views
}
