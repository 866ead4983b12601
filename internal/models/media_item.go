package models

import (
	"time"

	"gorm.io/datatypes"
)

// Media types accepted by the public feed.
const (
	MediaTypeImage    = "image"
	MediaTypeVideo    = "video"
	MediaTypeCarousel = "carousel"
)

// MediaItem is one entry of the synchronised provider feed. The collection for a credential
// is replaced wholesale on every successful sync; no per-item history is retained.
type MediaItem struct {
	CredentialID string         `gorm:"primaryKey;size:36" json:"-"`
	ID           string         `gorm:"primaryKey;size:128" json:"id"`
	MediaType    string         `gorm:"size:16;not null" json:"media_type"`
	MediaURL     string         `gorm:"type:text" json:"media_url"`
	ThumbnailURL string         `gorm:"type:text" json:"thumbnail_url,omitempty"`
	Permalink    string         `gorm:"type:text" json:"permalink"`
	Caption      string         `gorm:"type:text" json:"caption"`
	Timestamp    time.Time      `gorm:"index" json:"timestamp"`
	Position     int            `gorm:"index" json:"-"`
	Generation   string         `gorm:"size:36;index" json:"-"`
	Raw          datatypes.JSON `json:"-"`
	CreatedAt    time.Time      `json:"-"`
}
