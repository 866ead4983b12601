package models

import (
	"time"
)

// ProviderCredential records the single external media account connected to this deployment.
// Disconnecting flips IsConnected; rows are never removed so the username and last sync survive reconnects.
type ProviderCredential struct {
	BaseModel
	Provider       string     `gorm:"uniqueIndex;size:64;not null" json:"provider"`
	ProviderUserID string     `gorm:"size:128" json:"provider_user_id"`
	Username       string     `gorm:"size:255" json:"username"`
	AccessToken    string     `gorm:"type:text" json:"-"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`
	IsConnected    bool       `gorm:"not null;default:false" json:"is_connected"`
	LastSync       *time.Time `json:"last_sync,omitempty"`
	LastError      string     `gorm:"type:text" json:"last_error,omitempty"`

	Media []MediaItem `gorm:"foreignKey:CredentialID;constraint:OnDelete:CASCADE" json:"-"`
}

// TokenExpired reports whether the stored token is at or past its expiry instant.
// A missing expiry is treated as expired.
func (c *ProviderCredential) TokenExpired(now time.Time) bool {
	if c == nil || c.TokenExpiresAt == nil {
		return true
	}
	return !now.Before(*c.TokenExpiresAt)
}

// Usable reports whether the credential may be used for provider calls. An
// expired token is still usable for a refresh.
func (c *ProviderCredential) Usable() bool {
	return c != nil && c.IsConnected && c.AccessToken != ""
}
