package provider

import (
	"bytes"
	"encoding/json"
	"time"
)

// ShortLivedToken is the result of the authorization code exchange.
type ShortLivedToken struct {
	AccessToken string
	Expiry      time.Time
}

// LongLivedToken is returned by the long-lived exchange and by refresh.
type LongLivedToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// ExpiresAt converts the relative lifetime into an absolute instant.
func (t LongLivedToken) ExpiresAt(now time.Time) time.Time {
	return now.Add(time.Duration(t.ExpiresIn) * time.Second)
}

// Profile identifies the connected account.
type Profile struct {
	UserID   string
	Username string
}

// RawMediaItem mirrors the provider's media object.
type RawMediaItem struct {
	ID           FlexibleID `json:"id"`
	Caption      *string    `json:"caption,omitempty"`
	MediaType    string     `json:"media_type"`
	MediaURL     string     `json:"media_url"`
	ThumbnailURL string     `json:"thumbnail_url,omitempty"`
	Permalink    string     `json:"permalink"`
	Timestamp    string     `json:"timestamp"`

	// Raw is the undecoded object as received.
	Raw json.RawMessage `json:"-"`
}

// UnmarshalJSON keeps a copy of the original object alongside the decoded fields.
func (r *RawMediaItem) UnmarshalJSON(data []byte) error {
	type plain RawMediaItem
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*r = RawMediaItem(decoded)
	r.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// MediaPage is a single page of the media listing.
type MediaPage struct {
	Items      []RawMediaItem
	NextCursor string
}

// HasMore reports whether the provider signalled further pages.
func (p *MediaPage) HasMore() bool {
	return p != nil && p.NextCursor != ""
}

// FlexibleID accepts identifiers encoded either as JSON strings or numbers without
// losing precision on large numeric ids.
type FlexibleID string

func (f *FlexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexibleID(n.String())
	return nil
}

func (f FlexibleID) String() string { return string(f) }
