package cache

import (
	"encoding/json"
	"time"
)

// Envelope wraps a cached payload with its write time so readers can enforce TTLs
// independently of the backend's own expiry.
type Envelope struct {
	FetchedAt time.Time       `json:"fetched_at"`
	Payload   json.RawMessage `json:"payload"`
}

// NewEnvelope encodes v as the payload of a new envelope.
func NewEnvelope(v any, fetchedAt time.Time) (Envelope, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{FetchedAt: fetchedAt.UTC(), Payload: raw}, nil
}

// Decode unmarshals the payload into dst.
func (e Envelope) Decode(dst any) error {
	return json.Unmarshal(e.Payload, dst)
}

// Fresh reports whether the envelope is younger than ttl at now.
func (e Envelope) Fresh(now time.Time, ttl time.Duration) bool {
	if e.FetchedAt.IsZero() || len(e.Payload) == 0 {
		return false
	}
	return now.Sub(e.FetchedAt) < ttl
}
