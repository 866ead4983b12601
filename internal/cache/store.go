package cache

import (
	"context"
	"time"
)

// Store is a key/value backend with TTL support. Implementations return errors
// freely; Client is responsible for absorbing them.
type Store interface {
	Ping(ctx context.Context) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	Close() error
}

// Logical cache keys shared by the sync pipeline.
const (
	KeyMediaFeed  = "media:feed"
	KeyTokenState = "media:token"
)

// Default TTLs applied when configuration leaves them unset.
const (
	DefaultMediaTTL = time.Hour
	DefaultTokenTTL = 2 * time.Hour
)
