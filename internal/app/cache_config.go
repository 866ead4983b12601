package app

import (
	"strings"

	"github.com/jsmooother/ej-development-sub001/internal/cache"
)

// RedisClientConfig converts the application cache configuration into the cache package representation.
func (c CacheConfig) RedisClientConfig() cache.RedisConfig {
	return cache.RedisConfig{
		Address:   strings.TrimSpace(c.Redis.Address),
		Username:  strings.TrimSpace(c.Redis.Username),
		Password:  c.Redis.Password,
		DB:        c.Redis.DB,
		TLS:       c.Redis.TLS,
		Timeout:   c.Redis.Timeout,
		KeyPrefix: strings.TrimSpace(c.Redis.KeyPrefix),
	}
}

// ClientOptions returns the cache client tuning derived from configuration.
func (c CacheConfig) ClientOptions() []cache.Option {
	return []cache.Option{
		cache.WithBackendName(c.BackendName()),
		cache.WithOperationTimeout(c.OperationTimeout),
		cache.WithRetryInterval(c.RetryInterval),
	}
}

// BackendName normalises the configured backend, defaulting to the database store.
func (c CacheConfig) BackendName() string {
	backend := strings.ToLower(strings.TrimSpace(c.Backend))
	if backend == "" {
		return "database"
	}
	return backend
}
