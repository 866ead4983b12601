package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jsmooother/ej-development-sub001/pkg/logger"
	"github.com/jsmooother/ej-development-sub001/pkg/metrics"
)

// ErrUnavailable reports that no cache backend could be reached. Only Connect and
// Ping return it; data operations degrade to misses instead.
var ErrUnavailable = errors.New("cache: backend unavailable")

const (
	defaultOpTimeout     = 2 * time.Second
	defaultRetryInterval = 10 * time.Second
)

// Client is the fail-open cache used by the sync pipeline. Every read, write and
// delete absorbs backend failures: reads become misses and writes report false.
type Client struct {
	store   Store
	backend string
	log     *zap.Logger
	timeout time.Duration
	retry   time.Duration
	now     func() time.Time

	mu        sync.Mutex
	connected bool
	stopped   bool
	nextDial  time.Time
}

// Option customises a Client.
type Option func(*Client)

// WithBackendName labels the backend in logs and health output.
func WithBackendName(name string) Option {
	return func(c *Client) { c.backend = name }
}

// WithLogger overrides the module logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithOperationTimeout bounds each backend round-trip.
func WithOperationTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRetryInterval sets how long the client waits after a failure before dialling again.
func WithRetryInterval(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.retry = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// NewClient wraps store. A nil store yields a client that always misses.
func NewClient(store Store, opts ...Option) *Client {
	c := &Client{
		store:   store,
		backend: "none",
		log:     logger.WithModule("cache"),
		timeout: defaultOpTimeout,
		retry:   defaultRetryInterval,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Backend returns the configured backend label.
func (c *Client) Backend() string {
	if c == nil {
		return "none"
	}
	return c.backend
}

// Store exposes the underlying backend, which may be nil.
func (c *Client) Store() Store {
	if c == nil {
		return nil
	}
	return c.store
}

// Connected reports whether the last backend interaction succeeded.
func (c *Client) Connected() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Connect establishes the backend connection. Calling it while connected is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	if c == nil || c.store == nil {
		return ErrUnavailable
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopped = false
	if c.connected {
		return nil
	}
	return c.dialLocked(ctx)
}

// Disconnect releases the backend connection. Later operations miss until Connect is called again.
func (c *Client) Disconnect() error {
	if c == nil || c.store == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopped = true
	c.connected = false
	return c.store.Close()
}

// Ping checks the backend without changing the connection state.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.store == nil {
		return ErrUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.store.Ping(ctx); err != nil {
		return errors.Join(ErrUnavailable, err)
	}
	return nil
}

// Get returns the cached value, or nil on a miss or when the backend is unavailable.
func (c *Client) Get(ctx context.Context, key string) []byte {
	if !c.ready(ctx) {
		observe("get", "unavailable")
		return nil
	}

	opCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	value, ok, err := c.store.Get(opCtx, key)
	if err != nil {
		c.markDown("get", key, err)
		return nil
	}
	if !ok {
		observe("get", "miss")
		return nil
	}
	observe("get", "hit")
	return value
}

// GetJSON decodes the cached value into dst and reports whether it was a usable hit.
func (c *Client) GetJSON(ctx context.Context, key string, dst any) bool {
	raw := c.Get(ctx, key)
	if raw == nil {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		c.log.Warn("discarding undecodable cache entry", zap.String("key", key), zap.Error(err))
		c.Del(ctx, key)
		return false
	}
	return true
}

// Set stores value under key with ttl and reports whether the write reached the backend.
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool {
	if !c.ready(ctx) {
		observe("set", "unavailable")
		return false
	}

	opCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.store.Set(opCtx, key, value, ttl); err != nil {
		c.markDown("set", key, err)
		return false
	}
	observe("set", "ok")
	return true
}

// SetJSON encodes v and stores it. Encoding failures report false.
func (c *Client) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) bool {
	raw, err := json.Marshal(v)
	if err != nil {
		c.log.Warn("cache value not encodable", zap.String("key", key), zap.Error(err))
		return false
	}
	return c.Set(ctx, key, raw, ttl)
}

// Del removes keys and reports whether the backend accepted the delete.
func (c *Client) Del(ctx context.Context, keys ...string) bool {
	if !c.ready(ctx) {
		observe("del", "unavailable")
		return false
	}

	opCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.store.Delete(opCtx, keys...); err != nil {
		c.markDown("del", "", err)
		return false
	}
	observe("del", "ok")
	return true
}

func (c *Client) ready(ctx context.Context) bool {
	if c == nil || c.store == nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return true
	}
	if c.stopped || c.now().Before(c.nextDial) {
		return false
	}
	return c.dialLocked(ctx) == nil
}

func (c *Client) dialLocked(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.store.Ping(pingCtx); err != nil {
		c.connected = false
		c.nextDial = c.now().Add(c.retry)
		observe("connect", "unavailable")
		c.log.Warn("cache backend unavailable", zap.String("backend", c.backend), zap.Error(err))
		return errors.Join(ErrUnavailable, err)
	}

	c.connected = true
	observe("connect", "ok")
	c.log.Debug("cache backend connected", zap.String("backend", c.backend))
	return nil
}

func (c *Client) markDown(op, key string, err error) {
	observe(op, "unavailable")
	c.log.Warn("cache operation failed",
		zap.String("backend", c.backend),
		zap.String("operation", op),
		zap.String("key", key),
		zap.Error(err),
	)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.connected = false
	c.nextDial = c.now().Add(c.retry)
	_ = c.store.Close()
}

func observe(op, result string) {
	metrics.CacheOperations.WithLabelValues(op, result).Inc()
}
