package checks

import (
	"context"
	"time"

	"github.com/jsmooother/ej-development-sub001/internal/monitoring"
)

// CachePinger is the part of the cache client the probe needs.
type CachePinger interface {
	Backend() string
	Ping(ctx context.Context) error
}

// Cache returns a readiness probe for the cache backend. The service keeps serving
// from the database and provider without a cache, so failures report degraded.
func Cache(client CachePinger) monitoring.Check {
	return monitoring.NewCheck("cache", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if client == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusDegraded, Details: "cache disabled"}
		}
		if err := client.Ping(ctx); err != nil {
			return monitoring.ProbeResult{
				Status:   monitoring.StatusDegraded,
				Details:  client.Backend() + ": " + err.Error(),
				Duration: time.Since(start),
			}
		}
		return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: client.Backend(), Duration: time.Since(start)}
	})
}
