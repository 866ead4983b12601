package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncRuns counts media sync invocations by outcome (cache_hit|synced|shared|not_connected|refresh_failed|provider_error|error).
	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediasync_sync_total",
			Help: "Total number of media sync invocations",
		},
		[]string{"result"},
	)

	// ProviderRequests counts outbound provider calls by operation and result (success|failure).
	ProviderRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediasync_provider_requests_total",
			Help: "Total number of requests sent to the media provider",
		},
		[]string{"operation", "result"},
	)

	// ProviderLatency measures provider round-trip time per operation.
	ProviderLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediasync_provider_latency_seconds",
			Help:    "Media provider request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// CacheOperations counts cache client calls by operation (get|set|del|connect) and result (hit|miss|ok|unavailable).
	CacheOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediasync_cache_operations_total",
			Help: "Total number of cache operations",
		},
		[]string{"operation", "result"},
	)

	// MediaItems tracks the size of the last persisted media collection.
	MediaItems = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mediasync_media_items",
			Help: "Number of media items in the last successful sync",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediasync_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// APIInFlight is the number of requests currently being served.
	APIInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mediasync_api_in_flight_requests",
			Help: "Requests currently being served",
		},
	)

	// RateLimited counts requests rejected by the rate limiter per route.
	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediasync_rate_limited_total",
			Help: "Requests rejected with 429",
		},
		[]string{"route"},
	)
)
