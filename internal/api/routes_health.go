package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jsmooother/ej-development-sub001/internal/app"
	"github.com/jsmooother/ej-development-sub001/internal/handlers"
	"github.com/jsmooother/ej-development-sub001/internal/monitoring"
)

const defaultMetricsEndpoint = "/metrics"

// registerObservabilityRoutes mounts the probes and the Prometheus scrape endpoint.
// Disabled endpoints are simply absent and fall through to the JSON 404.
func registerObservabilityRoutes(r *gin.Engine, cfg *app.Config, manager *monitoring.HealthManager) {
	if cfg.Monitoring.Health.Enabled && manager != nil {
		h := handlers.NewHealthHandler(manager)
		probes := map[string]gin.HandlerFunc{
			"/health":       h.Overall,
			"/health/live":  h.Liveness,
			"/health/ready": h.Readiness,
		}
		for path, handler := range probes {
			r.GET(path, handler)
			r.HEAD(path, handler)
		}
	}

	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = defaultMetricsEndpoint
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}
}
