package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jsmooother/ej-development-sub001/internal/monitoring"
)

// HealthHandler exposes liveness and readiness reports.
type HealthHandler struct {
	manager *monitoring.HealthManager
}

// NewHealthHandler constructs a HealthHandler.
func NewHealthHandler(manager *monitoring.HealthManager) *HealthHandler {
	if manager == nil {
		manager = monitoring.NewHealthManager(0)
	}
	return &HealthHandler{manager: manager}
}

// Overall reports liveness and readiness together. Degraded dependencies still answer 200.
func (h *HealthHandler) Overall(c *gin.Context) {
	ctx := requestContext(c)
	report := monitoring.MergeReports(h.manager.EvaluateLiveness(ctx), h.manager.EvaluateReadiness(ctx))
	writeReport(c, report)
}

// Liveness reports whether the process is able to serve requests at all.
func (h *HealthHandler) Liveness(c *gin.Context) {
	writeReport(c, h.manager.EvaluateLiveness(requestContext(c)))
}

// Readiness reports whether dependencies are reachable.
func (h *HealthHandler) Readiness(c *gin.Context) {
	writeReport(c, h.manager.EvaluateReadiness(requestContext(c)))
}

func writeReport(c *gin.Context, report monitoring.HealthReport) {
	status := http.StatusOK
	if !report.Serving() {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}
