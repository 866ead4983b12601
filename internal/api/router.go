package api

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/jsmooother/ej-development-sub001/internal/app"
	"github.com/jsmooother/ej-development-sub001/internal/middleware"
	"github.com/jsmooother/ej-development-sub001/internal/monitoring"
	"github.com/jsmooother/ej-development-sub001/internal/services"
)

const feedMaxAge = 60

// Dependencies are the long lived services the router exposes over HTTP.
type Dependencies struct {
	Sync       *services.SyncService
	Connection *services.ConnectionService
	Health     *monitoring.HealthManager
	// RateStore backs request throttling; nil disables it.
	RateStore middleware.RateStore
}

// NewRouter builds the Gin engine, wires middleware and registers the media routes.
func NewRouter(deps Dependencies, cfg *app.Config) (*gin.Engine, error) {
	if deps.Sync == nil {
		return nil, fmt.Errorf("sync service must be provided")
	}
	if deps.Connection == nil {
		return nil, fmt.Errorf("connection service must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}

	r := gin.New()

	// Logger runs first so Recovery can tag panics with the request id.
	r.Use(middleware.Logger(), middleware.Recovery(), middleware.Metrics(), middleware.SecurityHeaders())

	registerObservabilityRoutes(r, cfg, deps.Health)
	if err := registerMediaRoutes(r, cfg, deps); err != nil {
		return nil, err
	}
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
