package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jsmooother/ej-development-sub001/internal/middleware"
	"github.com/jsmooother/ej-development-sub001/pkg/logger"
)

// requestContext returns the request's context, or Background for handlers invoked
// without one.
func requestContext(c *gin.Context) context.Context {
	if c == nil || c.Request == nil {
		return context.Background()
	}
	return c.Request.Context()
}

// requestLogger tags the media module logger with the request id assigned by the
// access log middleware.
func requestLogger(c *gin.Context) *zap.Logger {
	log := logger.WithModule("media")
	if c == nil {
		return log
	}
	if id := middleware.RequestID(c); id != "" {
		log = log.With(zap.String("request_id", id))
	}
	return log
}
