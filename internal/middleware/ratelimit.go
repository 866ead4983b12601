package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/jsmooother/ej-development-sub001/pkg/errors"
	"github.com/jsmooother/ej-development-sub001/pkg/logger"
	"github.com/jsmooother/ej-development-sub001/pkg/metrics"
	"github.com/jsmooother/ej-development-sub001/pkg/response"
)

// RateLimit limits requests per (client IP, route) within a fixed window using store.
// Store failures let the request through.
func RateLimit(store RateStore, maxRequests int, window time.Duration) gin.HandlerFunc {
	log := logger.WithModule("ratelimit")

	return func(c *gin.Context) {
		if store == nil || maxRequests <= 0 || window <= 0 {
			c.Next()
			return
		}

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		key := "ratelimit:" + c.Request.Method + ":" + route + ":" + c.ClientIP()

		count, ttl, err := store.Increment(c.Request.Context(), key, window)
		if err != nil {
			log.Warn("rate limit store unavailable", zap.Error(err))
			c.Next()
			return
		}

		remaining := maxRequests - count
		if remaining < 0 {
			remaining = 0
		}
		resetIn := int(ttl.Seconds())
		if resetIn < 0 {
			resetIn = 0
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(maxRequests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.Itoa(resetIn))

		if count > maxRequests {
			c.Header("Retry-After", strconv.Itoa(resetIn))
			metrics.RateLimited.WithLabelValues(route).Inc()
			response.Abort(c, apperrors.ErrRateLimit)
			return
		}

		c.Next()
	}
}
