package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	// DefaultContentSecurityPolicy forbids every resource; the API only serves JSON and redirects.
	DefaultContentSecurityPolicy = "default-src 'none'; frame-ancestors 'none'"
)

// SecurityHeaders applies common HTTP response headers that harden the API against
// clickjacking and MIME sniffing, and asks browsers to stay on HTTPS.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		c.Header("Content-Security-Policy", DefaultContentSecurityPolicy)
		c.Header("Referrer-Policy", "no-referrer")
		c.Next()
	}
}

// NoStore marks responses as uncacheable. Used on the integration endpoints whose
// payloads describe credential state.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}

// PublicCache lets browsers and CDNs keep the public feed for maxAge seconds.
func PublicCache(maxAge int) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxAge > 0 {
			c.Header("Cache-Control", "public, max-age="+strconv.Itoa(maxAge))
		}
		c.Next()
	}
}
