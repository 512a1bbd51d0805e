package middleware

import "github.com/gin-gonic/gin"

const (
	// DefaultContentSecurityPolicy restricts resources to same origin. Websockets to the
	// same host are covered by 'self' in current browsers.
	DefaultContentSecurityPolicy = "default-src 'self'; img-src 'self' data:; style-src 'self' 'unsafe-inline'; connect-src 'self'"
)

// SecurityHeaders applies common hardening headers. API responses are additionally marked
// non-cacheable because connection payloads carry passwords.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Content-Security-Policy", DefaultContentSecurityPolicy)
		c.Header("Referrer-Policy", "no-referrer")
		c.Header("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
		if IsAPIRequest(c.Request) {
			c.Header("Cache-Control", "no-store")
		}
		c.Next()
	}
}
