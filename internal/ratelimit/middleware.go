package ratelimit

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Middleware gates requests per (client IP, route path).
func Middleware(l *Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		if !l.Allow(c.ClientIP(), route) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
