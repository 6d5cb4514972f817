package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"imagebank/internal/ratelimit"
)

type rateLimitUpdate struct {
	Route         string `json:"route"`
	RequestsLimit int    `json:"requests_limit"`
	TimeWindow    int    `json:"time_window"` // seconds
}

// handleSetRateLimit overrides the limit of one route at runtime.
func (s *Server) handleSetRateLimit(c *gin.Context) {
	var cfg rateLimitUpdate
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if cfg.Route == "" || cfg.RequestsLimit < 1 || cfg.TimeWindow < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "route, requests_limit and time_window are required"})
		return
	}

	s.limiter.SetRouteLimit(cfg.Route, ratelimit.Limit{
		Requests: cfg.RequestsLimit,
		Window:   time.Duration(cfg.TimeWindow) * time.Second,
	})
	c.JSON(http.StatusOK, gin.H{"message": "rate limit updated", "config": s.limiter.RouteLimits()})
}

func (s *Server) handleGetRateLimit(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"default": s.limiter.Fallback(),
		"routes":  s.limiter.RouteLimits(),
	})
}
