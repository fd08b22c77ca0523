package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

var startTime = time.Now()

const version = "1.0.0"

// Pinger reports whether a backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheck returns server health status
func HealthCheck(deps ...Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status, code := "ok", http.StatusOK
		for _, d := range deps {
			if err := d.Ping(ctx); err != nil {
				status, code = "degraded", http.StatusServiceUnavailable
				break
			}
		}

		c.JSON(code, gin.H{
			"status":  status,
			"service": "experiment-api",
			"version": version,
			"uptime":  time.Since(startTime).String(),
		})
	}
}
