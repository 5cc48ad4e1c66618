package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/modcheck/cache"
	"github.com/use-agent/modcheck/models"
)

// Health returns a handler for GET /health.
func Health() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	}
}

// EntrySource exposes the current cache entry and its age.
type EntrySource interface {
	Entry() *cache.Entry
	Age() time.Duration
}

// Status returns a handler for GET /status with the metadata of the last
// refresh attempt.
func Status(src EntrySource, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		e := src.Entry()

		resp := models.StatusResponse{
			Value:         e.Value,
			Outcome:       e.Outcome.String(),
			Reason:        e.Reason,
			Strategy:      e.Strategy,
			Engine:        e.Engine,
			Drift:         e.Drift,
			DriftDetected: e.DriftDetected,
			Uptime:        time.Since(startTime).Round(time.Second).String(),
		}
		if !e.UpdatedAt.IsZero() {
			resp.UpdatedAt = e.UpdatedAt.UTC().Format(time.RFC3339)
			resp.Age = src.Age().Round(time.Second).String()
		}
		c.JSON(http.StatusOK, resp)
	}
}
