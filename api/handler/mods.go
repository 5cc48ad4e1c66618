package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Reader serves the cached display string.
type Reader interface {
	Read() string
}

// Refresher runs a refresh on demand.
type Refresher interface {
	ForceRefresh(ctx context.Context) string
}

// Mods returns a handler for GET /.
//
// Always 200: a scraping failure is reported in the body, never as a 5xx.
func Mods(r Reader) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.String(http.StatusOK, r.Read())
	}
}

// ForceUpdate returns a handler for GET /force-update. It blocks until the
// refresh finishes and serves its result.
func ForceUpdate(r Refresher) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.String(http.StatusOK, r.ForceRefresh(c.Request.Context()))
	}
}
