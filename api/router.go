package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/modcheck/api/handler"
	"github.com/use-agent/modcheck/api/middleware"
	"github.com/use-agent/modcheck/cache"
	"github.com/use-agent/modcheck/config"
)

// Service is what the routes need from the refresh coordinator.
type Service interface {
	Read() string
	Entry() *cache.Entry
	Age() time.Duration
	ForceRefresh(ctx context.Context) string
}

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:        Recovery → Logger
//	/force-update: Auth (if keys configured) → RateLimit
//
// Reads and health are never limited so monitoring probes always work.
func NewRouter(svc Service, cfg *config.Config, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	r.GET("/", handler.Mods(svc))
	r.GET("/health", handler.Health())
	r.GET("/status", handler.Status(svc, startTime))

	force := r.Group("/force-update")
	if len(cfg.Auth.APIKeys) > 0 {
		force.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	force.Use(middleware.RateLimit(cfg.RateLimit))
	force.GET("", handler.ForceUpdate(svc))

	return r
}
