package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/modcheck/config"
	"golang.org/x/time/rate"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimit returns per-identity (API key or IP) token-bucket rate limiting
// middleware powered by golang.org/x/time/rate. Rejected requests get a
// plain-text 429 with a Retry-After hint.
//
// Entries unused for 1 hour are evicted by a background goroutine that runs
// every 5 minutes.
func RateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	if cfg.RequestsPerSecond <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	retryAfter := strconv.Itoa(int(math.Ceil(1 / cfg.RequestsPerSecond)))

	var mu sync.Mutex
	limiters := make(map[string]*limiterEntry)

	getLimiter := func(identity string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		entry, ok := limiters[identity]
		if !ok {
			entry = &limiterEntry{
				limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst),
			}
			limiters[identity] = entry
		}
		entry.lastSeen = time.Now()
		return entry.limiter
	}

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			cutoff := time.Now().Add(-1 * time.Hour)
			mu.Lock()
			for id, entry := range limiters {
				if entry.lastSeen.Before(cutoff) {
					delete(limiters, id)
				}
			}
			mu.Unlock()
		}
	}()

	return func(c *gin.Context) {
		identity := c.ClientIP()
		if key := c.GetString("api_key"); key != "" {
			identity = "key:" + key
		}

		if !getLimiter(identity).Allow() {
			c.Header("Retry-After", retryAfter)
			c.String(http.StatusTooManyRequests, "rate limit exceeded, please slow down")
			c.Abort()
			return
		}

		c.Next()
	}
}
