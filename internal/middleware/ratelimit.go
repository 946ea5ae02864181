package middleware

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/itorigin/site/internal/pkg/response"
)

const rateLimitPrefix = "ito:rate_limit:"

// WindowCounter increments a fixed-window counter and returns the new value.
type WindowCounter interface {
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RateLimitOptions configures one limiter. Scope separates counters of
// different endpoints sharing a client IP.
type RateLimitOptions struct {
	Scope  string
	Max    int64
	Window time.Duration
}

// RateLimit enforces a per-IP fixed-window limit on anonymous callers.
// Counter failures let the request through.
func RateLimit(counter WindowCounter, opts RateLimitOptions) gin.HandlerFunc {
	if opts.Window <= 0 {
		opts.Window = time.Minute
	}
	return func(c *gin.Context) {
		if counter == nil || opts.Max <= 0 || IsAuthenticated(c) {
			c.Next()
			return
		}

		ip := c.ClientIP()
		if ip == "" {
			c.Next()
			return
		}

		window := time.Now().UnixNano() / int64(opts.Window)
		key := rateLimitPrefix + opts.Scope + ":" + ip + ":" + strconv.FormatInt(window, 10)
		count, err := counter.IncrWindow(c.Request.Context(), key, opts.Window+time.Second)
		if err != nil {
			c.Next()
			return
		}

		if count > opts.Max {
			c.Header("Retry-After", strconv.Itoa(int(opts.Window/time.Second)))
			response.TooManyRequests(c)
			return
		}
		c.Next()
	}
}
