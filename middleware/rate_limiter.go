// middleware/rate_limiter.go
package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// RateLimiter throttles inbound HTTP requests per client IP. This is
// the ambient API-level limiter; the payment queue carries its own
// token bucket inside the broker consume loop.
type RateLimiter struct {
	ips            map[string]*rate.Limiter
	mu             *sync.RWMutex
	defaultLimit   rate.Limit
	defaultBurst   int
	endpointLimits map[string]struct {
		limit rate.Limit
		burst int
	}
}

func NewRateLimiter() *RateLimiter {
	limiter := &RateLimiter{
		ips:          make(map[string]*rate.Limiter),
		mu:           &sync.RWMutex{},
		defaultLimit: rate.Every(100 * time.Millisecond), // 10 requests per second
		defaultBurst: 20,
		endpointLimits: make(map[string]struct {
			limit rate.Limit
			burst int
		}),
	}

	// Commission creation is the spammy endpoint; keep it slower
	limiter.endpointLimits["/api/commissions"] = struct {
		limit rate.Limit
		burst int
	}{
		limit: rate.Every(500 * time.Millisecond), // 2 requests per second
		burst: 5,
	}

	go limiter.cleanupStale()

	return limiter
}

func (rl *RateLimiter) limiterFor(ip, path string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	key := ip + path
	if limiter, ok := rl.ips[key]; ok {
		return limiter
	}

	limit, burst := rl.defaultLimit, rl.defaultBurst
	if endpoint, ok := rl.endpointLimits[path]; ok {
		limit, burst = endpoint.limit, endpoint.burst
	}

	limiter := rate.NewLimiter(limit, burst)
	rl.ips[key] = limiter
	return limiter
}

// RateLimit returns the Echo middleware enforcing the per-IP limits.
func (rl *RateLimiter) RateLimit() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			limiter := rl.limiterFor(c.RealIP(), c.Path())
			if !limiter.Allow() {
				return c.JSON(http.StatusTooManyRequests, map[string]string{
					"message": "Too many requests, slow down",
				})
			}
			return next(c)
		}
	}
}

// cleanupStale drops idle limiters so the map does not grow without
// bound.
func (rl *RateLimiter) cleanupStale() {
	for {
		time.Sleep(10 * time.Minute)
		rl.mu.Lock()
		for key, limiter := range rl.ips {
			if limiter.Tokens() >= float64(rl.defaultBurst) {
				delete(rl.ips, key)
			}
		}
		rl.mu.Unlock()
	}
}
