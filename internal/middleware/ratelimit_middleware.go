package middleware

import (
	"net/http"
	"sync"
	"time"

	"hola-chat/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitMiddleware throttles requests per client IP with a token bucket
// of the given rate and burst. Idle buckets are evicted after ttl.
func RateLimitMiddleware(every time.Duration, burst int, ttl time.Duration) gin.HandlerFunc {
	type entry struct {
		limiter *rate.Limiter
		seen    time.Time
	}
	var (
		mu      sync.Mutex
		clients = make(map[string]*entry)
		swept   = time.Now()
	)

	return func(c *gin.Context) {
		ip := c.ClientIP()
		now := time.Now()

		mu.Lock()
		if now.Sub(swept) > ttl {
			for k, e := range clients {
				if now.Sub(e.seen) > ttl {
					delete(clients, k)
				}
			}
			swept = now
		}
		e, ok := clients[ip]
		if !ok {
			e = &entry{limiter: rate.NewLimiter(rate.Every(every), burst)}
			clients[ip] = e
		}
		e.seen = now
		allowed := e.limiter.Allow()
		mu.Unlock()

		if !allowed {
			c.JSON(http.StatusTooManyRequests, httpdto.NewErrorResponse("rate limit exceeded", "RATE_LIMITED"))
			c.Abort()
			return
		}
		c.Next()
	}
}
