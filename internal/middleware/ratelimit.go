package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/maibvn/pal/internal/pkg/errcode"
	"github.com/maibvn/pal/internal/pkg/response"
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter gives each client IP a token bucket refilling maxRequests per window.
type rateLimiter struct {
	mu            sync.Mutex
	window        time.Duration
	maxRequests   int
	clients       map[string]*clientLimiter
	sweepInterval time.Duration
	lastSweep     time.Time
	now           func() time.Time
}

func RateLimit(window time.Duration, maxRequests int) gin.HandlerFunc {
	limiter := &rateLimiter{
		window:        window,
		maxRequests:   maxRequests,
		clients:       make(map[string]*clientLimiter),
		sweepInterval: time.Minute,
		now:           time.Now,
	}
	return limiter.handle
}

func (l *rateLimiter) handle(c *gin.Context) {
	if l.window <= 0 || l.maxRequests <= 0 {
		c.Next()
		return
	}
	ip := c.ClientIP()
	now := l.now()
	l.mu.Lock()
	if now.Sub(l.lastSweep) >= l.sweepInterval {
		l.cleanupExpiredLocked(now)
	}
	client, ok := l.clients[ip]
	if !ok {
		every := l.window / time.Duration(l.maxRequests)
		client = &clientLimiter{limiter: rate.NewLimiter(rate.Every(every), l.maxRequests)}
		l.clients[ip] = client
	}
	client.lastSeen = now
	allowed := client.limiter.AllowN(now, 1)
	l.mu.Unlock()
	if !allowed {
		logutil.GetLogger(c.Request.Context()).Warn("rate limit hit",
			zap.String("ip", ip),
			zap.String("path", c.Request.URL.Path),
		)
		response.Abort(c, errcode.ErrTooMany, "Too many requests from this IP, please try again later.")
		return
	}
	c.Next()
}

// cleanupExpiredLocked drops clients idle for a full window; their bucket would be full again anyway.
func (l *rateLimiter) cleanupExpiredLocked(now time.Time) {
	for ip, client := range l.clients {
		if now.Sub(client.lastSeen) >= l.window {
			delete(l.clients, ip)
		}
	}
	l.lastSweep = now
}
