package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"groupings-hub/internal/api/response"
)

// RateLimiter is a sliding-window limiter keyed by an arbitrary string,
// typically the client IP.
type RateLimiter struct {
	mu        sync.Mutex
	limit     int
	window    time.Duration
	now       func() time.Time
	hits      map[string][]time.Time
	lastPrune time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		limit:  limit,
		window: window,
		now:    time.Now,
		hits:   make(map[string][]time.Time),
	}
}

// Allow records a hit for key and reports whether it is within the limit.
func (l *RateLimiter) Allow(key string) bool {
	if key == "" {
		key = "global"
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)
	if now.Sub(l.lastPrune) > l.window {
		l.pruneLocked(cutoff)
		l.lastPrune = now
	}

	recent := l.hits[key][:0]
	for _, ts := range l.hits[key] {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}
	if len(recent) >= l.limit {
		l.hits[key] = recent
		return false
	}
	l.hits[key] = append(recent, now)
	return true
}

func (l *RateLimiter) pruneLocked(cutoff time.Time) {
	for key, stamps := range l.hits {
		if len(stamps) == 0 || !stamps[len(stamps)-1].After(cutoff) {
			delete(l.hits, key)
		}
	}
}

// RateLimitByIP rejects clients over the limit. reject writes the response;
// when nil the standard envelope with 429 is used.
func RateLimitByIP(limiter *RateLimiter, reject gin.HandlerFunc) gin.HandlerFunc {
	if reject == nil {
		reject = func(c *gin.Context) {
			response.Fail(c, 429, response.ErrRateLimited, "too many requests")
		}
	}

	return func(c *gin.Context) {
		if limiter == nil || limiter.Allow("ip:"+c.ClientIP()) {
			c.Next()
			return
		}
		reject(c)
		c.Abort()
	}
}
