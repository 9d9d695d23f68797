// Package httpmiddleware holds gin middleware shared by the record-keeper.
package httpmiddleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// KeyFunc selects the bucket a request is charged to.
type KeyFunc func(c *gin.Context) string

// ClientIP charges requests per client address.
func ClientIP(c *gin.Context) string {
	if ip := c.ClientIP(); ip != "" {
		return ip
	}
	return "unknown"
}

// TokenBucket is an in-memory per-key rate limiter. Buckets refill
// continuously at perMinute tokens a minute up to capacity.
type TokenBucket struct {
	capacity float64
	rate     float64
	key      KeyFunc
	now      func() time.Time

	mu    sync.Mutex
	state map[string]*bucket
}

type bucket struct {
	tokens float64
	last   time.Time
}

// NewTokenBucket creates a limiter with capacity tokens and a refill rate
// per minute. A zero capacity defaults to the rate.
func NewTokenBucket(capacity, perMinute int, key KeyFunc) *TokenBucket {
	if capacity <= 0 {
		capacity = perMinute
	}
	if key == nil {
		key = ClientIP
	}
	return &TokenBucket{
		capacity: float64(capacity),
		rate:     float64(perMinute),
		key:      key,
		now:      time.Now,
		state:    make(map[string]*bucket),
	}
}

// GinMiddleware rejects requests over the limit with 429.
func (l *TokenBucket) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(l.key(c)) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"success": false, "error": "Too many requests, slow down"})
			return
		}
		c.Next()
	}
}

// Allow takes one token from key's bucket.
func (l *TokenBucket) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	b, ok := l.state[key]
	if !ok {
		b = &bucket{tokens: l.capacity, last: now}
		l.state[key] = b
	}
	b.tokens += now.Sub(b.last).Minutes() * l.rate
	if b.tokens > l.capacity {
		b.tokens = l.capacity
	}
	b.last = now
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Sweep drops buckets idle for longer than idle, bounding memory.
func (l *TokenBucket) Sweep(idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-idle)
	n := 0
	for k, b := range l.state {
		if b.last.Before(cutoff) {
			delete(l.state, k)
			n++
		}
	}
	return n
}
