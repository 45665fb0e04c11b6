package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mescon/tickr/internal/clock"
)

// RateLimiter implements a token bucket rate limiter per IP address
type RateLimiter struct {
	mu       sync.Mutex
	clients  map[string]*clientBucket
	rate     float64 // tokens per second
	burst    int     // max tokens (bucket size)
	clock    clock.Clock
	stop     chan struct{}
	stopOnce sync.Once
}

type clientBucket struct {
	tokens    float64
	lastCheck time.Time
}

// NewRateLimiter creates a rate limiter refilling rate tokens per second up to burst.
func NewRateLimiter(rate float64, burst int) *RateLimiter {
	if rate <= 0 {
		rate = 1
	}
	if burst < 1 {
		burst = 1
	}
	rl := &RateLimiter{
		clients: make(map[string]*clientBucket),
		rate:    rate,
		burst:   burst,
		clock:   clock.NewRealClock(),
		stop:    make(chan struct{}),
	}

	go rl.cleanup()

	return rl
}

// Allow checks if a request from the given IP should be allowed
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()

	bucket, exists := rl.clients[ip]
	if !exists {
		// New client starts with full bucket
		rl.clients[ip] = &clientBucket{
			tokens:    float64(rl.burst - 1),
			lastCheck: now,
		}
		return true
	}

	bucket.tokens += now.Sub(bucket.lastCheck).Seconds() * rl.rate
	if bucket.tokens > float64(rl.burst) {
		bucket.tokens = float64(rl.burst)
	}
	bucket.lastCheck = now

	if bucket.tokens >= 1 {
		bucket.tokens--
		return true
	}

	return false
}

// Stop ends the cleanup goroutine. Safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// cleanup removes stale entries older than 10 minutes
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.prune(10 * time.Minute)
		}
	}
}

func (rl *RateLimiter) prune(maxIdle time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	threshold := rl.clock.Now().Add(-maxIdle)
	for ip, bucket := range rl.clients {
		if bucket.lastCheck.Before(threshold) {
			delete(rl.clients, ip)
		}
	}
}

// Middleware returns a Gin middleware that rate limits requests
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Too many requests",
				"retry_after": 1 / rl.rate,
			})
			return
		}

		c.Next()
	}
}
