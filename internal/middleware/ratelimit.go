package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitConfig holds configuration for rate limiting
type RateLimitConfig struct {
	// Requests per window
	Limit int
	// Window duration
	Window time.Duration
	// KeyFunc picks the bucket for a request; defaults to the client IP
	KeyFunc func(c *gin.Context) string
}

// DefaultRateLimitConfig returns sensible defaults
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Limit:   100,
		Window:  time.Minute,
		KeyFunc: clientIPKey,
	}
}

// AuthRateLimitConfig returns stricter limits for auth endpoints
func AuthRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Limit:   10,
		Window:  time.Minute,
		KeyFunc: clientIPKey,
	}
}

// MessageRateLimitConfig limits the REST send-message endpoint per user
func MessageRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Limit:  60,
		Window: time.Minute,
		KeyFunc: func(c *gin.Context) string {
			if userID := c.GetString("user_id"); userID != "" {
				return userID
			}
			return c.ClientIP()
		},
	}
}

func clientIPKey(c *gin.Context) string {
	return c.ClientIP()
}

// RateLimiter keeps one token bucket per key
type RateLimiter struct {
	config   RateLimitConfig
	mu       sync.Mutex
	limiters map[string]*visitor
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewInMemoryRateLimiter creates a limiter refilling Limit tokens per Window
func NewInMemoryRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.KeyFunc == nil {
		config.KeyFunc = clientIPKey
	}
	return &RateLimiter{
		config:   config,
		limiters: make(map[string]*visitor),
	}
}

// Allow consumes a token for key
func (rl *RateLimiter) Allow(key string) bool {
	return rl.get(key).Allow()
}

// RetryAfter estimates seconds until key has a token again
func (rl *RateLimiter) RetryAfter(key string) int {
	lim := rl.get(key)
	tokens := lim.Tokens()
	if tokens >= 1 {
		return 0
	}
	return int(math.Ceil((1 - tokens) / float64(lim.Limit())))
}

func (rl *RateLimiter) get(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	v, ok := rl.limiters[key]
	if !ok {
		every := rl.config.Window / time.Duration(rl.config.Limit)
		v = &visitor{limiter: rate.NewLimiter(rate.Every(every), rl.config.Limit)}
		rl.limiters[key] = v
		rl.evictIdle(now)
	}
	v.lastSeen = now
	return v.limiter
}

// evictIdle drops buckets that have been full for a whole window. Caller holds mu.
func (rl *RateLimiter) evictIdle(now time.Time) {
	for key, v := range rl.limiters {
		if now.Sub(v.lastSeen) > 2*rl.config.Window {
			delete(rl.limiters, key)
		}
	}
}

// NewRateLimiter creates an in-memory rate limiting middleware
func NewRateLimiter(config RateLimitConfig) gin.HandlerFunc {
	rl := NewInMemoryRateLimiter(config)

	return func(c *gin.Context) {
		key := rl.config.KeyFunc(c)
		if !rl.Allow(key) {
			RecordRateLimitExceeded(c.FullPath(), c.Request.Method)
			retryAfter := rl.RetryAfter(key)
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.Header("X-RateLimit-Limit", strconv.Itoa(config.Limit))
			c.Header("X-RateLimit-Remaining", "0")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": retryAfter,
			})
			return
		}
		c.Next()
	}
}
