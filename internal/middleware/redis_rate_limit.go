package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kinfolk/backend/internal/cache"
	"github.com/kinfolk/backend/internal/logger"
	"go.uber.org/zap"
)

// RedisRateLimitMiddleware enforces a fixed-window limit shared by every
// instance. With a nil client it falls back to the in-memory limiter.
func RedisRateLimitMiddleware(client *cache.RedisClient, prefix string, config RateLimitConfig) gin.HandlerFunc {
	if client == nil {
		return NewRateLimiter(config)
	}
	if config.KeyFunc == nil {
		config.KeyFunc = clientIPKey
	}

	return func(c *gin.Context) {
		key := fmt.Sprintf("rate_limit:%s:%s", prefix, config.KeyFunc(c))
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		start := time.Now()
		count, err := client.IncrWindow(ctx, key, config.Window)
		RecordRedisOperation("incr_window", time.Since(start), err)
		if err != nil {
			// Fail closed
			logger.Log.Error("Rate limit check failed, rejecting request",
				logger.WithIP(c.ClientIP()),
				zap.Error(err),
			)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "service temporarily unavailable"})
			return
		}

		remaining := int64(config.Limit) - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(config.Limit))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if count > int64(config.Limit) {
			retryAfter := config.Window
			if ttl, err := client.TTL(ctx, key); err == nil && ttl > 0 {
				retryAfter = ttl
			}
			RecordRateLimitExceeded(c.FullPath(), c.Request.Method)
			logger.Log.Warn("Rate limit exceeded",
				logger.WithIP(c.ClientIP()),
				zap.Int("max_requests", config.Limit),
				zap.Int64("current_requests", count),
			)
			c.Header("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": retryAfter.Seconds(),
			})
			return
		}

		c.Next()
	}
}
