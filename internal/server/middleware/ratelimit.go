package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"taskflow/backend/internal/i18n"
)

// Limiter decides whether another request for key fits in the current window.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

// redisCounter is the subset of *redis.Client used by RedisLimiter.
type redisCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// RedisLimiter is a fixed-window counter kept in Redis, shared by every server instance.
type RedisLimiter struct {
	client redisCounter
	prefix string
	limit  int
	window time.Duration
}

// NewRedisLimiter allows limit requests per key per window.
func NewRedisLimiter(client *redis.Client, prefix string, limit int, window time.Duration) *RedisLimiter {
	return newRedisLimiter(client, prefix, limit, window)
}

func newRedisLimiter(client redisCounter, prefix string, limit int, window time.Duration) *RedisLimiter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisLimiter{client: client, prefix: prefix, limit: limit, window: window}
}

// Allow counts one request for key. The window starts with the first request.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	redisKey := fmt.Sprintf("%s:%s", l.prefix, key)
	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return true, 0, fmt.Errorf("ratelimit: incr %s: %w", redisKey, err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, redisKey, l.window).Err(); err != nil {
			return true, 0, fmt.Errorf("ratelimit: expire %s: %w", redisKey, err)
		}
	}
	if count > int64(l.limit) {
		return false, l.window, nil
	}
	return true, 0, nil
}

// RateLimit rejects requests over the limiter's budget with 429, keyed by route and client IP.
// A nil limiter disables limiting. Limiter errors let the request through.
func RateLimit(limiter Limiter, tr *i18n.Translator, log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		key := c.FullPath() + ":" + c.ClientIP()
		allowed, retryAfter, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			log.Warn("rate limiter unavailable, allowing request", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}
		if !allowed {
			log.Warn("rate limit exceeded", zap.String("key", key))
			if retryAfter > 0 {
				c.Header("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
			}
			AbortWithError(c, tr, http.StatusTooManyRequests, i18n.KeyRateLimited)
			return
		}
		c.Next()
	}
}
