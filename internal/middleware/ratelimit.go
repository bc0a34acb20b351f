package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"cases-miniapp-backend/internal/models"
	"cases-miniapp-backend/internal/services"
)

// Limiter decides whether one more hit for key fits in the current window.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RedisLimiter shares a fixed window across every instance.
type RedisLimiter struct {
	redis  *services.RedisService
	action string
	limit  int
	window time.Duration
}

func NewRedisLimiter(redis *services.RedisService, action string, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{redis: redis, action: action, limit: limit, window: window}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	return l.redis.CheckRateLimit(ctx, key, l.action, l.limit, l.window)
}

// LocalLimiter keeps one token bucket per key in process memory.
type LocalLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
	maxKeys  int
}

// NewLocalLimiter allows limit hits per window per key, bursting up to limit.
func NewLocalLimiter(limit int, window time.Duration) *LocalLimiter {
	return &LocalLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Every(window / time.Duration(limit)),
		burst:    limit,
		maxKeys:  10000,
	}
}

func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, error) {
	return l.getLimiter(key).Allow(), nil
}

func (l *LocalLimiter) getLimiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.limiters[key]
	if !ok {
		if len(l.limiters) >= l.maxKeys {
			l.limiters = make(map[string]*rate.Limiter)
		}
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[key] = limiter
	}
	return limiter
}

// RateLimit rejects over-limit requests with 429. Limiter errors let the
// request through.
func RateLimit(limiter Limiter, keyFn func(*gin.Context) string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keyFn(c)

		allowed, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			logger.Warn("rate limiter unavailable", zap.String("path", c.FullPath()), zap.Error(err))
			c.Next()
			return
		}

		if !allowed {
			logger.Info("rate limit exceeded", zap.String("key", key), zap.String("path", c.FullPath()))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.OpenResponse{Error: models.ErrCodeRateLimited})
			return
		}

		c.Next()
	}
}
