package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"taskmanager/internal/domain/errors"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RedisLimiter is a fixed-window counter keyed by caller and window number.
type RedisLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
	prefix string
}

func NewRedisLimiter(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, limit: int64(limit), window: window, prefix: "taskmanager:ratelimit:"}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	bucket := time.Now().UnixNano() / int64(l.window)
	redisKey := fmt.Sprintf("%s%s:%d", l.prefix, key, bucket)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return incr.Val() <= l.limit, nil
}

// RateLimit rejects callers over the limit with 429. Limiter failures let the
// request through.
func RateLimit(limiter Limiter) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if limiter == nil {
			ctx.Next()
			return
		}
		key := ctx.ClientIP() + ":" + ctx.FullPath()
		allowed, err := limiter.Allow(ctx.Request.Context(), key)
		if err != nil {
			log.Println("[WARN] Rate limiter unavailable:", err)
			ctx.Next()
			return
		}
		if !allowed {
			ctx.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": errors.ErrTooManyRequests.Error()})
			return
		}
		ctx.Next()
	}
}
