package limiter

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter gates stream-open requests per client key.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Noop allows everything; used when no Redis address is configured.
type Noop struct{}

func (Noop) Allow(ctx context.Context, key string) (bool, error) { return true, nil }

// RedisLimiter implements a fixed-window counter per key: INCR + EXPIRE in
// one pipeline round trip. Shared across replicas behind one Redis, which
// is the point of not counting in process memory.
type RedisLimiter struct {
	client *redis.Client
	max    int64
	window time.Duration
}

func NewRedisLimiter(client *redis.Client, max int, window time.Duration) *RedisLimiter {
	if max <= 0 {
		max = 30
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RedisLimiter{client: client, max: int64(max), window: window}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := "ratelimit:" + key

	pipe := l.client.Pipeline()
	count := pipe.Incr(ctx, redisKey)
	// Expire only arms the window on first increment; NX keeps the window
	// fixed rather than sliding.
	pipe.ExpireNX(ctx, redisKey, l.window)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return count.Val() <= l.max, nil
}
