package rediscache

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// RateLimiter caps reminder sends per minute across worker replicas.
type RateLimiter struct {
	c      *Client
	prefix string
	owned  bool
}

func NewRateLimiter(addr string) *RateLimiter {
	rl := NewClient(addr).RateLimiter("")
	rl.owned = true
	return rl
}

// Allow делает INCR по ключу и ставит TTL только при создании ключа, чтобы окно не сдвигалось.
// Возвращает (allowed, currentCount).
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	pipe := rl.c.rdb.TxPipeline()
	incr := pipe.Incr(ctx, rl.prefix+key)
	pipe.ExpireNX(ctx, rl.prefix+key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, errors.Wrap(err, "redis ratelimit")
	}
	n := incr.Val()
	return n <= limit, n, nil
}

func (rl *RateLimiter) Close() error {
	if !rl.owned {
		return nil
	}
	return rl.c.Close()
}
