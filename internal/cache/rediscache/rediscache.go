package rediscache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultCachePrefix = "shipbox:cache:"
	DefaultDedupPrefix = "shipbox:dedup:"
	DefaultLimitPrefix = "shipbox:"
)

// Client — одно подключение на процесс; гео-кэш, дедуп уведомлений и лимитер SMS живут на нём
// под своими префиксами.
type Client struct {
	rdb *redis.Client
}

func NewClient(addr string) *Client {
	return &Client{rdb: redis.NewClient(&redis.Options{Addr: addr})}
}

func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, "redis ping")
	}
	return nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) Cache(prefix string) *RedisCache {
	if prefix == "" {
		prefix = DefaultCachePrefix
	}
	return &RedisCache{c: c, prefix: prefix}
}

func (c *Client) Dedup(prefix string) *Dedup {
	if prefix == "" {
		prefix = DefaultDedupPrefix
	}
	return &Dedup{c: c, prefix: prefix}
}

func (c *Client) RateLimiter(prefix string) *RateLimiter {
	if prefix == "" {
		prefix = DefaultLimitPrefix
	}
	return &RateLimiter{c: c, prefix: prefix}
}

// RedisCache is the byte cache behind deadline.BytesGeoCache.
type RedisCache struct {
	c      *Client
	prefix string
	owned  bool
}

// New opens a dedicated connection; Close releases it.
func New(addr string) *RedisCache {
	rc := NewClient(addr).Cache("")
	rc.owned = true
	return rc
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.c.rdb.Get(ctx, r.prefix+key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "redis get")
	}
	return val, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.c.rdb.Set(ctx, r.prefix+key, value, ttl).Err(); err != nil {
		return errors.Wrap(err, "redis set")
	}
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, key string) error {
	if err := r.c.rdb.Del(ctx, r.prefix+key).Err(); err != nil {
		return errors.Wrap(err, "redis del")
	}
	return nil
}

func (r *RedisCache) Ping(ctx context.Context) error {
	return r.c.Ping(ctx)
}

// Close is a no-op for views over a shared Client.
func (r *RedisCache) Close() error {
	if !r.owned {
		return nil
	}
	return r.c.Close()
}
