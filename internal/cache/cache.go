package cache

import (
	"context"
	"time"
)

// BytesCache is a plain key/value cache with TTL. ok=false means miss.
type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Deduper reserves a key for ttl. Reserve returns true only for the caller that created the
// reservation; every concurrent or later caller gets false until the key expires or is released.
type Deduper interface {
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}
