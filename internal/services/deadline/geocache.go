package deadline

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/BearBump/ShipBox/internal/cache"
)

// MemoryGeoCache keeps every ZIP forever. The key space (US ZIPs) is bounded, so there is no eviction.
type MemoryGeoCache struct {
	mu sync.RWMutex
	m  map[string]Point
}

func NewMemoryGeoCache() *MemoryGeoCache {
	return &MemoryGeoCache{m: make(map[string]Point)}
}

func (c *MemoryGeoCache) Get(_ context.Context, zip string) (Point, bool) {
	c.mu.RLock()
	p, ok := c.m[zip]
	c.mu.RUnlock()
	return p, ok
}

func (c *MemoryGeoCache) Set(_ context.Context, zip string, p Point) {
	c.mu.Lock()
	c.m[zip] = p
	c.mu.Unlock()
}

// BytesGeoCache stores points as JSON in a shared BytesCache (Redis in production).
// Cache errors are treated as misses.
type BytesGeoCache struct {
	c   cache.BytesCache
	ttl time.Duration
}

func NewBytesGeoCache(c cache.BytesCache, ttl time.Duration) *BytesGeoCache {
	return &BytesGeoCache{c: c, ttl: ttl}
}

func geoKey(zip string) string { return "shipbox:geo:" + zip }

func (g *BytesGeoCache) Get(ctx context.Context, zip string) (Point, bool) {
	b, ok, err := g.c.Get(ctx, geoKey(zip))
	if err != nil || !ok {
		return Point{}, false
	}
	var p Point
	if json.Unmarshal(b, &p) != nil {
		return Point{}, false
	}
	return p, true
}

func (g *BytesGeoCache) Set(ctx context.Context, zip string, p Point) {
	b, _ := json.Marshal(p)
	_ = g.c.Set(ctx, geoKey(zip), b, g.ttl)
}
