package memcache

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count int64
	until time.Time
}

// RateLimiter is the process-local twin of rediscache.RateLimiter: a fixed-window counter
// whose window starts at the first hit.
type RateLimiter struct {
	mu   sync.Mutex
	wins map[string]*window
	now  func() time.Time
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		wins: make(map[string]*window),
		now:  time.Now,
	}
}

func (rl *RateLimiter) Allow(_ context.Context, key string, limit int64, win time.Duration) (bool, int64, error) {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.wins[key]
	if !ok || !now.Before(w.until) {
		if len(rl.wins) > 1024 {
			rl.dropExpired(now)
		}
		w = &window{until: now.Add(win)}
		rl.wins[key] = w
	}
	w.count++
	return w.count <= limit, w.count, nil
}

func (rl *RateLimiter) dropExpired(now time.Time) {
	for k, w := range rl.wins {
		if !now.Before(w.until) {
			delete(rl.wins, k)
		}
	}
}
