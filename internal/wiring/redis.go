package wiring

import (
	"sync"

	"github.com/BearBump/ShipBox/internal/cache/rediscache"
)

// RedisConn hands one rediscache.Client to every factory of a process. The connection opens
// on the first Acquire and closes when the last holder releases it.
type RedisConn struct {
	mu   sync.Mutex
	c    *rediscache.Client
	refs int
}

func (r *RedisConn) Acquire(addr string) (*rediscache.Client, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.c == nil {
		r.c = rediscache.NewClient(addr)
	}
	r.refs++
	c := r.c

	var once sync.Once
	return c, func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.refs--
			if r.refs == 0 {
				_ = r.c.Close()
				r.c = nil
			}
		})
	}
}

// Holders reports how many releases are still outstanding.
func (r *RedisConn) Holders() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refs
}
