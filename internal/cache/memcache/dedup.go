package memcache

import (
	"context"
	"sync"
	"time"
)

const DefaultSweepInterval = time.Minute

// Dedup is a process-local TTL reservation set. Expired keys are treated as absent on read
// and physically removed by Run.
type Dedup struct {
	mu    sync.Mutex
	items map[string]time.Time
	now   func() time.Time
	every time.Duration
}

func NewDedup(sweepEvery time.Duration) *Dedup {
	if sweepEvery <= 0 {
		sweepEvery = DefaultSweepInterval
	}
	return &Dedup{
		items: make(map[string]time.Time),
		now:   time.Now,
		every: sweepEvery,
	}
}

func (d *Dedup) Reserve(_ context.Context, key string, ttl time.Duration) (bool, error) {
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if exp, ok := d.items[key]; ok && now.Before(exp) {
		return false, nil
	}
	d.items[key] = now.Add(ttl)
	return true, nil
}

func (d *Dedup) Release(_ context.Context, key string) error {
	d.mu.Lock()
	delete(d.items, key)
	d.mu.Unlock()
	return nil
}

func (d *Dedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.items)
}

// Sweep drops expired entries and returns how many were removed.
func (d *Dedup) Sweep() int {
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for k, exp := range d.items {
		if !now.Before(exp) {
			delete(d.items, k)
			n++
		}
	}
	return n
}

// Run sweeps periodically until ctx is done.
func (d *Dedup) Run(ctx context.Context) {
	t := time.NewTicker(d.every)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			d.Sweep()
		}
	}
}
