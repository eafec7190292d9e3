package memcache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDedup_ReserveOnce(t *testing.T) {
	d := NewDedup(time.Minute)
	ctx := context.Background()

	ok, err := d.Reserve(ctx, "k", time.Hour)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = d.Reserve(ctx, "k", time.Hour)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, d.Release(ctx, "k"))
	ok, _ = d.Reserve(ctx, "k", time.Hour)
	require.True(t, ok)
}

func TestDedup_ExpiryAndSweep(t *testing.T) {
	d := NewDedup(time.Minute)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }
	ctx := context.Background()

	ok, _ := d.Reserve(ctx, "a", time.Minute)
	require.True(t, ok)
	ok, _ = d.Reserve(ctx, "b", time.Hour)
	require.True(t, ok)

	now = now.Add(2 * time.Minute)
	require.Equal(t, 1, d.Sweep())
	require.Equal(t, 1, d.Len())

	ok, _ = d.Reserve(ctx, "a", time.Minute)
	require.True(t, ok)
	ok, _ = d.Reserve(ctx, "b", time.Minute)
	require.False(t, ok)
}

func TestDedup_ConcurrentReserve(t *testing.T) {
	d := NewDedup(time.Minute)
	ctx := context.Background()

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := d.Reserve(ctx, "same", time.Hour); ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), wins)
}

func TestDedup_RunStopsOnCancel(t *testing.T) {
	d := NewDedup(5 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}
