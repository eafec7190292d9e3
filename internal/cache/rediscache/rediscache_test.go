package rediscache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestRedisCache_GetSet(t *testing.T) {
	mr := miniredis.RunT(t)
	c := New(mr.Addr())

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))

	b, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), b)

	_, ok, err = c.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Ping(ctx))
}

func TestRedisCache_TTL(t *testing.T) {
	mr := miniredis.RunT(t)
	c := New(mr.Addr())
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "geo:78701", []byte(`{}`), time.Minute))
	mr.FastForward(2 * time.Minute)

	_, ok, err := c.Get(ctx, "geo:78701")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRateLimiter_Allow(t *testing.T) {
	mr := miniredis.RunT(t)
	rl := NewRateLimiter(mr.Addr())

	ctx := context.Background()
	ok, n, err := rl.Allow(ctx, "rl:test", 2, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1), n)

	ok, n, _ = rl.Allow(ctx, "rl:test", 2, time.Minute)
	require.True(t, ok)
	require.Equal(t, int64(2), n)

	ok, n, _ = rl.Allow(ctx, "rl:test", 2, time.Minute)
	require.False(t, ok)
	require.Equal(t, int64(3), n)

	mr.FastForward(time.Minute + time.Second)
	ok, n, _ = rl.Allow(ctx, "rl:test", 2, time.Minute)
	require.True(t, ok)
	require.Equal(t, int64(1), n)
}

func TestDedup_ReserveRelease(t *testing.T) {
	mr := miniredis.RunT(t)
	d := NewDedup(mr.Addr(), "t:")
	ctx := context.Background()

	ok, err := d.Reserve(ctx, "1Z|firstScanToBorrower", time.Hour)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, mr.Exists("t:1Z|firstScanToBorrower"))

	ok, err = d.Reserve(ctx, "1Z|firstScanToBorrower", time.Hour)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, d.Release(ctx, "1Z|firstScanToBorrower"))
	ok, err = d.Reserve(ctx, "1Z|firstScanToBorrower", time.Hour)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestDedup_Expires(t *testing.T) {
	mr := miniredis.RunT(t)
	d := NewDedup(mr.Addr(), "")
	ctx := context.Background()

	ok, _ := d.Reserve(ctx, "k", time.Minute)
	require.True(t, ok)
	mr.FastForward(2 * time.Minute)
	ok, _ = d.Reserve(ctx, "k", time.Minute)
	require.True(t, ok)
}

func TestClient_ViewsShareConnectionUnderOwnPrefixes(t *testing.T) {
	mr := miniredis.RunT(t)
	c := NewClient(mr.Addr())
	t.Cleanup(func() { _ = c.Close() })
	ctx := context.Background()

	cache := c.Cache("")
	require.NoError(t, cache.Set(ctx, "geo:78701", []byte(`{"lat":30.27}`), time.Hour))
	require.True(t, mr.Exists(DefaultCachePrefix+"geo:78701"))

	d := c.Dedup("")
	ok, err := d.Reserve(ctx, "1Z|deliveredToBorrower", time.Hour)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, mr.Exists(DefaultDedupPrefix+"1Z|deliveredToBorrower"))

	rl := c.RateLimiter("")
	_, n, err := rl.Allow(ctx, "rl:reminders:202501201000", 5, time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	require.True(t, mr.Exists("shipbox:rl:reminders:202501201000"))

	// закрытие вида не трогает общее подключение
	require.NoError(t, cache.Close())
	require.NoError(t, d.Close())
	require.NoError(t, rl.Close())
	require.NoError(t, c.Ping(ctx))

	require.NoError(t, cache.Delete(ctx, "geo:78701"))
	_, ok, err = cache.Get(ctx, "geo:78701")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestOwnedViewCloseReleasesConnection(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := New(mr.Addr())
	ctx := context.Background()
	require.NoError(t, rc.Ping(ctx))
	require.NoError(t, rc.Close())
	require.Error(t, rc.Ping(ctx))
}
