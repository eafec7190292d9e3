package rediscache

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// Dedup — межпроцессная резервация ключей уведомлений через SET NX.
type Dedup struct {
	c      *Client
	prefix string
	owned  bool
}

func NewDedup(addr, prefix string) *Dedup {
	d := NewClient(addr).Dedup(prefix)
	d.owned = true
	return d
}

// Reserve stores the reservation time as the value, which shows up in redis-cli when a slot
// looks stuck.
func (d *Dedup) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := d.c.rdb.SetNX(ctx, d.prefix+key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, "redis setnx")
	}
	return ok, nil
}

func (d *Dedup) Release(ctx context.Context, key string) error {
	if err := d.c.rdb.Del(ctx, d.prefix+key).Err(); err != nil {
		return errors.Wrap(err, "redis del")
	}
	return nil
}

func (d *Dedup) Close() error {
	if !d.owned {
		return nil
	}
	return d.c.Close()
}
