package reconciler

import (
	"context"
	"time"

	"github.com/BearBump/ShipBox/internal/integrations/marketplace"
	"github.com/BearBump/ShipBox/internal/models"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Options struct {
	Retries int
	Backoff time.Duration
}

func DefaultOptions() Options {
	return Options{Retries: 3, Backoff: 250 * time.Millisecond}
}

type Metrics interface {
	PersistConflict()
	PersistFailed()
}

type Reconciler struct {
	store   marketplace.Store
	opts    Options
	log     *zap.Logger
	metrics Metrics
	sleep   func(ctx context.Context, d time.Duration) error
}

func New(store marketplace.Store, opts Options, log *zap.Logger) *Reconciler {
	def := DefaultOptions()
	if opts.Retries <= 0 {
		opts.Retries = def.Retries
	}
	if opts.Backoff <= 0 {
		opts.Backoff = def.Backoff
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{store: store, opts: opts, log: log, sleep: sleepCtx}
}

func (r *Reconciler) WithMetrics(m Metrics) *Reconciler {
	r.metrics = m
	return r
}

// MergeProtectedFields deep-merges patch into the transaction's protected data under optimistic
// concurrency. Sibling keys written by other callers are preserved. On conflict it re-reads and
// retries up to Retries times; the returned error is meant to be logged, not propagated as a
// business failure.
func (r *Reconciler) MergeProtectedFields(ctx context.Context, txID string, patch map[string]any) error {
	if len(patch) == 0 {
		if txID == "" {
			return errors.New("transaction id is required")
		}
		return nil
	}
	return r.MergeProtectedFieldsFunc(ctx, txID, func(*models.Transaction) map[string]any { return patch })
}

// MergeProtectedFieldsFunc is MergeProtectedFields with the patch built from the transaction as
// read on each attempt, so a caller can re-validate against the stored state. An empty patch
// skips the write.
func (r *Reconciler) MergeProtectedFieldsFunc(ctx context.Context, txID string, build func(tx *models.Transaction) map[string]any) error {
	if txID == "" {
		return errors.New("transaction id is required")
	}

	var lastErr error
	for attempt := 0; attempt <= r.opts.Retries; attempt++ {
		if attempt > 0 {
			if err := r.sleep(ctx, r.opts.Backoff); err != nil {
				return errors.Wrap(err, "merge protected data")
			}
		}

		tx, err := r.store.GetTransaction(ctx, txID)
		if err != nil {
			r.failed()
			return errors.Wrap(err, "read transaction")
		}

		patch := build(tx)
		if len(patch) == 0 {
			return nil
		}
		merged := DeepMerge(tx.ProtectedData, patch)
		err = r.store.UpdateProtectedData(ctx, txID, tx.Version, merged)
		if err == nil {
			return nil
		}
		if !errors.Is(err, marketplace.ErrConflict) {
			r.failed()
			return errors.Wrap(err, "write protected data")
		}

		lastErr = err
		if r.metrics != nil {
			r.metrics.PersistConflict()
		}
		r.log.Debug("protected data conflict, retrying",
			zap.String("transaction_id", txID),
			zap.Int("attempt", attempt+1),
		)
	}

	r.failed()
	return errors.Wrapf(lastErr, "merge protected data: %d retries exhausted", r.opts.Retries)
}

func (r *Reconciler) failed() {
	if r.metrics != nil {
		r.metrics.PersistFailed()
	}
}

// DeepMerge returns a copy of dst with patch applied. Nested maps merge recursively; any other
// value in patch replaces the destination value.
func DeepMerge(dst, patch map[string]any) map[string]any {
	out := models.CloneMap(dst)
	if out == nil {
		out = make(map[string]any, len(patch))
	}
	for k, pv := range patch {
		pm, pIsMap := pv.(map[string]any)
		if !pIsMap {
			out[k] = pv
			continue
		}
		dm, _ := out[k].(map[string]any)
		out[k] = DeepMerge(dm, pm)
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
