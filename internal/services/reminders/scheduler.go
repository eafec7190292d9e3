package reminders

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/ShipBox/internal/models"
	"github.com/BearBump/ShipBox/internal/services/notify"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Source interface {
	ListRecentTransactions(ctx context.Context, limit int) ([]*models.Transaction, error)
}

// AwaitingLister is the optional fast path (Postgres filters in SQL).
type AwaitingLister interface {
	ListAwaitingShipment(ctx context.Context, limit int) ([]*models.Transaction, error)
}

type Notifier interface {
	Notify(ctx context.Context, req notify.Request) notify.Result
}

type MessageComposer interface {
	Func(m notify.Message) notify.ComposeFunc
}

type Merger interface {
	MergeProtectedFields(ctx context.Context, txID string, patch map[string]any) error
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

type Metrics interface {
	Reminder(slot, outcome string)
}

type Scheduler struct {
	src      Source
	notifier Notifier
	composer MessageComposer
	merger   Merger
	rl       RateLimiter
	log      *zap.Logger
	metrics  Metrics

	planner *Planner
	now     func() time.Time

	interval           time.Duration
	scanLimit          int
	concurrency        int
	rateLimitPerMinute int64

	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalScanned        atomic.Int64
	totalSent           atomic.Int64
	totalSkipped        atomic.Int64
	totalThrottled      atomic.Int64
	totalErrors         atomic.Int64
	inFlight            atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(src Source, notifier Notifier, composer MessageComposer, merger Merger, rl RateLimiter, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		src: src, notifier: notifier, composer: composer, merger: merger, rl: rl, log: log,
		planner:            NewPlanner(DefaultPlannerConfig()),
		now:                func() time.Time { return time.Now().UTC() },
		interval:           5 * time.Minute,
		scanLimit:          500,
		concurrency:        4,
		rateLimitPerMinute: 60,
		triggerCh:          make(chan struct{}, 1),
		startedAtUnixNano:  time.Now().UTC().UnixNano(),
	}
}

func (s *Scheduler) WithSettings(interval time.Duration, scanLimit, concurrency int, rlPerMin int64) *Scheduler {
	if interval > 0 {
		s.interval = interval
	}
	if scanLimit > 0 {
		s.scanLimit = scanLimit
	}
	if concurrency > 0 {
		s.concurrency = concurrency
	}
	if rlPerMin > 0 {
		s.rateLimitPerMinute = rlPerMin
	}
	return s
}

func (s *Scheduler) WithPlanner(cfg PlannerConfig) *Scheduler {
	s.planner = NewPlanner(cfg)
	return s
}

func (s *Scheduler) WithMetrics(m Metrics) *Scheduler {
	s.metrics = m
	return s
}

// Trigger forces an immediate cycle (best-effort, non-blocking).
func (s *Scheduler) Trigger() {
	s.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case s.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt      time.Time  `json:"startedAt"`
	LastCycleAt    *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt  *time.Time `json:"lastTriggerAt,omitempty"`
	TotalScanned   int64      `json:"totalScanned"`
	TotalSent      int64      `json:"totalSent"`
	TotalSkipped   int64      `json:"totalSkipped"`
	TotalThrottled int64      `json:"totalThrottled"`
	TotalErrors    int64      `json:"totalErrors"`
	InFlight       int64      `json:"inFlight"`
	LastError      string     `json:"lastError,omitempty"`
}

func (s *Scheduler) Stats() Stats {
	st := Stats{
		StartedAt:      time.Unix(0, s.startedAtUnixNano).UTC(),
		TotalScanned:   s.totalScanned.Load(),
		TotalSent:      s.totalSent.Load(),
		TotalSkipped:   s.totalSkipped.Load(),
		TotalThrottled: s.totalThrottled.Load(),
		TotalErrors:    s.totalErrors.Load(),
		InFlight:       s.inFlight.Load(),
	}
	if n := s.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := s.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	s.lastErrorMu.Lock()
	st.LastError = s.lastError
	s.lastErrorMu.Unlock()
	return st
}

func (s *Scheduler) Run(ctx context.Context) error {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			s.runOnce(ctx)
		case <-s.triggerCh:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) setLastError(err error) {
	s.lastErrorMu.Lock()
	s.lastError = err.Error()
	s.lastErrorMu.Unlock()
}

func (s *Scheduler) runOnce(ctx context.Context) {
	now := s.now()
	s.lastCycleUnixNano.Store(now.UnixNano())

	items, err := s.list(ctx)
	if err != nil {
		s.log.Error("list transactions awaiting shipment", zap.Error(err))
		s.setLastError(err)
		return
	}
	s.totalScanned.Add(int64(len(items)))

	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup
	for _, tx := range items {
		sem <- struct{}{}
		wg.Add(1)
		txCopy := tx
		s.inFlight.Add(1)
		go func() {
			defer func() {
				s.inFlight.Add(-1)
				<-sem
				wg.Done()
			}()
			if err := s.processOne(ctx, txCopy, now); err != nil {
				s.totalErrors.Add(1)
				s.setLastError(err)
				s.log.Error("ship-by reminder", zap.String("transaction_id", txCopy.ID), zap.Error(err))
			}
		}()
	}
	wg.Wait()
}

func (s *Scheduler) list(ctx context.Context) ([]*models.Transaction, error) {
	if al, ok := s.src.(AwaitingLister); ok {
		return al.ListAwaitingShipment(ctx, s.scanLimit)
	}
	return s.src.ListRecentTransactions(ctx, s.scanLimit)
}

func (s *Scheduler) processOne(ctx context.Context, tx *models.Transaction, now time.Time) error {
	out := tx.LegData(models.LegOutbound)
	artifacts := tx.Artifacts(models.LegOutbound)
	if artifacts.Empty() || tx.LegState(models.LegOutbound) != models.LegUnshipped {
		return nil
	}
	shipBy, ok := models.TimeField(out, "shipByDate")
	if !ok {
		return nil
	}

	slot, due := s.planner.Due(shipBy, now, models.MapField(out, "reminders"))
	if !due {
		return nil
	}
	tag := slot.Tag()
	if tx.NotificationSent(tag) {
		// уже отправлено, но отметка слота потерялась: просто дописываем её
		return s.stamp(ctx, tx.ID, slot, now)
	}

	if s.rl != nil && s.rateLimitPerMinute > 0 {
		key := fmt.Sprintf("rl:reminders:%s", now.Format("200601021504"))
		allowed, n, err := s.rl.Allow(ctx, key, s.rateLimitPerMinute, 70*time.Second)
		if err != nil {
			return errors.Wrap(err, "reminder rate limit")
		}
		if !allowed {
			// Следующий цикл повторит попытку.
			s.totalThrottled.Add(1)
			s.log.Warn("reminder rate limit exceeded", zap.Int64("count", n))
			return nil
		}
	}

	res := s.notifier.Notify(ctx, notify.Request{
		TransactionID: tx.ID,
		EventTag:      tag,
		Phone:         lenderPhone(tx),
		Fingerprint:   notify.Fingerprint(artifacts.TrackingNumber, tx.ID, tag),
		Transaction:   tx,
		Compose: s.composer.Func(notify.Message{
			Tag:       tag,
			Artifacts: artifacts,
			ShipBy:    &shipBy,
			Title:     models.StringField(tx.Metadata, "listingTitle"),
		}),
		Tags: map[string]string{"slot": string(slot)},
	})
	if s.metrics != nil {
		s.metrics.Reminder(string(slot), string(res.Outcome))
	}

	switch res.Outcome {
	case notify.OutcomeSent:
		s.totalSent.Add(1)
	case notify.OutcomeSkipped:
		s.totalSkipped.Add(1)
		if res.Reason != notify.ReasonAlreadyRecorded {
			// отправка идёт в другом месте; слот отметит она или следующий цикл
			return nil
		}
	default:
		if res.Err != nil {
			return res.Err
		}
		return errors.Errorf("reminder %s not sent: %s", slot, res.Reason)
	}
	return s.stamp(ctx, tx.ID, slot, now)
}

func (s *Scheduler) stamp(ctx context.Context, txID string, slot Slot, now time.Time) error {
	return s.merger.MergeProtectedFields(ctx, txID, map[string]any{
		models.KeyOutbound: map[string]any{
			"reminders": map[string]any{string(slot): now.Format(time.RFC3339)},
		},
	})
}

func lenderPhone(tx *models.Transaction) string {
	if tx.Provider.Phone != "" {
		return tx.Provider.Phone
	}
	return models.StringField(tx.ProtectedData, models.KeyProviderPhone)
}
