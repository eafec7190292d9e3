package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BearBump/ShipBox/internal/cache/memcache"
	cachemocks "github.com/BearBump/ShipBox/internal/cache/mocks"
	"github.com/BearBump/ShipBox/internal/integrations/marketplace/memstore"
	"github.com/BearBump/ShipBox/internal/models"
	"github.com/BearBump/ShipBox/internal/services/reconciler"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type countingSender struct {
	mu    sync.Mutex
	sent  []string
	keys  []string
	err   error
	delay time.Duration
	calls atomic.Int32
}

func (s *countingSender) Send(ctx context.Context, to, body, key string) (string, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return "", s.err
	}
	s.mu.Lock()
	s.sent = append(s.sent, to+": "+body)
	s.keys = append(s.keys, key)
	s.mu.Unlock()
	return "SM123", nil
}

func staticCompose(body string) ComposeFunc {
	return func(context.Context) (string, error) { return body, nil }
}

func newEnv(t *testing.T, sender SMSSender) (*Dispatcher, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	store.Put(&models.Transaction{ID: "tx-1", ProtectedData: map[string]any{
		"outbound": map[string]any{"trackingNumber": "1Z"},
	}})
	rec := reconciler.New(store, reconciler.Options{Retries: 20, Backoff: time.Millisecond}, nil)
	return NewDispatcher(sender, memcache.NewDedup(time.Minute), rec, nil), store
}

func TestNotify_SendsOnceAndRecords(t *testing.T) {
	sender := &countingSender{}
	d, store := newEnv(t, sender)
	ctx := context.Background()

	req := Request{
		TransactionID: "tx-1",
		EventTag:      models.TagFirstScanToBorrower,
		Phone:         "+15125550100",
		Fingerprint:   Fingerprint("1Z", "tx-1", models.TagFirstScanToBorrower),
		Compose:       staticCompose("on its way — track it"),
	}
	res := d.Notify(ctx, req)
	require.Equal(t, OutcomeSent, res.Outcome)
	require.True(t, res.Recorded)
	require.Equal(t, "SM123", res.MessageID)
	require.Equal(t, []string{"+15125550100: on its way - track it"}, sender.sent)
	require.Equal(t, []string{"1Z|firstScanToBorrower"}, sender.keys)

	tx, err := store.GetTransaction(ctx, "tx-1")
	require.NoError(t, err)
	require.True(t, tx.NotificationSent(models.TagFirstScanToBorrower))
	require.Equal(t, "1Z", tx.Artifacts(models.LegOutbound).TrackingNumber)

	// replay with fresh transaction state: durable record wins
	req.Transaction = tx
	res = d.Notify(ctx, req)
	require.Equal(t, OutcomeSkipped, res.Outcome)
	require.Equal(t, ReasonAlreadyRecorded, res.Reason)

	// replay without transaction state: dedup reservation wins
	req.Transaction = nil
	res = d.Notify(ctx, req)
	require.Equal(t, OutcomeSkipped, res.Outcome)
	require.Equal(t, ReasonDuplicate, res.Reason)

	require.Equal(t, int32(1), sender.calls.Load())
}

func TestNotify_ConcurrentCallsSendOnce(t *testing.T) {
	sender := &countingSender{delay: 10 * time.Millisecond}
	d, _ := newEnv(t, sender)

	var wg sync.WaitGroup
	outcomes := make(chan Outcome, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes <- d.Notify(context.Background(), Request{
				TransactionID: "tx-1",
				EventTag:      models.TagDeliveredToBorrower,
				Phone:         "+1",
				Fingerprint:   Fingerprint("1Z", "tx-1", models.TagDeliveredToBorrower),
				Compose:       staticCompose("delivered"),
			}).Outcome
		}()
	}
	wg.Wait()
	close(outcomes)

	counts := map[Outcome]int{}
	for o := range outcomes {
		counts[o]++
	}
	require.Equal(t, 1, counts[OutcomeSent])
	require.Equal(t, 15, counts[OutcomeSkipped])
	require.Equal(t, int32(1), sender.calls.Load())
}

func TestNotify_SendFailureReleasesReservation(t *testing.T) {
	sender := &countingSender{err: errors.New("gateway 500")}
	d, store := newEnv(t, sender)
	ctx := context.Background()

	req := Request{
		TransactionID: "tx-1",
		EventTag:      models.TagFirstScanToBorrower,
		Phone:         "+1",
		Compose:       staticCompose("hi"),
	}
	res := d.Notify(ctx, req)
	require.Equal(t, OutcomeFailed, res.Outcome)
	require.ErrorIs(t, res.Err, ErrSendFailed)

	tx, _ := store.GetTransaction(ctx, "tx-1")
	require.False(t, tx.NotificationSent(models.TagFirstScanToBorrower))

	sender.err = nil
	res = d.Notify(ctx, req)
	require.Equal(t, OutcomeSent, res.Outcome)
}

func TestNotify_NoCompliantLinkAborts(t *testing.T) {
	sender := &countingSender{}
	d, _ := newEnv(t, sender)

	res := d.Notify(context.Background(), Request{
		TransactionID: "tx-1",
		EventTag:      models.TagLabelReadyToLender,
		Phone:         "+1",
		Compose: func(context.Context) (string, error) {
			return "", errors.Wrap(ErrNoCompliantLink, "initial-lender")
		},
	})
	require.Equal(t, OutcomeFailed, res.Outcome)
	require.Equal(t, "no_compliant_link", res.Reason)
	require.ErrorIs(t, res.Err, ErrNoCompliantLink)
	require.Equal(t, int32(0), sender.calls.Load())
}

func TestNotify_NoPhone(t *testing.T) {
	sender := &countingSender{}
	d, _ := newEnv(t, sender)

	res := d.Notify(context.Background(), Request{TransactionID: "tx-1", EventTag: models.TagDeliveredToBorrower, Compose: staticCompose("x")})
	require.Equal(t, OutcomeFailed, res.Outcome)
	require.ErrorIs(t, res.Err, ErrNoPhone)
}

func TestNotify_PanicInComposeIsContained(t *testing.T) {
	sender := &countingSender{}
	d, _ := newEnv(t, sender)

	require.NotPanics(t, func() {
		res := d.Notify(context.Background(), Request{
			TransactionID: "tx-1",
			EventTag:      models.TagDeliveredToBorrower,
			Phone:         "+1",
			Compose:       func(context.Context) (string, error) { panic("template bug") },
		})
		require.Equal(t, OutcomeFailed, res.Outcome)
	})
}

func TestNotify_DedupErrorFailsWithoutSending(t *testing.T) {
	dedup := cachemocks.NewMockDeduper(t)
	dedup.On("Reserve", mock.Anything, "tx:tx-1|deliveredToBorrower", DefaultDedupTTL).
		Return(false, errors.New("redis down")).Once()

	sender := &countingSender{}
	d := NewDispatcher(sender, dedup, nil, nil)

	res := d.Notify(context.Background(), Request{TransactionID: "tx-1", EventTag: models.TagDeliveredToBorrower, Phone: "+1", Compose: staticCompose("x")})
	require.Equal(t, OutcomeFailed, res.Outcome)
	require.Equal(t, int32(0), sender.calls.Load())
}

type failingMerger struct{}

func (failingMerger) MergeProtectedFields(context.Context, string, map[string]any) error {
	return errors.New("conflict retries exhausted")
}

func TestNotify_RecordFailureStillSent(t *testing.T) {
	sender := &countingSender{}
	d := NewDispatcher(sender, memcache.NewDedup(time.Minute), failingMerger{}, nil)

	res := d.Notify(context.Background(), Request{TransactionID: "tx-1", EventTag: models.TagDeliveredToBorrower, Phone: "+1", Compose: staticCompose("x")})
	require.Equal(t, OutcomeSent, res.Outcome)
	require.False(t, res.Recorded)
}
