package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/BearBump/ShipBox/internal/cache"
	"github.com/BearBump/ShipBox/internal/models"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	// ErrNoCompliantLink means the link policy produced nothing for a phase that requires a link.
	ErrNoCompliantLink = errors.New("no compliant link for phase")
	ErrSendFailed      = errors.New("sms send failed")
	ErrNoPhone         = errors.New("recipient phone is missing")
)

const DefaultDedupTTL = 24 * time.Hour

type Outcome string

const (
	OutcomeSent    Outcome = "sent"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// Skip reasons. Only ReasonAlreadyRecorded means the message is known to be delivered.
const (
	ReasonAlreadyRecorded = "already_recorded"
	ReasonDuplicate       = "duplicate"
)

type SMSSender interface {
	// Send returns the gateway message id on a confirmed send. idempotencyKey is stable across
	// resends of the same notification.
	Send(ctx context.Context, to, body, idempotencyKey string) (string, error)
}

type Merger interface {
	MergeProtectedFields(ctx context.Context, txID string, patch map[string]any) error
}

type Metrics interface {
	Notification(tag, outcome string)
}

type ComposeFunc func(ctx context.Context) (string, error)

type Request struct {
	TransactionID string
	EventTag      models.EventTag
	Phone         string
	// Fingerprint keys the short-term dedup reservation. Empty means "<transactionID>|<tag>".
	Fingerprint string
	// Transaction, when set, is checked for a durable NotificationRecord before anything else.
	Transaction *models.Transaction
	Compose     ComposeFunc
	// Tags are extra log fields.
	Tags map[string]string
}

type Result struct {
	Outcome   Outcome
	Reason    string
	MessageID string
	// Recorded is false when the send succeeded but the durable record could not be written.
	Recorded bool
	Err      error
}

type Dispatcher struct {
	sender   SMSSender
	dedup    cache.Deduper
	merger   Merger
	dedupTTL time.Duration
	log      *zap.Logger
	metrics  Metrics
	now      func() time.Time
}

func NewDispatcher(sender SMSSender, dedup cache.Deduper, merger Merger, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		sender:   sender,
		dedup:    dedup,
		merger:   merger,
		dedupTTL: DefaultDedupTTL,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (d *Dispatcher) WithDedupTTL(ttl time.Duration) *Dispatcher {
	if ttl > 0 {
		d.dedupTTL = ttl
	}
	return d
}

func (d *Dispatcher) WithMetrics(m Metrics) *Dispatcher {
	d.metrics = m
	return d
}

// Fingerprint builds the dedup key for a tracked message. The tracking number identifies the
// physical event; the transaction id is used before a label exists.
func Fingerprint(trackingNumber, txID string, tag models.EventTag) string {
	id := trackingNumber
	if id == "" {
		id = "tx:" + txID
	}
	return fmt.Sprintf("%s|%s", id, tag)
}

// Notify sends at most one message per (transaction, tag). It never panics into the caller.
func (d *Dispatcher) Notify(ctx context.Context, req Request) (res Result) {
	log := d.log.With(
		zap.String("transaction_id", req.TransactionID),
		zap.String("event_tag", string(req.EventTag)),
	)
	for k, v := range req.Tags {
		log = log.With(zap.String(k, v))
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("notify panic", zap.Any("panic", r))
			res = Result{Outcome: OutcomeFailed, Reason: "panic", Err: errors.Errorf("notify panic: %v", r)}
		}
		if d.metrics != nil {
			d.metrics.Notification(string(req.EventTag), string(res.Outcome))
		}
	}()

	if req.Transaction != nil && req.Transaction.NotificationSent(req.EventTag) {
		log.Debug("notification already recorded")
		return Result{Outcome: OutcomeSkipped, Reason: ReasonAlreadyRecorded, Recorded: true}
	}

	key := req.Fingerprint
	if key == "" {
		key = Fingerprint("", req.TransactionID, req.EventTag)
	}
	reserved, err := d.dedup.Reserve(ctx, key, d.dedupTTL)
	if err != nil {
		log.Error("dedup reserve", zap.Error(err))
		return Result{Outcome: OutcomeFailed, Reason: "dedup_unavailable", Err: errors.Wrap(err, "dedup reserve")}
	}
	if !reserved {
		log.Debug("notification in flight or recently sent", zap.String("fingerprint", key))
		return Result{Outcome: OutcomeSkipped, Reason: ReasonDuplicate}
	}

	release := func() {
		if err := d.dedup.Release(ctx, key); err != nil {
			log.Warn("dedup release", zap.Error(err))
		}
	}

	if req.Phone == "" {
		release()
		log.Warn("notification skipped: no phone")
		return Result{Outcome: OutcomeFailed, Reason: "no_phone", Err: ErrNoPhone}
	}

	if req.Compose == nil {
		release()
		return Result{Outcome: OutcomeFailed, Reason: "compose_failed", Err: errors.New("compose func is nil")}
	}
	body, err := req.Compose(ctx)
	if err != nil {
		release()
		if errors.Is(err, ErrNoCompliantLink) {
			log.Error("refusing to send: no compliant link, carrier response shape may have changed", zap.Error(err))
			return Result{Outcome: OutcomeFailed, Reason: "no_compliant_link", Err: err}
		}
		log.Error("compose message", zap.Error(err))
		return Result{Outcome: OutcomeFailed, Reason: "compose_failed", Err: err}
	}
	body = SanitizeGSM(body)

	msgID, err := d.sender.Send(ctx, req.Phone, body, key)
	if err != nil {
		release()
		log.Error("sms send failed", zap.Error(err))
		return Result{Outcome: OutcomeFailed, Reason: "send_failed", Err: errors.Wrap(ErrSendFailed, err.Error())}
	}

	res = Result{Outcome: OutcomeSent, MessageID: msgID, Recorded: true}

	rec := models.NotificationRecord{Sent: true, SentAt: d.now()}.Fields()
	if msgID != "" {
		rec["messageId"] = msgID
	}
	patch := map[string]any{
		models.KeyShippingNotification: map[string]any{string(req.EventTag): rec},
	}
	if err := d.merger.MergeProtectedFields(ctx, req.TransactionID, patch); err != nil {
		// Reservation stays so a replay inside the TTL is still suppressed.
		res.Recorded = false
		log.Error("record notification", zap.Error(err))
	}

	log.Info("notification sent", zap.String("message_id", msgID))
	return res
}
