package fulfillment

import (
	"context"
	"encoding/json"
	"time"

	"github.com/BearBump/ShipBox/internal/broker/messages"
	"github.com/BearBump/ShipBox/internal/integrations/marketplace"
	"github.com/BearBump/ShipBox/internal/models"
	"github.com/BearBump/ShipBox/internal/services/labels"
	"go.uber.org/zap"
)

const DefaultFailureBuffer = 256

type LabelCreator interface {
	CreateLabels(ctx context.Context, req labels.Request) models.LabelResult
}

type Metrics interface {
	FulfillmentFailure(reason string)
}

// Failure is a label run that ended without a label. It is reported, never redelivered:
// re-buying a label is an operator decision.
type Failure struct {
	TransactionID string    `json:"transactionId"`
	Reason        string    `json:"reason"`
	Retryable     bool      `json:"retryable"`
	At            time.Time `json:"at"`
}

type Service struct {
	recorder marketplace.Recorder
	labels   LabelCreator
	log      *zap.Logger
	metrics  Metrics
	failures chan Failure
}

// New wires the worker. recorder may be nil when the marketplace store keeps no local copy.
func New(recorder marketplace.Recorder, lc LabelCreator, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		recorder: recorder,
		labels:   lc,
		log:      log,
		failures: make(chan Failure, DefaultFailureBuffer),
	}
}

func (s *Service) WithMetrics(m Metrics) *Service {
	s.metrics = m
	return s
}

func (s *Service) Failures() <-chan Failure {
	return s.failures
}

// HandleAccepted runs label acquisition for one accepted transaction. The returned error is
// non-nil only when ctx is done, so the broker leaves the message uncommitted.
func (s *Service) HandleAccepted(ctx context.Context, msg messages.TransactionAccepted) error {
	log := s.log.With(zap.String("transaction_id", msg.TransactionID), zap.String("event_id", msg.EventID))

	if s.recorder != nil {
		if err := s.recorder.RecordAccepted(ctx, msg.Transaction()); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error("record accepted transaction", zap.Error(err))
			s.report(Failure{TransactionID: msg.TransactionID, Reason: models.ReasonTransactionLookupFailed, Retryable: true, At: time.Now().UTC()})
			return nil
		}
	}

	res := s.labels.CreateLabels(ctx, labels.Request{
		TransactionID: msg.TransactionID,
		Provider:      msg.Provider,
		Customer:      msg.Customer,
		ReturnAddress: msg.ReturnAddress,
		Parcel:        msg.Parcel,
		BookingStart:  msg.BookingStart,
		LenderPhone:   msg.Provider.Phone,
	})
	if ctx.Err() != nil && !res.Success {
		return ctx.Err()
	}
	if !res.Success {
		s.report(Failure{TransactionID: msg.TransactionID, Reason: res.Reason, Retryable: res.Retryable, At: time.Now().UTC()})
		return nil
	}
	if res.ReturnReason != "" {
		s.report(Failure{TransactionID: msg.TransactionID, Reason: "return_" + res.ReturnReason, At: time.Now().UTC()})
	}
	return nil
}

// HandleMessage adapts HandleAccepted to the raw consumer callback. Malformed payloads are
// logged and committed.
func (s *Service) HandleMessage(ctx context.Context) func(key, value []byte) error {
	return func(key, value []byte) error {
		var msg messages.TransactionAccepted
		if err := json.Unmarshal(value, &msg); err != nil {
			s.log.Error("malformed transaction.accepted message", zap.ByteString("key", key), zap.Error(err))
			return nil
		}
		if err := msg.Validate(); err != nil {
			s.log.Error("invalid transaction.accepted message", zap.ByteString("key", key), zap.Error(err))
			return nil
		}
		return s.HandleAccepted(ctx, msg)
	}
}

func (s *Service) report(f Failure) {
	select {
	case s.failures <- f:
	default:
		s.log.Error("failure channel full, dropping report",
			zap.String("transaction_id", f.TransactionID),
			zap.String("reason", f.Reason),
		)
	}
}

// RunReporter drains Failures until ctx is done.
func (s *Service) RunReporter(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f := <-s.failures:
			s.log.Warn("fulfillment failed",
				zap.String("transaction_id", f.TransactionID),
				zap.String("reason", f.Reason),
				zap.Bool("retryable", f.Retryable),
			)
			if s.metrics != nil {
				s.metrics.FulfillmentFailure(f.Reason)
			}
		}
	}
}
