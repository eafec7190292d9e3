package webhooks_api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/BearBump/ShipBox/internal/broker/messages"
	"github.com/BearBump/ShipBox/internal/services/webhooks"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	SignatureHeader = "X-Signature"
	maxBodyBytes    = 1 << 20
)

type TrackingEventHandler interface {
	HandleTrackingEvent(ctx context.Context, body []byte, signature string) webhooks.Result
}

type Publisher interface {
	PublishAccepted(ctx context.Context, topic string, m messages.TransactionAccepted) error
}

type WebhooksAPI struct {
	events TrackingEventHandler
	pub    Publisher
	topic  string
	log    *zap.Logger
	now    func() time.Time
}

func New(events TrackingEventHandler, pub Publisher, topic string, log *zap.Logger) *WebhooksAPI {
	if topic == "" {
		topic = messages.TopicTransactionAccepted
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &WebhooksAPI{
		events: events,
		pub:    pub,
		topic:  topic,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (a *WebhooksAPI) Routes(r chi.Router) {
	r.Post("/webhooks/carrier-tracking", a.carrierTracking)
	r.Post("/api/v1/transactions/{id}/accepted", a.transactionAccepted)
}

func (a *WebhooksAPI) carrierTracking(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"reason": "unreadable_body"})
		return
	}
	res := a.events.HandleTrackingEvent(r.Context(), body, r.Header.Get(SignatureHeader))
	writeJSON(w, res.Status, res)
}

// transactionAccepted queues label creation. The body is a TransactionAccepted without ids;
// the path id wins over anything in the body.
func (a *WebhooksAPI) transactionAccepted(w http.ResponseWriter, r *http.Request) {
	var m messages.TransactionAccepted
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&m); err != nil && err != io.EOF {
		writeJSON(w, http.StatusBadRequest, map[string]string{"reason": "malformed_payload"})
		return
	}
	m.TransactionID = chi.URLParam(r, "id")
	m.EventID = uuid.NewString()
	if m.AcceptedAt.IsZero() {
		m.AcceptedAt = a.now()
	}
	if err := m.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"reason": err.Error()})
		return
	}

	if err := a.pub.PublishAccepted(r.Context(), a.topic, m); err != nil {
		a.log.Error("publish transaction accepted",
			zap.String("transaction_id", m.TransactionID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"reason": "queue_unavailable"})
		return
	}

	a.log.Info("transaction accepted queued",
		zap.String("transaction_id", m.TransactionID),
		zap.String("event_id", m.EventID),
	)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"transactionId": m.TransactionID,
		"eventId":       m.EventID,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
