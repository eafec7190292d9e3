package webhooks

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/BearBump/ShipBox/internal/integrations/marketplace"
	"github.com/BearBump/ShipBox/internal/models"
	"github.com/BearBump/ShipBox/internal/services/notify"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	ModeLive = "live"
	ModeTest = "test"

	DefaultScanLimit = 200
)

type Notifier interface {
	Notify(ctx context.Context, req notify.Request) notify.Result
}

type MessageComposer interface {
	Func(m notify.Message) notify.ComposeFunc
}

// Merger builds the patch from the freshly read transaction on every write attempt.
type Merger interface {
	MergeProtectedFieldsFunc(ctx context.Context, txID string, build func(tx *models.Transaction) map[string]any) error
}

type Metrics interface {
	WebhookEvent(class string, status int)
}

type Config struct {
	Secret    string
	Mode      string
	ScanLimit int
}

type Result struct {
	Status int    `json:"-"`
	Reason string `json:"reason"`
}

type Handler struct {
	store    marketplace.Store
	notifier Notifier
	composer MessageComposer
	merger   Merger
	cfg      Config
	log      *zap.Logger
	metrics  Metrics
	now      func() time.Time
}

func New(store marketplace.Store, notifier Notifier, composer MessageComposer, merger Merger, cfg Config, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	cfg.Mode = strings.ToLower(strings.TrimSpace(cfg.Mode))
	if cfg.Mode != ModeTest {
		cfg.Mode = ModeLive
	}
	if cfg.ScanLimit <= 0 {
		cfg.ScanLimit = DefaultScanLimit
	}
	if cfg.Secret == "" {
		log.Warn("webhook secret is not set, signatures are NOT verified (degraded mode)")
	}
	return &Handler{
		store:    store,
		notifier: notifier,
		composer: composer,
		merger:   merger,
		cfg:      cfg,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (h *Handler) WithMetrics(m Metrics) *Handler {
	h.metrics = m
	return h
}

// HandleTrackingEvent reconciles one carrier tracking webhook. The returned status is what the
// HTTP layer answers: 2xx once handled or deliberately ignored, 4xx/5xx so the carrier retries.
func (h *Handler) HandleTrackingEvent(ctx context.Context, body []byte, signature string) Result {
	res, class := h.handle(ctx, body, signature)
	if h.metrics != nil {
		h.metrics.WebhookEvent(string(class), res.Status)
	}
	return res
}

func (h *Handler) handle(ctx context.Context, body []byte, signature string) (Result, models.TrackingClass) {
	if h.cfg.Secret == "" {
		h.log.Debug("webhook signature not verified (degraded mode)")
	} else if !VerifySignature(h.cfg.Secret, body, signature) {
		h.log.Warn("webhook signature mismatch")
		return Result{Status: http.StatusForbidden, Reason: "invalid_signature"}, ""
	}

	ev, err := parseEvent(body)
	if err != nil {
		h.log.Warn("malformed webhook", zap.Error(err))
		return Result{Status: http.StatusBadRequest, Reason: "malformed_payload"}, ""
	}

	tn := ev.Data.TrackingNumber
	log := h.log.With(zap.String("tracking_number", tn), zap.String("carrier", ev.Data.Carrier))

	if ev.Test != (h.cfg.Mode == ModeTest) {
		log.Debug("webhook ignored: mode mismatch", zap.Bool("test", ev.Test), zap.String("mode", h.cfg.Mode))
		return Result{Status: http.StatusOK, Reason: "mode_mismatch"}, models.ClassIgnored
	}

	class := Classify(ev.Data.TrackingStatus.Status)
	if class == models.ClassIgnored {
		log.Debug("webhook ignored: status", zap.String("status", ev.Data.TrackingStatus.Status))
		return Result{Status: http.StatusOK, Reason: "status_ignored"}, class
	}

	tx, err := h.resolveTransaction(ctx, ev)
	if err != nil {
		if errors.Is(err, marketplace.ErrNotFound) {
			log.Warn("webhook for unknown transaction", zap.String("transaction_id", ev.TransactionID()))
			return Result{Status: http.StatusNotFound, Reason: "transaction_not_found"}, class
		}
		log.Error("resolve transaction", zap.Error(err))
		return Result{Status: http.StatusInternalServerError, Reason: "transaction_lookup_failed"}, class
	}
	log = log.With(zap.String("transaction_id", tx.ID))

	leg, ok := tx.LegForTrackingNumber(tn)
	if !ok {
		log.Warn("tracking number matches no leg of the transaction")
		return Result{Status: http.StatusNotFound, Reason: "leg_not_matched"}, class
	}
	log = log.With(zap.String("leg", string(leg)))

	cur := tx.LegState(leg)
	next, ok := models.NextLegState(leg, cur, class)
	if !ok {
		log.Debug("webhook already reflected", zap.String("state", string(cur)), zap.String("class", string(class)))
		return Result{Status: http.StatusOK, Reason: "already_processed"}, class
	}
	tag, ok := models.TagFor(leg, next)
	if !ok {
		return Result{Status: http.StatusOK, Reason: "no_message"}, class
	}

	phone := counterpartyPhone(leg, tx, ev.meta)
	if phone == "" {
		log.Warn("no phone for counterparty")
		return Result{Status: http.StatusBadRequest, Reason: "missing_phone"}, class
	}

	nres := h.notifier.Notify(ctx, notify.Request{
		TransactionID: tx.ID,
		EventTag:      tag,
		Phone:         phone,
		Fingerprint:   notify.Fingerprint(tn, tx.ID, tag),
		Transaction:   tx,
		Compose: h.composer.Func(notify.Message{
			Tag:       tag,
			Artifacts: tx.Artifacts(leg),
			Title:     models.StringField(tx.Metadata, "listingTitle"),
		}),
		Tags: map[string]string{"leg": string(leg)},
	})

	now := h.now()
	lastStatus := map[string]any{
		"status":         ev.Data.TrackingStatus.Status,
		"statusDetails":  ev.Data.TrackingStatus.StatusDetails,
		"statusDate":     ev.Data.TrackingStatus.StatusDate,
		"leg":            string(leg),
		"trackingNumber": tn,
		"at":             now.Format(time.RFC3339),
	}

	// Дубликат в полёте не подтверждает отправку: состояние двигает только отправивший.
	advance := nres.Outcome == notify.OutcomeSent ||
		(nres.Outcome == notify.OutcomeSkipped && nres.Reason == notify.ReasonAlreadyRecorded)

	var written models.LegState
	err = h.merger.MergeProtectedFieldsFunc(ctx, tx.ID, func(fresh *models.Transaction) map[string]any {
		written = ""
		if !advance {
			return map[string]any{models.KeyLastTrackingStatus: lastStatus}
		}
		// переход проверяется заново по сохранённому состоянию
		to, ok := models.NextLegState(leg, fresh.LegState(leg), class)
		if !ok {
			return nil
		}
		written = to
		legPatch := map[string]any{"state": string(to)}
		switch class {
		case models.ClassFirstScan:
			legPatch["firstScanAt"] = now.Format(time.RFC3339)
		case models.ClassDelivered:
			legPatch["deliveredAt"] = now.Format(time.RFC3339)
		}
		return map[string]any{
			models.KeyLastTrackingStatus: lastStatus,
			string(leg):                  legPatch,
		}
	})
	if err != nil {
		log.Error("persist tracking state", zap.Error(err))
		if advance {
			return Result{Status: http.StatusInternalServerError, Reason: "persist_failed"}, class
		}
	}

	if !advance {
		if nres.Outcome == notify.OutcomeSkipped {
			log.Debug("notification in flight elsewhere, state not advanced")
			return Result{Status: http.StatusOK, Reason: "notification_in_flight"}, class
		}
		// SMS не ушло: состояние не двигаем, следующий webhook перевозчика повторит попытку.
		log.Warn("notification failed, state not advanced", zap.String("reason", nres.Reason))
		return Result{Status: http.StatusOK, Reason: "notification_failed"}, class
	}

	if written == "" {
		log.Info("tracking event superseded by a concurrent update",
			zap.String("event_tag", string(tag)),
			zap.String("planned_state", string(next)),
		)
		return Result{Status: http.StatusOK, Reason: "superseded"}, class
	}

	log.Info("tracking event reconciled",
		zap.String("event_tag", string(tag)),
		zap.String("state", string(written)),
		zap.String("notification", string(nres.Outcome)),
	)
	return Result{Status: http.StatusOK, Reason: "processed"}, class
}

func (h *Handler) resolveTransaction(ctx context.Context, ev *Event) (*models.Transaction, error) {
	if id := ev.TransactionID(); id != "" {
		tx, err := h.store.GetTransaction(ctx, id)
		if err == nil {
			return tx, nil
		}
		if !errors.Is(err, marketplace.ErrNotFound) {
			return nil, err
		}
	}
	return marketplace.FindByTrackingNumber(ctx, h.store, ev.Data.TrackingNumber, h.cfg.ScanLimit)
}

// counterpartyPhone: borrower for the outbound leg, lender for the return leg.
// Order: profile, protected data, event metadata.
func counterpartyPhone(leg models.Leg, tx *models.Transaction, meta map[string]any) string {
	party, pdKey, metaKeys := tx.Customer, models.KeyCustomerPhone, []string{"customerPhone", "borrowerPhone"}
	if leg == models.LegReturn {
		party, pdKey, metaKeys = tx.Provider, models.KeyProviderPhone, []string{"providerPhone", "lenderPhone"}
	}
	if party.Phone != "" {
		return party.Phone
	}
	if p := models.StringField(tx.ProtectedData, pdKey); p != "" {
		return p
	}
	for _, k := range metaKeys {
		if p := models.StringField(meta, k); p != "" {
			return p
		}
	}
	return ""
}
