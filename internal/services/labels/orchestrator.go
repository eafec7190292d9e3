package labels

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BearBump/ShipBox/internal/integrations/carrier"
	"github.com/BearBump/ShipBox/internal/integrations/marketplace"
	"github.com/BearBump/ShipBox/internal/models"
	"github.com/BearBump/ShipBox/internal/services/deadline"
	"github.com/BearBump/ShipBox/internal/services/notify"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type ShipByCalculator interface {
	ComputeShipBy(ctx context.Context, in deadline.Input) (time.Time, bool)
}

type Merger interface {
	MergeProtectedFields(ctx context.Context, txID string, patch map[string]any) error
}

type Notifier interface {
	Notify(ctx context.Context, req notify.Request) notify.Result
}

type MessageComposer interface {
	Func(m notify.Message) notify.ComposeFunc
}

type Metrics interface {
	LabelResult(result, reason string)
}

type Config struct {
	// ProviderPreference is the ordered, case-insensitive list of carriers to pick a rate from.
	ProviderPreference []string
	// QRCarriers lists carriers that support QR (paperless) labels.
	QRCarriers    []string
	LabelFileType string
	DefaultParcel models.Parcel
	// ReturnLabels buys a return leg to the provider address when the request has no explicit one.
	ReturnLabels bool

	LeadMode       deadline.Mode
	// LeadDaysStatic nil means the calculator default; 0 is a same-day ship-by.
	LeadDaysStatic *int
	LeadDaysMax    int
}

func DefaultConfig() Config {
	return Config{
		ProviderPreference: []string{"USPS", "UPS"},
		QRCarriers:         []string{"USPS"},
		LabelFileType:      "PDF_4x6",
		DefaultParcel: models.Parcel{
			Length: 12, Width: 10, Height: 6, DistanceUnit: "in",
			Weight: 48, MassUnit: "oz",
		},
		LeadMode:    deadline.ModeStatic,
		LeadDaysMax: deadline.DefaultLeadDaysMax,
	}
}

type Request struct {
	TransactionID string
	Provider      models.Address
	Customer      models.Address
	ReturnAddress *models.Address
	Parcel        *models.Parcel
	// BookingStart overrides the transaction's booking start (RFC 3339 or 2006-01-02).
	BookingStart string
	LenderPhone  string
}

type Orchestrator struct {
	carrier  carrier.Client
	store    marketplace.Store
	shipBy   ShipByCalculator
	merger   Merger
	notifier Notifier
	composer MessageComposer
	cfg      Config
	log      *zap.Logger
	metrics  Metrics

	sf singleflight.Group
}

func New(c carrier.Client, store marketplace.Store, shipBy ShipByCalculator, merger Merger, notifier Notifier, composer MessageComposer, cfg Config, log *zap.Logger) *Orchestrator {
	def := DefaultConfig()
	if len(cfg.ProviderPreference) == 0 {
		cfg.ProviderPreference = def.ProviderPreference
	}
	if cfg.LabelFileType == "" {
		cfg.LabelFileType = def.LabelFileType
	}
	if cfg.DefaultParcel == (models.Parcel{}) {
		cfg.DefaultParcel = def.DefaultParcel
	}
	if cfg.LeadMode == "" {
		cfg.LeadMode = def.LeadMode
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		carrier:  c,
		store:    store,
		shipBy:   shipBy,
		merger:   merger,
		notifier: notifier,
		composer: composer,
		cfg:      cfg,
		log:      log,
	}
}

func (o *Orchestrator) WithMetrics(m Metrics) *Orchestrator {
	o.metrics = m
	return o
}

// CreateLabels buys the outbound (and optionally return) label for a transaction, records the
// artifacts and tells the lender. Concurrent calls for one transaction share a single execution,
// and a leg whose artifacts are already stored is never bought again.
func (o *Orchestrator) CreateLabels(ctx context.Context, req Request) models.LabelResult {
	res := o.validate(req)
	if res == nil {
		v, _, _ := o.sf.Do(req.TransactionID, func() (any, error) {
			return o.createLabels(ctx, req), nil
		})
		r := v.(models.LabelResult)
		res = &r
	}

	if o.metrics != nil {
		result := "success"
		if !res.Success {
			result = "failure"
		}
		o.metrics.LabelResult(result, res.Reason)
	}
	return *res
}

func (o *Orchestrator) validate(req Request) *models.LabelResult {
	fail := func(reason string) *models.LabelResult {
		o.log.Warn("label request rejected", zap.String("transaction_id", req.TransactionID), zap.String("reason", reason))
		return &models.LabelResult{TransactionID: req.TransactionID, Reason: reason}
	}
	switch {
	case strings.TrimSpace(req.TransactionID) == "":
		return fail(models.ReasonMissingTransactionID)
	case !req.Provider.Complete():
		return fail(models.ReasonIncompleteProviderAddress)
	case !req.Customer.Complete():
		return fail(models.ReasonIncompleteCustomerAddress)
	}
	return nil
}

func (o *Orchestrator) createLabels(ctx context.Context, req Request) models.LabelResult {
	log := o.log.With(zap.String("transaction_id", req.TransactionID))
	res := models.LabelResult{TransactionID: req.TransactionID}

	tx, err := o.store.GetTransaction(ctx, req.TransactionID)
	if err != nil {
		// Без текущего состояния нельзя гарантировать, что лейбл ещё не куплен.
		log.Error("read transaction before purchase", zap.Error(err))
		res.Reason = models.ReasonTransactionLookupFailed
		res.Retryable = true
		return res
	}

	parcel := o.cfg.DefaultParcel
	if req.Parcel != nil {
		parcel = *req.Parcel
	}

	outbound := tx.Artifacts(models.LegOutbound)
	newOutbound := false
	if !outbound.Empty() {
		res.OutboundReused = true
		log.Info("outbound label already purchased, reusing", zap.String("tracking_number", outbound.TrackingNumber))
	} else {
		a, reason, retryable := o.buyLeg(ctx, log, req.TransactionID, models.LegOutbound, req.Provider, req.Customer, parcel)
		if reason != "" {
			res.Reason = reason
			res.Retryable = retryable
			return res
		}
		outbound = a
		newOutbound = true
	}
	res.Success = true
	res.Outbound = &outbound

	var ret *models.ShipmentArtifacts
	newReturn := false
	if dest, ok := o.returnDestination(req); ok {
		existing := tx.Artifacts(models.LegReturn)
		if !existing.Empty() {
			ret = &existing
		} else {
			a, reason, _ := o.buyLeg(ctx, log, req.TransactionID, models.LegReturn, req.Customer, dest, parcel)
			if reason != "" {
				res.ReturnReason = reason
			} else {
				ret = &a
				newReturn = true
			}
		}
		res.Return = ret
	}

	shipBy, hasShipBy := o.computeShipBy(ctx, req, tx)
	if hasShipBy {
		res.ShipBy = &shipBy
	}

	patch := map[string]any{}
	out := outbound.Fields()
	if newOutbound {
		out["state"] = string(models.LegUnshipped)
	}
	if hasShipBy {
		out["shipByDate"] = shipBy.Format(time.RFC3339)
	}
	patch[models.KeyOutbound] = out
	if ret != nil {
		rf := ret.Fields()
		if newReturn {
			rf["state"] = string(models.LegUnshipped)
		}
		patch[models.KeyReturn] = rf
	}
	if err := o.merger.MergeProtectedFields(ctx, req.TransactionID, patch); err != nil {
		log.Error("persist shipment artifacts", zap.Error(err))
	} else {
		res.Persisted = true
	}

	phone := lenderPhone(req, tx)
	nres := o.notifier.Notify(ctx, notify.Request{
		TransactionID: req.TransactionID,
		EventTag:      models.TagLabelReadyToLender,
		Phone:         phone,
		Fingerprint:   notify.Fingerprint(outbound.TrackingNumber, req.TransactionID, models.TagLabelReadyToLender),
		Transaction:   tx,
		Compose: o.composer.Func(notify.Message{
			Tag:       models.TagLabelReadyToLender,
			Artifacts: outbound,
			ShipBy:    res.ShipBy,
			Title:     models.StringField(tx.Metadata, "listingTitle"),
		}),
		Tags: map[string]string{"leg": string(models.LegOutbound)},
	})
	res.Notification = string(nres.Outcome)
	if nres.Err != nil {
		res.NotificationErr = nres.Err.Error()
	}

	log.Info("labels created",
		zap.String("tracking_number", outbound.TrackingNumber),
		zap.Bool("reused", res.OutboundReused),
		zap.Bool("persisted", res.Persisted),
		zap.String("notification", res.Notification),
	)
	return res
}

// buyLeg returns the artifacts, or a reason code (and whether retrying is safe).
func (o *Orchestrator) buyLeg(ctx context.Context, log *zap.Logger, txID string, leg models.Leg, from, to models.Address, parcel models.Parcel) (models.ShipmentArtifacts, string, bool) {
	log = log.With(zap.String("leg", string(leg)))
	meta := fmt.Sprintf("tx:%s leg:%s", txID, leg)

	sh, err := o.carrier.CreateShipment(ctx, from, to, parcel, meta)
	if err != nil {
		log.Error("create shipment", zap.Error(err))
		return models.ShipmentArtifacts{}, models.ReasonCarrierAPIError, errors.Is(err, carrier.ErrAPI)
	}

	rate, ok := SelectRate(sh.Rates, o.cfg.ProviderPreference)
	if !ok {
		log.Warn("no shipping rates",
			zap.String("reason", models.ReasonNoShippingRates),
			zap.Any("messages", sh.Messages),
			zap.Any("diagnostics", sh.Diagnostics),
		)
		return models.ShipmentArtifacts{}, models.ReasonNoShippingRates, false
	}

	opts := carrier.PurchaseOptions{
		LabelFileType: o.cfg.LabelFileType,
		QRCode:        o.qrCapable(rate.Provider),
		Metadata:      meta,
	}
	p, err := o.carrier.PurchaseLabel(ctx, rate, opts)
	if err != nil {
		if errors.Is(err, carrier.ErrAPI) {
			log.Error("purchase label transport failure", zap.Error(err))
			return models.ShipmentArtifacts{}, models.ReasonCarrierAPIError, true
		}
		log.Error("purchase label rejected", zap.Error(err))
		return models.ShipmentArtifacts{}, models.ReasonLabelPurchaseFailed, false
	}
	if !strings.EqualFold(p.Status, carrier.PurchaseStatusSuccess) {
		log.Error("label purchase not successful",
			zap.String("reason", models.ReasonLabelPurchaseFailed),
			zap.String("status", p.Status),
			zap.Any("messages", p.Messages),
		)
		return models.ShipmentArtifacts{}, models.ReasonLabelPurchaseFailed, false
	}
	if p.Artifacts.LabelURL == "" && p.Artifacts.QRURL == "" {
		log.Error("label purchased but carrier response has no label or qr url", zap.String("tracking_number", p.Artifacts.TrackingNumber))
	}
	return p.Artifacts, "", false
}

func (o *Orchestrator) returnDestination(req Request) (models.Address, bool) {
	if req.ReturnAddress != nil {
		if !req.ReturnAddress.Complete() {
			return models.Address{}, false
		}
		return *req.ReturnAddress, true
	}
	if o.cfg.ReturnLabels {
		return req.Provider, true
	}
	return models.Address{}, false
}

func (o *Orchestrator) computeShipBy(ctx context.Context, req Request, tx *models.Transaction) (time.Time, bool) {
	if o.shipBy == nil {
		return time.Time{}, false
	}
	start := req.BookingStart
	if start == "" && tx.BookingStart != nil {
		start = tx.BookingStart.Format(time.RFC3339)
	}
	leadDays := deadline.DefaultLeadDaysStatic
	if o.cfg.LeadDaysStatic != nil {
		leadDays = *o.cfg.LeadDaysStatic
	}
	return o.shipBy.ComputeShipBy(ctx, deadline.Input{
		BookingStart:   start,
		Mode:           o.cfg.LeadMode,
		LeadDaysStatic: leadDays,
		LeadDaysMax:    o.cfg.LeadDaysMax,
		OriginZip:      req.Provider.Zip,
		DestZip:        req.Customer.Zip,
	})
}

func (o *Orchestrator) qrCapable(provider string) bool {
	for _, c := range o.cfg.QRCarriers {
		if strings.EqualFold(c, provider) {
			return true
		}
	}
	return false
}

// SelectRate picks the first rate of the most preferred provider; when no preferred provider
// is offered it falls back to the first rate returned.
func SelectRate(rates []carrier.Rate, preference []string) (carrier.Rate, bool) {
	if len(rates) == 0 {
		return carrier.Rate{}, false
	}
	for _, p := range preference {
		for _, r := range rates {
			if strings.EqualFold(strings.TrimSpace(p), r.Provider) {
				return r, true
			}
		}
	}
	return rates[0], true
}

func lenderPhone(req Request, tx *models.Transaction) string {
	switch {
	case req.LenderPhone != "":
		return req.LenderPhone
	case tx.Provider.Phone != "":
		return tx.Provider.Phone
	case req.Provider.Phone != "":
		return req.Provider.Phone
	}
	return models.StringField(tx.ProtectedData, models.KeyProviderPhone)
}
