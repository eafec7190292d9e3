package models

import (
	"strings"
	"time"
)

type Leg string

const (
	LegOutbound Leg = "outbound"
	LegReturn   Leg = "return"
)

// DeliveryPhase определяет, какие классы ссылок можно показывать получателю.
type DeliveryPhase string

const (
	PhaseInitialLender DeliveryPhase = "initial-lender"
	PhaseReturn        DeliveryPhase = "return"
	PhaseReminder      DeliveryPhase = "reminder"
	// PhaseTransit is used for in-transit updates where only a tracking page makes sense.
	PhaseTransit DeliveryPhase = "transit"
)

// ShipmentArtifacts is the canonical, carrier-independent result of a label purchase.
type ShipmentArtifacts struct {
	Carrier              string    `json:"carrier"`
	Service              string    `json:"service,omitempty"`
	TrackingNumber       string    `json:"trackingNumber"`
	TrackingURL          string    `json:"trackingUrl,omitempty"`
	LabelURL             string    `json:"labelUrl,omitempty"`
	QRURL                string    `json:"qrUrl,omitempty"`
	PurchasedAt          time.Time `json:"purchasedAt"`
	CarrierTransactionID string    `json:"carrierTransactionId,omitempty"`
}

func (a ShipmentArtifacts) Empty() bool {
	return a.TrackingNumber == "" && a.LabelURL == "" && a.QRURL == ""
}

// Fields returns the artifacts in the protected-data shape.
func (a ShipmentArtifacts) Fields() map[string]any {
	out := map[string]any{
		"carrier":        a.Carrier,
		"trackingNumber": a.TrackingNumber,
	}
	setIf(out, "service", a.Service)
	setIf(out, "trackingUrl", a.TrackingURL)
	setIf(out, "labelUrl", a.LabelURL)
	setIf(out, "qrUrl", a.QRURL)
	setIf(out, "carrierTransactionId", a.CarrierTransactionID)
	if !a.PurchasedAt.IsZero() {
		out["purchasedAt"] = a.PurchasedAt.UTC().Format(time.RFC3339)
	}
	return out
}

// ArtifactsFromFields is the inverse of Fields. Unknown keys are ignored.
func ArtifactsFromFields(m map[string]any) ShipmentArtifacts {
	a := ShipmentArtifacts{
		Carrier:              StringField(m, "carrier"),
		Service:              StringField(m, "service"),
		TrackingNumber:       StringField(m, "trackingNumber"),
		TrackingURL:          StringField(m, "trackingUrl"),
		LabelURL:             StringField(m, "labelUrl"),
		QRURL:                StringField(m, "qrUrl"),
		CarrierTransactionID: StringField(m, "carrierTransactionId"),
	}
	if t, ok := TimeField(m, "purchasedAt"); ok {
		a.PurchasedAt = t
	}
	return a
}

type Address struct {
	Name    string `json:"name,omitempty"`
	Street1 string `json:"street1"`
	Street2 string `json:"street2,omitempty"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
	Country string `json:"country,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
}

// Complete reports whether the address has everything a carrier needs to rate it.
func (a Address) Complete() bool {
	return strings.TrimSpace(a.Street1) != "" &&
		strings.TrimSpace(a.City) != "" &&
		strings.TrimSpace(a.State) != "" &&
		strings.TrimSpace(a.Zip) != ""
}

type Parcel struct {
	Length       float64 `json:"length"`
	Width        float64 `json:"width"`
	Height       float64 `json:"height"`
	DistanceUnit string  `json:"distanceUnit"`
	Weight       float64 `json:"weight"`
	MassUnit     string  `json:"massUnit"`
}

// Reason codes for LabelResult.
const (
	ReasonIncompleteProviderAddress = "incomplete_provider_address"
	ReasonIncompleteCustomerAddress = "incomplete_customer_address"
	ReasonNoShippingRates           = "no_shipping_rates"
	ReasonLabelPurchaseFailed       = "label_purchase_failed"
	ReasonCarrierAPIError           = "shippo_api_error"
	ReasonTransactionLookupFailed   = "transaction_lookup_failed"
	ReasonMissingTransactionID      = "missing_transaction_id"
)

type LabelResult struct {
	TransactionID string `json:"transactionId"`
	Success       bool   `json:"success"`
	Reason        string `json:"reason,omitempty"`
	// Retryable is set only for transport-level carrier failures where no label was bought.
	Retryable bool `json:"retryable,omitempty"`

	Outbound        *ShipmentArtifacts `json:"outbound,omitempty"`
	OutboundReused  bool               `json:"outboundReused,omitempty"`
	Return          *ShipmentArtifacts `json:"return,omitempty"`
	ReturnReason    string             `json:"returnReason,omitempty"`
	ShipBy          *time.Time         `json:"shipBy,omitempty"`
	Persisted       bool               `json:"persisted"`
	Notification    string             `json:"notification,omitempty"`
	NotificationErr string             `json:"notificationError,omitempty"`
}

func setIf(m map[string]any, k, v string) {
	if v != "" {
		m[k] = v
	}
}
