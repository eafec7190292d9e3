package carrier

import (
	"context"

	"github.com/BearBump/ShipBox/internal/models"
	"github.com/pkg/errors"
)

var (
	// ErrAPI marks transport-level failures (network, timeout, 5xx, 429). Nothing was bought.
	ErrAPI = errors.New("carrier api error")
	// ErrRejected marks a request the carrier understood and refused (4xx).
	ErrRejected = errors.New("carrier rejected request")
)

type Rate struct {
	ObjectID      string
	Provider      string
	ServiceLevel  string
	Amount        string
	Currency      string
	EstimatedDays int
}

type Message struct {
	Source string `json:"source,omitempty"`
	Code   string `json:"code,omitempty"`
	Text   string `json:"text,omitempty"`
}

type Shipment struct {
	ObjectID string
	Status   string
	Rates    []Rate
	Messages []Message
	// Diagnostics keeps whatever the carrier said about accounts/validation, for logging only.
	Diagnostics map[string]any
}

type PurchaseOptions struct {
	LabelFileType string
	QRCode        bool
	Metadata      string
}

const PurchaseStatusSuccess = "SUCCESS"

type Purchase struct {
	Status    string
	Artifacts models.ShipmentArtifacts
	Messages  []Message
}

type Client interface {
	CreateShipment(ctx context.Context, from, to models.Address, parcel models.Parcel, metadata string) (Shipment, error)
	PurchaseLabel(ctx context.Context, rate Rate, opts PurchaseOptions) (Purchase, error)
}
