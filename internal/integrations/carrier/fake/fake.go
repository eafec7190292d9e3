package fake

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/BearBump/ShipBox/internal/integrations/carrier"
	"github.com/BearBump/ShipBox/internal/models"
	"github.com/pkg/errors"
)

// NoRatesZip — при этом индексе получателя fake возвращает пустой список тарифов (для локальной проверки no_shipping_rates).
const NoRatesZip = "00000"

// FakeClient — детерминированный "перевозчик" для локальных прогонов без Shippo.
// Тарифы и трек-номера зависят только от входных адресов/rate id.
type FakeClient struct {
	now func() time.Time
}

func New() *FakeClient {
	return &FakeClient{now: func() time.Time { return time.Now().UTC() }}
}

func (f *FakeClient) CreateShipment(ctx context.Context, from, to models.Address, parcel models.Parcel, metadata string) (carrier.Shipment, error) {
	if err := ctx.Err(); err != nil {
		return carrier.Shipment{}, errors.Wrapf(carrier.ErrAPI, "fake: %v", err)
	}

	v := hash(from.Zip, to.Zip, metadata)
	sh := carrier.Shipment{
		ObjectID: fmt.Sprintf("fake_shp_%08x", v),
		Status:   "SUCCESS",
	}
	if to.Zip == NoRatesZip {
		sh.Messages = []carrier.Message{{Source: "fake", Text: "no service to destination"}}
		sh.Diagnostics = map[string]any{"carrier_accounts": []any{"fake-usps", "fake-ups"}}
		return sh, nil
	}

	sh.Rates = []carrier.Rate{
		{ObjectID: fmt.Sprintf("fake_rate_usps_%08x", v), Provider: "USPS", ServiceLevel: "Ground Advantage", Amount: "7.10", Currency: "USD", EstimatedDays: 3},
		{ObjectID: fmt.Sprintf("fake_rate_ups_%08x", v), Provider: "UPS", ServiceLevel: "Ground", Amount: "11.20", Currency: "USD", EstimatedDays: 2},
	}
	return sh, nil
}

func (f *FakeClient) PurchaseLabel(ctx context.Context, rate carrier.Rate, opts carrier.PurchaseOptions) (carrier.Purchase, error) {
	if err := ctx.Err(); err != nil {
		return carrier.Purchase{}, errors.Wrapf(carrier.ErrAPI, "fake: %v", err)
	}
	if rate.ObjectID == "" {
		return carrier.Purchase{}, errors.Wrap(carrier.ErrRejected, "fake: rate id is required")
	}

	v := hash(rate.ObjectID)
	provider := strings.ToUpper(rate.Provider)
	tn := fmt.Sprintf("FAKE%s%010d", provider, v)

	a := models.ShipmentArtifacts{
		Carrier:              provider,
		Service:              rate.ServiceLevel,
		TrackingNumber:       tn,
		TrackingURL:          "https://fake-carrier.local/track/" + tn,
		LabelURL:             "https://fake-carrier.local/labels/" + tn + ".pdf",
		PurchasedAt:          f.now(),
		CarrierTransactionID: fmt.Sprintf("fake_txn_%08x", v),
	}
	if opts.QRCode {
		a.QRURL = "https://fake-carrier.local/qr/" + tn + ".png"
	}

	return carrier.Purchase{Status: carrier.PurchaseStatusSuccess, Artifacts: a}, nil
}

func hash(parts ...string) uint32 {
	h := fnv.New32a()
	for _, p := range parts {
		_, _ = h.Write([]byte(p))
		_, _ = h.Write([]byte("|"))
	}
	return h.Sum32()
}
