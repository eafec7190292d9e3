package shippo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BearBump/ShipBox/internal/integrations/carrier"
	"github.com/BearBump/ShipBox/internal/models"
	"github.com/pkg/errors"
)

const DefaultBaseURL = "https://api.goshippo.com"

type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
	now     func() time.Time
}

func New(baseURL, token string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpc: &http.Client{
			Timeout: timeout,
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

type addressBody struct {
	Name    string `json:"name,omitempty"`
	Street1 string `json:"street1"`
	Street2 string `json:"street2,omitempty"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
}

type parcelBody struct {
	Length       string `json:"length"`
	Width        string `json:"width"`
	Height       string `json:"height"`
	DistanceUnit string `json:"distance_unit"`
	Weight       string `json:"weight"`
	MassUnit     string `json:"mass_unit"`
}

type shipmentReq struct {
	AddressFrom addressBody  `json:"address_from"`
	AddressTo   addressBody  `json:"address_to"`
	Parcels     []parcelBody `json:"parcels"`
	Async       bool         `json:"async"`
	Metadata    string       `json:"metadata,omitempty"`
}

type transactionReq struct {
	Rate            string `json:"rate"`
	LabelFileType   string `json:"label_file_type,omitempty"`
	Async           bool   `json:"async"`
	Metadata        string `json:"metadata,omitempty"`
	QRCodeRequested bool   `json:"qr_code_requested,omitempty"`
}

func (c *Client) CreateShipment(ctx context.Context, from, to models.Address, parcel models.Parcel, metadata string) (carrier.Shipment, error) {
	body := shipmentReq{
		AddressFrom: toAddressBody(from),
		AddressTo:   toAddressBody(to),
		Parcels:     []parcelBody{toParcelBody(parcel)},
		Async:       false,
		Metadata:    metadata,
	}

	var raw map[string]any
	if err := c.do(ctx, "/shipments/", body, &raw); err != nil {
		return carrier.Shipment{}, err
	}
	return normalizeShipment(raw), nil
}

func (c *Client) PurchaseLabel(ctx context.Context, rate carrier.Rate, opts carrier.PurchaseOptions) (carrier.Purchase, error) {
	if rate.ObjectID == "" {
		return carrier.Purchase{}, errors.Wrap(carrier.ErrRejected, "rate id is required")
	}
	fileType := opts.LabelFileType
	if fileType == "" {
		fileType = "PDF_4x6"
	}
	body := transactionReq{
		Rate:            rate.ObjectID,
		LabelFileType:   fileType,
		Async:           false,
		Metadata:        opts.Metadata,
		QRCodeRequested: opts.QRCode,
	}

	var raw map[string]any
	if err := c.do(ctx, "/transactions/", body, &raw); err != nil {
		return carrier.Purchase{}, err
	}
	return normalizePurchase(raw, rate, c.now()), nil
}

func (c *Client) do(ctx context.Context, path string, in any, out any) error {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return errors.Wrap(err, "parse base url")
	}
	b, err := json.Marshal(in)
	if err != nil {
		return errors.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(b))
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "ShippoToken "+c.token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Wrapf(carrier.ErrAPI, "do request: %v", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return errors.Wrapf(carrier.ErrAPI, "read body: %v", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode/100 == 5:
		return errors.Wrapf(carrier.ErrAPI, "shippo http %d", resp.StatusCode)
	case resp.StatusCode/100 != 2:
		return errors.Wrapf(carrier.ErrRejected, "shippo http %d: %s", resp.StatusCode, truncate(string(payload), 512))
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return errors.Wrapf(carrier.ErrAPI, "decode: %v", err)
	}
	return nil
}

func toAddressBody(a models.Address) addressBody {
	country := a.Country
	if country == "" {
		country = "US"
	}
	return addressBody{
		Name:    a.Name,
		Street1: a.Street1,
		Street2: a.Street2,
		City:    a.City,
		State:   a.State,
		Zip:     a.Zip,
		Country: country,
		Phone:   a.Phone,
		Email:   a.Email,
	}
}

func toParcelBody(p models.Parcel) parcelBody {
	du := p.DistanceUnit
	if du == "" {
		du = "in"
	}
	mu := p.MassUnit
	if mu == "" {
		mu = "oz"
	}
	return parcelBody{
		Length:       formatDim(p.Length),
		Width:        formatDim(p.Width),
		Height:       formatDim(p.Height),
		DistanceUnit: du,
		Weight:       formatDim(p.Weight),
		MassUnit:     mu,
	}
}

func formatDim(v float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
