package flexhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/BearBump/ShipBox/internal/integrations/marketplace"
	"github.com/BearBump/ShipBox/internal/models"
	"github.com/pkg/errors"
)

// Client is the marketplace platform over its integration HTTP API.
//
//	GET  /v1/transactions/{id}
//	GET  /v1/transactions?limit=N           (newest first)
//	POST /v1/transactions/{id}/protected-data {"expectedVersion": v, "protectedData": {...}}
type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
}

func New(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpc:   &http.Client{Timeout: timeout},
	}
}

type partyDTO struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type transactionDTO struct {
	ID            string         `json:"id"`
	Version       int64          `json:"version"`
	BookingStart  *time.Time     `json:"bookingStart,omitempty"`
	Provider      partyDTO       `json:"provider"`
	Customer      partyDTO       `json:"customer"`
	ProtectedData map[string]any `json:"protectedData"`
	Metadata      map[string]any `json:"metadata"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

func (d transactionDTO) model() *models.Transaction {
	return &models.Transaction{
		ID:            d.ID,
		Version:       d.Version,
		BookingStart:  d.BookingStart,
		Provider:      models.Party(d.Provider),
		Customer:      models.Party(d.Customer),
		ProtectedData: d.ProtectedData,
		Metadata:      d.Metadata,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

func (c *Client) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	var out transactionDTO
	if err := c.do(ctx, http.MethodGet, "/v1/transactions/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, errors.Wrapf(err, "get transaction %s", id)
	}
	return out.model(), nil
}

type updateReq struct {
	ExpectedVersion int64          `json:"expectedVersion"`
	ProtectedData   map[string]any `json:"protectedData"`
}

func (c *Client) UpdateProtectedData(ctx context.Context, id string, expectedVersion int64, data map[string]any) error {
	err := c.do(ctx, http.MethodPost, "/v1/transactions/"+url.PathEscape(id)+"/protected-data",
		updateReq{ExpectedVersion: expectedVersion, ProtectedData: data}, nil)
	return errors.Wrapf(err, "update protected data %s", id)
}

func (c *Client) ListRecentTransactions(ctx context.Context, limit int) ([]*models.Transaction, error) {
	var out struct {
		Data []transactionDTO `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/transactions?limit="+strconv.Itoa(limit), nil, &out); err != nil {
		return nil, errors.Wrap(err, "list transactions")
	}
	txs := make([]*models.Transaction, 0, len(out.Data))
	for _, d := range out.Data {
		txs = append(txs, d.model())
	}
	return txs, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "marshal")
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Wrap(err, "marketplace request")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return marketplace.ErrNotFound
	case resp.StatusCode == http.StatusConflict:
		_, _ = io.Copy(io.Discard, resp.Body)
		return marketplace.ErrConflict
	case resp.StatusCode/100 != 2:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return errors.Errorf("marketplace http %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return errors.Wrap(json.NewDecoder(resp.Body).Decode(out), "decode")
}
