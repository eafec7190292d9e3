package shortener

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Client calls a short-link service: POST {base}/links {"url": ...} -> {"shortUrl": ...}.
type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
}

func New(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpc:   &http.Client{Timeout: timeout},
	}
}

type shortenReq struct {
	URL string `json:"url"`
}

type shortenResp struct {
	ShortURL string `json:"shortUrl"`
	Short    string `json:"short_url"`
}

func (c *Client) Shorten(ctx context.Context, longURL string) (string, error) {
	if c.baseURL == "" {
		return "", errors.New("shortener base url is not configured")
	}
	body, err := json.Marshal(shortenReq{URL: longURL})
	if err != nil {
		return "", errors.Wrap(err, "marshal")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/links", bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "new request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "shorten request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", errors.Errorf("shortener http %d", resp.StatusCode)
	}
	var out shortenResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", errors.Wrap(err, "decode shortener response")
	}
	short := out.ShortURL
	if short == "" {
		short = out.Short
	}
	if short == "" {
		return "", errors.New("shortener returned empty url")
	}
	return short, nil
}
