package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BearBump/ShipBox/internal/services/deadline"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

const DefaultBaseURL = "https://maps.googleapis.com"

var ErrNoResults = errors.New("geocode: no results")

// Client talks to a Google-geocoding-compatible API. Without an API key it reports
// Enabled()=false and never goes to the network.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
	limiter *rate.Limiter
}

func New(baseURL, apiKey string, timeout time.Duration, perSecond float64) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = deadline.DefaultLookupTimeout
	}
	if perSecond <= 0 {
		perSecond = 10
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpc:   &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(perSecond), int(perSecond)+1),
	}
}

func (c *Client) Enabled() bool { return c.apiKey != "" }

type geocodeResp struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

func (c *Client) Geocode(ctx context.Context, zip string) (deadline.Point, error) {
	if !c.Enabled() {
		return deadline.Point{}, errors.New("geocode: api key is not configured")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return deadline.Point{}, errors.Wrap(err, "geocode rate limit")
	}

	q := url.Values{}
	q.Set("address", zip)
	q.Set("components", "country:US")
	q.Set("key", c.apiKey)
	u := c.baseURL + "/maps/api/geocode/json?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return deadline.Point{}, errors.Wrap(err, "new request")
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return deadline.Point{}, errors.Wrap(err, "geocode request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return deadline.Point{}, errors.Errorf("geocode http %d", resp.StatusCode)
	}

	var out geocodeResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return deadline.Point{}, errors.Wrap(err, "decode geocode")
	}
	switch out.Status {
	case "OK":
	case "ZERO_RESULTS":
		return deadline.Point{}, errors.Wrapf(ErrNoResults, "zip %s", zip)
	default:
		return deadline.Point{}, errors.Errorf("geocode status %s: %s", out.Status, out.ErrorMessage)
	}
	if len(out.Results) == 0 {
		return deadline.Point{}, errors.Wrapf(ErrNoResults, "zip %s", zip)
	}
	loc := out.Results[0].Geometry.Location
	return deadline.Point{Lat: loc.Lat, Lng: loc.Lng}, nil
}
