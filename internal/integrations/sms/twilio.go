package sms

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const DefaultTwilioBaseURL = "https://api.twilio.com"

var idempotencyNamespace = uuid.MustParse("6f1c2a4e-3b5d-4e8f-9a10-5c7d2e8b4f31")

// IdempotencyToken maps a notification key to a stable token; empty key gets a random one.
func IdempotencyToken(key string) string {
	if key == "" {
		return uuid.NewString()
	}
	return uuid.NewSHA1(idempotencyNamespace, []byte(key)).String()
}

// Twilio sends through the Messages resource (form POST, basic auth).
type Twilio struct {
	baseURL    string
	accountSID string
	authToken  string
	from       string
	httpc      *http.Client
}

func NewTwilio(baseURL, accountSID, authToken, from string, timeout time.Duration) *Twilio {
	if baseURL == "" {
		baseURL = DefaultTwilioBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Twilio{
		baseURL:    strings.TrimRight(baseURL, "/"),
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		httpc:      &http.Client{Timeout: timeout},
	}
}

type twilioResp struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (t *Twilio) Send(ctx context.Context, to, body, idempotencyKey string) (string, error) {
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", t.from)
	form.Set("Body", body)

	u := t.baseURL + "/2010-04-01/Accounts/" + url.PathEscape(t.accountSID) + "/Messages.json"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(form.Encode()))
	if err != nil {
		return "", errors.Wrap(err, "new request")
	}
	req.SetBasicAuth(t.accountSID, t.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	// Twilio дедуплицирует повторы с тем же токеном.
	req.Header.Set("I-Twilio-Idempotency-Token", IdempotencyToken(idempotencyKey))

	resp, err := t.httpc.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "twilio request")
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", errors.Wrap(err, "read twilio response")
	}
	var out twilioResp
	_ = json.Unmarshal(b, &out)

	if resp.StatusCode/100 != 2 {
		return "", errors.Errorf("twilio http %d: code=%d %s", resp.StatusCode, out.Code, out.Message)
	}
	if out.SID == "" {
		return "", errors.New("twilio response has no message sid")
	}
	switch out.Status {
	case "failed", "undelivered", "canceled":
		return "", errors.Errorf("twilio message %s status %s", out.SID, out.Status)
	}
	return out.SID, nil
}
