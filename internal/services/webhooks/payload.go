package webhooks

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/BearBump/ShipBox/internal/models"
	"github.com/pkg/errors"
)

type trackingStatus struct {
	Status        string `json:"status"`
	StatusDetails string `json:"status_details"`
	StatusDate    string `json:"status_date"`
}

type eventData struct {
	TrackingNumber string          `json:"tracking_number"`
	Carrier        string          `json:"carrier"`
	TrackingStatus trackingStatus  `json:"tracking_status"`
	Metadata       json.RawMessage `json:"metadata"`
}

type Event struct {
	Event string    `json:"event"`
	Test  bool      `json:"test"`
	Data  eventData `json:"data"`

	meta map[string]any
}

func parseEvent(body []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, errors.Wrap(err, "decode event")
	}
	ev.Data.TrackingNumber = strings.TrimSpace(ev.Data.TrackingNumber)
	if ev.Data.TrackingNumber == "" {
		return nil, errors.New("tracking_number is required")
	}
	meta, err := parseMetadata(ev.Data.Metadata)
	if err != nil {
		return nil, err
	}
	ev.meta = meta
	return &ev, nil
}

// parseMetadata accepts an object, a JSON-encoded object inside a string, or the
// "tx:<id> leg:<leg>" tag the label purchase attaches.
func parseMetadata(raw json.RawMessage) (map[string]any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return map[string]any{}, nil
	}

	switch raw[0] {
	case '{':
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, errors.Wrap(err, "decode metadata")
		}
		return m, nil
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, errors.Wrap(err, "decode metadata string")
		}
		s = strings.TrimSpace(s)
		if strings.HasPrefix(s, "{") {
			var m map[string]any
			if err := json.Unmarshal([]byte(s), &m); err != nil {
				return nil, errors.Wrap(err, "decode metadata json string")
			}
			return m, nil
		}
		return parseTagString(s), nil
	}
	return nil, errors.New("metadata must be an object or a string")
}

func parseTagString(s string) map[string]any {
	m := map[string]any{}
	for _, f := range strings.Fields(s) {
		k, v, ok := strings.Cut(f, ":")
		if !ok || v == "" {
			continue
		}
		switch k {
		case "tx":
			m["transactionId"] = v
		case "leg":
			m["leg"] = v
		}
	}
	return m
}

func (e *Event) TransactionID() string {
	for _, k := range []string{"transactionId", "transaction_id", "txId"} {
		if s := models.StringField(e.meta, k); s != "" {
			return s
		}
	}
	return ""
}

// Classify maps a raw carrier status onto the classes the state machine understands.
func Classify(status string) models.TrackingClass {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "transit", "in_transit", "accepted", "picked_up", "out_for_delivery", "acceptance":
		return models.ClassFirstScan
	case "delivered":
		return models.ClassDelivered
	}
	return models.ClassIgnored
}
