package models

import (
	"time"
)

// Protected-data keys written by ShipBox.
const (
	KeyOutbound             = "outbound"
	KeyReturn               = "return"
	KeyShippingNotification = "shippingNotification"
	KeyLastTrackingStatus   = "lastTrackingStatus"
	KeyProviderPhone        = "providerPhone"
	KeyCustomerPhone        = "customerPhone"
)

type Party struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Transaction is the marketplace-owned record. ShipBox only ever merges into ProtectedData.
type Transaction struct {
	ID            string
	Version       int64
	BookingStart  *time.Time
	Provider      Party
	Customer      Party
	ProtectedData map[string]any
	Metadata      map[string]any
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (t *Transaction) LegData(leg Leg) map[string]any {
	if t == nil {
		return nil
	}
	return MapField(t.ProtectedData, string(leg))
}

func (t *Transaction) Artifacts(leg Leg) ShipmentArtifacts {
	return ArtifactsFromFields(t.LegData(leg))
}

func (t *Transaction) LegState(leg Leg) LegState {
	s := LegState(StringField(t.LegData(leg), "state"))
	if s == "" {
		return LegUnshipped
	}
	return s
}

// NotificationSent reads the durable NotificationRecord for tag.
func (t *Transaction) NotificationSent(tag EventTag) bool {
	if t == nil {
		return false
	}
	rec := MapField(MapField(t.ProtectedData, KeyShippingNotification), string(tag))
	sent, _ := rec["sent"].(bool)
	return sent
}

// LegForTrackingNumber matches a carrier tracking number against both stored legs.
func (t *Transaction) LegForTrackingNumber(trackingNumber string) (Leg, bool) {
	if t == nil || trackingNumber == "" {
		return "", false
	}
	if StringField(t.LegData(LegOutbound), "trackingNumber") == trackingNumber {
		return LegOutbound, true
	}
	if StringField(t.LegData(LegReturn), "trackingNumber") == trackingNumber {
		return LegReturn, true
	}
	return "", false
}

func MapField(m map[string]any, key string) map[string]any {
	if m == nil {
		return nil
	}
	v, _ := m[key].(map[string]any)
	return v
}

func StringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	v, _ := m[key].(string)
	return v
}

func TimeField(m map[string]any, key string) (time.Time, bool) {
	s := StringField(m, key)
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Clone returns a deep copy; nested maps and slices are not shared with t.
func (t *Transaction) Clone() *Transaction {
	if t == nil {
		return nil
	}
	c := *t
	if t.BookingStart != nil {
		bs := *t.BookingStart
		c.BookingStart = &bs
	}
	c.ProtectedData = CloneMap(t.ProtectedData)
	c.Metadata = CloneMap(t.Metadata)
	return &c
}

func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return CloneMap(x)
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = cloneValue(x[i])
		}
		return out
	default:
		return v
	}
}
