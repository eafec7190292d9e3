package shippo

import (
	"strconv"
	"strings"
	"time"

	"github.com/BearBump/ShipBox/internal/integrations/carrier"
	"github.com/BearBump/ShipBox/internal/models"
)

// All carrier-specific field naming lives here. Shippo exposes the same concept under
// different names depending on carrier and API version (top-level vs nested objects).

func normalizeShipment(raw map[string]any) carrier.Shipment {
	sh := carrier.Shipment{
		ObjectID: firstString(raw, "object_id", "id"),
		Status:   firstString(raw, "status", "object_status"),
		Messages: normalizeMessages(raw["messages"]),
	}

	if rates, ok := raw["rates"].([]any); ok {
		for _, r := range rates {
			rm, ok := r.(map[string]any)
			if !ok {
				continue
			}
			rate := carrier.Rate{
				ObjectID:     firstString(rm, "object_id", "id"),
				Provider:     firstString(rm, "provider", "carrier"),
				ServiceLevel: firstString(rm, "servicelevel.name", "servicelevel_name", "service"),
				Amount:       firstString(rm, "amount"),
				Currency:     firstString(rm, "currency"),
			}
			if d, ok := firstNumber(rm, "estimated_days", "days"); ok {
				rate.EstimatedDays = int(d)
			}
			if rate.ObjectID == "" {
				continue
			}
			sh.Rates = append(sh.Rates, rate)
		}
	}

	diag := map[string]any{}
	for _, k := range []string{"messages", "carrier_accounts", "address_from", "address_to", "status"} {
		if v, ok := raw[k]; ok {
			diag[k] = v
		}
	}
	if len(diag) > 0 {
		sh.Diagnostics = diag
	}
	return sh
}

func normalizePurchase(raw map[string]any, rate carrier.Rate, now time.Time) carrier.Purchase {
	p := carrier.Purchase{
		Status:   strings.ToUpper(firstString(raw, "status", "object_status")),
		Messages: normalizeMessages(raw["messages"]),
	}

	carrierName := firstString(raw, "rate.provider", "provider", "carrier", "tracking.carrier")
	if carrierName == "" {
		carrierName = rate.Provider
	}
	service := firstString(raw, "rate.servicelevel.name", "servicelevel.name", "servicelevel_name")
	if service == "" {
		service = rate.ServiceLevel
	}

	p.Artifacts = models.ShipmentArtifacts{
		Carrier:              strings.ToUpper(carrierName),
		Service:              service,
		TrackingNumber:       firstString(raw, "tracking_number", "tracking.number", "tracking_code"),
		TrackingURL:          firstString(raw, "tracking_url_provider", "tracking_url", "tracking.url"),
		LabelURL:             firstString(raw, "label_url", "label.url", "label_file"),
		QRURL:                firstString(raw, "qr_code_url", "qr_code.url", "qr_url", "qrcode_url"),
		CarrierTransactionID: firstString(raw, "object_id", "id"),
		PurchasedAt:          now,
	}
	if t := firstString(raw, "object_created", "created_at"); t != "" {
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			p.Artifacts.PurchasedAt = parsed.UTC()
		}
	}
	return p
}

func normalizeMessages(v any) []carrier.Message {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]carrier.Message, 0, len(list))
	for _, it := range list {
		switch m := it.(type) {
		case map[string]any:
			out = append(out, carrier.Message{
				Source: firstString(m, "source"),
				Code:   firstString(m, "code"),
				Text:   firstString(m, "text", "message"),
			})
		case string:
			out = append(out, carrier.Message{Text: m})
		}
	}
	return out
}

// firstString returns the first non-empty string among dotted paths.
func firstString(m map[string]any, paths ...string) string {
	for _, p := range paths {
		if v, ok := lookup(m, p); ok {
			switch s := v.(type) {
			case string:
				if s != "" {
					return s
				}
			case float64:
				return strconv.FormatFloat(s, 'f', -1, 64)
			}
		}
	}
	return ""
}

func firstNumber(m map[string]any, paths ...string) (float64, bool) {
	for _, p := range paths {
		if v, ok := lookup(m, p); ok {
			switch n := v.(type) {
			case float64:
				return n, true
			case string:
				if f, err := strconv.ParseFloat(n, 64); err == nil {
					return f, true
				}
			}
		}
	}
	return 0, false
}

func lookup(m map[string]any, path string) (any, bool) {
	cur := any(m)
	for _, part := range strings.Split(path, ".") {
		mm, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = mm[part]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}
