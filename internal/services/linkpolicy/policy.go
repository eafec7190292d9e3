package linkpolicy

import (
	"strings"

	"github.com/BearBump/ShipBox/internal/models"
)

type LinkKind string

const (
	KindQR       LinkKind = "qr"
	KindLabel    LinkKind = "label"
	KindTracking LinkKind = "tracking"
)

const DefaultCarrierKey = "default"

// DefaultPreferences is used when no per-carrier configuration is supplied.
func DefaultPreferences() map[string][]LinkKind {
	return map[string][]LinkKind{
		"usps":            {KindQR, KindLabel, KindTracking},
		DefaultCarrierKey: {KindLabel, KindTracking},
	}
}

// Policy decides which single URL may go into a message for a given delivery phase.
// It performs no I/O.
type Policy struct {
	prefs         map[string][]LinkKind
	allowTracking bool
}

func New(prefs map[string][]LinkKind, allowTracking bool) *Policy {
	if len(prefs) == 0 {
		prefs = DefaultPreferences()
	}
	norm := make(map[string][]LinkKind, len(prefs))
	for k, v := range prefs {
		kinds := make([]LinkKind, 0, len(v))
		for _, kind := range v {
			kinds = append(kinds, LinkKind(strings.ToLower(strings.TrimSpace(string(kind)))))
		}
		norm[strings.ToLower(strings.TrimSpace(k))] = kinds
	}
	return &Policy{prefs: norm, allowTracking: allowTracking}
}

// ParseKinds turns config strings ("QR", "label", ...) into kinds, dropping unknown entries.
func ParseKinds(in []string) []LinkKind {
	out := make([]LinkKind, 0, len(in))
	for _, s := range in {
		switch k := LinkKind(strings.ToLower(strings.TrimSpace(s))); k {
		case KindQR, KindLabel, KindTracking:
			out = append(out, k)
		}
	}
	return out
}

func (p *Policy) AllowTracking() bool { return p.allowTracking }

// PickLink returns the first available link permitted for phase. ok=false means nothing may be sent.
func (p *Policy) PickLink(a models.ShipmentArtifacts, phase models.DeliveryPhase) (string, bool) {
	for _, kind := range p.order(a.Carrier, phase) {
		if !p.permitted(kind, phase) {
			continue
		}
		if u := urlFor(a, kind); u != "" {
			return u, true
		}
	}
	return "", false
}

func (p *Policy) order(carrierName string, phase models.DeliveryPhase) []LinkKind {
	if phase == models.PhaseTransit {
		return []LinkKind{KindTracking}
	}
	if kinds, ok := p.prefs[strings.ToLower(strings.TrimSpace(carrierName))]; ok {
		return kinds
	}
	return p.prefs[DefaultCarrierKey]
}

func (p *Policy) permitted(kind LinkKind, phase models.DeliveryPhase) bool {
	if kind != KindTracking {
		return phase != models.PhaseTransit
	}
	if phase == models.PhaseInitialLender {
		return false
	}
	return p.allowTracking
}

func urlFor(a models.ShipmentArtifacts, kind LinkKind) string {
	switch kind {
	case KindQR:
		return a.QRURL
	case KindLabel:
		return a.LabelURL
	case KindTracking:
		return a.TrackingURL
	}
	return ""
}
