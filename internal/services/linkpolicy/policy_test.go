package linkpolicy

import (
	"testing"

	"github.com/BearBump/ShipBox/internal/models"
	"github.com/stretchr/testify/require"
)

func full(carrier string) models.ShipmentArtifacts {
	return models.ShipmentArtifacts{
		Carrier:     carrier,
		QRURL:       "https://qr",
		LabelURL:    "https://label",
		TrackingURL: "https://track",
	}
}

func TestPickLink_InitialLenderNeverTracking(t *testing.T) {
	prefs := map[string][]LinkKind{
		"UPS":     {KindTracking},
		"default": {KindTracking, KindLabel},
	}
	for _, allow := range []bool{true, false} {
		p := New(prefs, allow)

		_, ok := p.PickLink(models.ShipmentArtifacts{Carrier: "ups", TrackingURL: "https://track"}, models.PhaseInitialLender)
		require.False(t, ok)

		u, ok := p.PickLink(full("fedex"), models.PhaseInitialLender)
		require.True(t, ok)
		require.Equal(t, "https://label", u)
	}
}

func TestPickLink_CarrierPreference(t *testing.T) {
	p := New(map[string][]LinkKind{
		"usps":    {KindQR, KindLabel},
		"default": {KindLabel},
	}, false)

	u, ok := p.PickLink(full("USPS"), models.PhaseInitialLender)
	require.True(t, ok)
	require.Equal(t, "https://qr", u)

	a := full("USPS")
	a.QRURL = ""
	u, ok = p.PickLink(a, models.PhaseReturn)
	require.True(t, ok)
	require.Equal(t, "https://label", u)

	u, ok = p.PickLink(full("UPS"), models.PhaseReminder)
	require.True(t, ok)
	require.Equal(t, "https://label", u)
}

func TestPickLink_TrackingRequiresAllowFlag(t *testing.T) {
	prefs := map[string][]LinkKind{"default": {KindTracking}}
	a := models.ShipmentArtifacts{Carrier: "UPS", TrackingURL: "https://track"}

	_, ok := New(prefs, false).PickLink(a, models.PhaseReturn)
	require.False(t, ok)

	u, ok := New(prefs, true).PickLink(a, models.PhaseReturn)
	require.True(t, ok)
	require.Equal(t, "https://track", u)
}

func TestPickLink_TransitTrackingOnly(t *testing.T) {
	a := full("USPS")

	u, ok := New(nil, true).PickLink(a, models.PhaseTransit)
	require.True(t, ok)
	require.Equal(t, "https://track", u)

	_, ok = New(nil, false).PickLink(a, models.PhaseTransit)
	require.False(t, ok)
}

func TestPickLink_NoArtifactsFailsClosed(t *testing.T) {
	p := New(nil, true)
	u, ok := p.PickLink(models.ShipmentArtifacts{Carrier: "USPS"}, models.PhaseReminder)
	require.False(t, ok)
	require.Empty(t, u)
}

func TestParseKinds(t *testing.T) {
	require.Equal(t, []LinkKind{KindQR, KindTracking}, ParseKinds([]string{" QR ", "email", "Tracking"}))
}
