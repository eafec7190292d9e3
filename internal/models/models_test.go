package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNextLegState_Outbound(t *testing.T) {
	next, ok := NextLegState(LegOutbound, LegUnshipped, ClassFirstScan)
	require.True(t, ok)
	require.Equal(t, LegFirstScanNotified, next)

	next, ok = NextLegState(LegOutbound, "", ClassDelivered)
	require.True(t, ok)
	require.Equal(t, LegDeliveredNotified, next)

	next, ok = NextLegState(LegOutbound, LegFirstScanNotified, ClassDelivered)
	require.True(t, ok)
	require.Equal(t, LegDeliveredNotified, next)

	// повтор и терминальное состояние
	_, ok = NextLegState(LegOutbound, LegFirstScanNotified, ClassFirstScan)
	require.False(t, ok)
	_, ok = NextLegState(LegOutbound, LegDeliveredNotified, ClassFirstScan)
	require.False(t, ok)
	_, ok = NextLegState(LegOutbound, LegDeliveredNotified, ClassDelivered)
	require.False(t, ok)
	_, ok = NextLegState(LegOutbound, LegUnshipped, ClassIgnored)
	require.False(t, ok)
}

func TestNextLegState_Return(t *testing.T) {
	next, ok := NextLegState(LegReturn, LegUnshipped, ClassFirstScan)
	require.True(t, ok)
	require.Equal(t, LegReturnFirstScanNotified, next)

	_, ok = NextLegState(LegReturn, LegReturnFirstScanNotified, ClassFirstScan)
	require.False(t, ok)
	_, ok = NextLegState(LegReturn, LegUnshipped, ClassDelivered)
	require.False(t, ok)
}

func TestTagFor(t *testing.T) {
	tag, ok := TagFor(LegOutbound, LegFirstScanNotified)
	require.True(t, ok)
	require.Equal(t, TagFirstScanToBorrower, tag)

	tag, ok = TagFor(LegReturn, LegReturnFirstScanNotified)
	require.True(t, ok)
	require.Equal(t, TagReturnFirstScanToLender, tag)

	_, ok = TagFor(LegReturn, LegDeliveredNotified)
	require.False(t, ok)
}

func TestArtifactsFieldsRoundTrip(t *testing.T) {
	at := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	a := ShipmentArtifacts{Carrier: "USPS", TrackingNumber: "9400", LabelURL: "https://l", PurchasedAt: at}
	back := ArtifactsFromFields(a.Fields())
	require.Equal(t, a, back)
	require.False(t, back.Empty())
	require.True(t, ShipmentArtifacts{Carrier: "USPS"}.Empty())
}

func TestTransaction_Accessors(t *testing.T) {
	tx := &Transaction{ProtectedData: map[string]any{
		"outbound": map[string]any{"trackingNumber": "OUT", "state": "first-scan-notified"},
		"return":   map[string]any{"trackingNumber": "RET"},
		"shippingNotification": map[string]any{
			"labelReadyToLender": map[string]any{"sent": true},
		},
	}}

	leg, ok := tx.LegForTrackingNumber("RET")
	require.True(t, ok)
	require.Equal(t, LegReturn, leg)
	_, ok = tx.LegForTrackingNumber("NOPE")
	require.False(t, ok)

	require.Equal(t, LegFirstScanNotified, tx.LegState(LegOutbound))
	require.Equal(t, LegUnshipped, tx.LegState(LegReturn))
	require.True(t, tx.NotificationSent(TagLabelReadyToLender))
	require.False(t, tx.NotificationSent(TagDeliveredToBorrower))
}

func TestAddress_Complete(t *testing.T) {
	a := Address{Street1: "1 Main", City: "Austin", State: "TX", Zip: "78701"}
	require.True(t, a.Complete())
	a.Zip = " "
	require.False(t, a.Complete())
}
