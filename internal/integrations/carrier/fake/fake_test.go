package fake

import (
	"context"
	"testing"

	"github.com/BearBump/ShipBox/internal/integrations/carrier"
	"github.com/BearBump/ShipBox/internal/models"
	"github.com/stretchr/testify/require"
)

func TestFakeClient_Deterministic(t *testing.T) {
	c := New()
	ctx := context.Background()
	from := models.Address{Zip: "78701"}
	to := models.Address{Zip: "80202"}

	a, err := c.CreateShipment(ctx, from, to, models.Parcel{}, "tx-1")
	require.NoError(t, err)
	b, err := c.CreateShipment(ctx, from, to, models.Parcel{}, "tx-1")
	require.NoError(t, err)
	require.Equal(t, a.Rates, b.Rates)
	require.Len(t, a.Rates, 2)

	p1, err := c.PurchaseLabel(ctx, a.Rates[0], carrier.PurchaseOptions{QRCode: true})
	require.NoError(t, err)
	p2, err := c.PurchaseLabel(ctx, a.Rates[0], carrier.PurchaseOptions{})
	require.NoError(t, err)
	require.Equal(t, carrier.PurchaseStatusSuccess, p1.Status)
	require.Equal(t, p1.Artifacts.TrackingNumber, p2.Artifacts.TrackingNumber)
	require.NotEmpty(t, p1.Artifacts.QRURL)
	require.Empty(t, p2.Artifacts.QRURL)
	require.Equal(t, "USPS", p1.Artifacts.Carrier)
}

func TestFakeClient_NoRates(t *testing.T) {
	c := New()
	sh, err := c.CreateShipment(context.Background(), models.Address{Zip: "1"}, models.Address{Zip: NoRatesZip}, models.Parcel{}, "")
	require.NoError(t, err)
	require.Empty(t, sh.Rates)
	require.NotEmpty(t, sh.Messages)
}
