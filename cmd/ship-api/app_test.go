package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/BearBump/ShipBox/config"
	"github.com/BearBump/ShipBox/internal/integrations/marketplace"
	"github.com/BearBump/ShipBox/internal/integrations/marketplace/memstore"
	"github.com/BearBump/ShipBox/internal/models"
	"github.com/BearBump/ShipBox/internal/services/notify"
	"github.com/BearBump/ShipBox/internal/wiring"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type nopSMS struct{}

func (nopSMS) Send(context.Context, string, string, string) (string, error) { return "SM0", nil }

func writeSwagger(t *testing.T) string {
	t.Helper()
	sw := filepath.Join(t.TempDir(), "swagger.json")
	require.NoError(t, os.WriteFile(sw, []byte(`{"swagger":"2.0"}`), 0o600))
	return sw
}

func testApp(t *testing.T, store *memstore.Store) *shipAPIApp {
	t.Helper()
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	cfg.LeadTime.Timezone = "UTC"
	cfg.ShipBox.GRPCAddr = "127.0.0.1:0"
	cfg.ShipBox.HTTPAddr = "127.0.0.1:0"
	cfg.Kafka.Host, cfg.Kafka.Port = "127.0.0.1", 1

	f := wiring.DefaultFactories()
	f.NewStore = func(*config.Config) (marketplace.Store, func(), error) { return store, nil, nil }
	f.NewSMS = func(*config.Config, *zap.Logger) notify.SMSSender { return nopSMS{} }

	app, err := newShipAPIApp(cfg, f, writeSwagger(t), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(app.Close)
	return app
}

func TestRunShipAPI_ServesSwaggerWebhooksAndGateway(t *testing.T) {
	store := memstore.New()
	store.Put(&models.Transaction{ID: "tx1", ProtectedData: map[string]any{
		"outbound": map[string]any{"trackingNumber": "T1"},
	}})
	app := testApp(t, store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addrCh := make(chan string, 1)
	app.opts.onListen = func(_grpcAddr, httpAddr string) { addrCh <- httpAddr }

	errCh := make(chan error, 1)
	go func() { errCh <- runShipAPI(ctx, app.opts, app.deps) }()

	var httpAddr string
	select {
	case httpAddr = <-addrCh:
	case <-time.After(5 * time.Second):
		t.Fatal("servers did not start")
	}
	base := "http://" + httpAddr

	resp, err := http.Get(base + "/swagger.json")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), `"swagger"`)

	// without a configured secret the handler runs in degraded mode; an unknown tracking
	// number is a 404
	resp, err = http.Post(base+"/webhooks/carrier-tracking", "application/json",
		strings.NewReader(`{"event":"track_updated","data":{"tracking_number":"NOPE","tracking_status":{"status":"TRANSIT"}}}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/api/v1/shipments/tx1")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		return resp.StatusCode == http.StatusOK && strings.Contains(string(b), `"trackingNumber":"T1"`)
	}, 5*time.Second, 50*time.Millisecond)

	resp, err = http.Get(base + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Contains(t, string(body), "shipbox_webhooks_events_total")

	cancel()
	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting servers to stop")
	}
}

func TestRunShipAPI_SwaggerRequired(t *testing.T) {
	err := runShipAPI(context.Background(), shipAPIOpts{grpcAddr: "127.0.0.1:0", httpAddr: "127.0.0.1:0"}, shipAPIDeps{})
	require.Error(t, err)

	err = runShipAPI(context.Background(), shipAPIOpts{swaggerPath: filepath.Join(t.TempDir(), "missing.json")}, shipAPIDeps{})
	require.ErrorContains(t, err, "swagger file not found")
}
