package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/BearBump/ShipBox/config"
	"github.com/BearBump/ShipBox/internal/broker/kafka"
	"github.com/BearBump/ShipBox/internal/broker/messages"
	"github.com/BearBump/ShipBox/internal/cache/memcache"
	"github.com/BearBump/ShipBox/internal/cache/rediscache"
	"github.com/BearBump/ShipBox/internal/integrations/marketplace"
	"github.com/BearBump/ShipBox/internal/integrations/marketplace/memstore"
	"github.com/BearBump/ShipBox/internal/models"
	"github.com/BearBump/ShipBox/internal/services/notify"
	"github.com/BearBump/ShipBox/internal/services/reminders"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeConsumer struct {
	msgs   [][]byte
	closed bool
}

func (c *fakeConsumer) Consume(ctx context.Context, handler kafka.Handler) error {
	for _, m := range c.msgs {
		if err := handler([]byte("k"), m); err != nil {
			return err
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

func (c *fakeConsumer) Close() error {
	c.closed = true
	return nil
}

type silentSMS struct{}

func (silentSMS) Send(context.Context, string, string, string) (string, error) { return "SM1", nil }

func testWorkerConfig() *config.Config {
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	cfg.LeadTime.Timezone = "UTC"
	cfg.Reminders.Enabled = true
	cfg.ShipBox.WorkerHTTPAddr = "127.0.0.1:0"
	return cfg
}

func TestDefaultWorkerFactories_RateLimiter(t *testing.T) {
	f := defaultWorkerFactories()

	cfg := testWorkerConfig()
	rl, closeFn := f.newRateLimiter(cfg)
	_, ok := rl.(*memcache.RateLimiter)
	require.True(t, ok)
	require.Nil(t, closeFn)

	cfg.Redis.Enabled = true
	cfg.Redis.Host, cfg.Redis.Port = "localhost", 6379
	rl, closeFn = f.newRateLimiter(cfg)
	_, ok = rl.(*rediscache.RateLimiter)
	require.True(t, ok)
	require.NotNil(t, closeFn)
	require.Equal(t, 1, f.Redis.Holders())
	closeFn()
	closeFn()
	require.Equal(t, 0, f.Redis.Holders())

	require.NotNil(t, f.newConsumer(cfg, zap.NewNop()))
}

func TestRunShipWorker_ConsumesAcceptedAndServesHTTP(t *testing.T) {
	cfg := testWorkerConfig()
	store := memstore.New()

	msg, err := json.Marshal(messages.TransactionAccepted{
		EventID:       "ev1",
		TransactionID: "tx1",
		AcceptedAt:    time.Now().UTC(),
		BookingStart:  "2030-01-20",
		ListingTitle:  "Camping Tent",
		Provider:      models.Address{Street1: "1 Main", City: "Austin", State: "TX", Zip: "78701", Phone: "+15125550100"},
		Customer:      models.Address{Street1: "2 Oak", City: "Denver", State: "CO", Zip: "80202", Phone: "+13035550100"},
	})
	require.NoError(t, err)
	consumer := &fakeConsumer{msgs: [][]byte{msg, []byte("{not json")}}

	f := defaultWorkerFactories()
	f.NewStore = func(*config.Config) (marketplace.Store, func(), error) { return store, nil, nil }
	f.NewSMS = func(*config.Config, *zap.Logger) notify.SMSSender { return silentSMS{} }
	f.newConsumer = func(*config.Config, *zap.Logger) acceptedConsumer { return consumer }
	f.newRateLimiter = func(*config.Config) (reminders.RateLimiter, func()) { return memcache.NewRateLimiter(), nil }

	addrCh := make(chan string, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- RunShipWorker(ctx, cfg, f, workerOpts{onListen: func(a string) { addrCh <- a }}, nil)
	}()

	var addr string
	select {
	case addr = <-addrCh:
	case <-time.After(5 * time.Second):
		t.Fatal("worker http did not start")
	}

	require.Eventually(t, func() bool {
		tx, err := store.GetTransaction(context.Background(), "tx1")
		if err != nil {
			return false
		}
		return !tx.Artifacts(models.LegOutbound).Empty()
	}, 5*time.Second, 20*time.Millisecond)

	get := func(method, path string) (int, string) {
		req, err := http.NewRequest(method, "http://"+addr+path, nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(b)
	}

	code, body := get(http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, code)
	require.JSONEq(t, `{"status":"ok"}`, body)

	code, _ = get(http.MethodGet, "/readyz")
	require.Equal(t, http.StatusOK, code)

	code, body = get(http.MethodPost, "/trigger")
	require.Equal(t, http.StatusOK, code)
	require.JSONEq(t, `{"triggered":true}`, body)

	code, body = get(http.MethodGet, "/stats")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, `"reminders"`)
	require.Contains(t, body, `"lastTriggerAt"`)

	code, body = get(http.MethodGet, "/config")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, `"carrierDriver":"fake"`)
	require.NotContains(t, body, "secret")

	code, body = get(http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, "go_goroutines")

	cancel()
	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
	require.True(t, consumer.closed)
}

func TestRunWorkerHTTPServer_SwaggerRequired(t *testing.T) {
	err := runWorkerHTTPServer(context.Background(), workerHTTPOpts{
		httpAddr:    "127.0.0.1:0",
		swaggerPath: "/definitely/missing/worker.swagger.json",
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "worker swagger file not found")
}
