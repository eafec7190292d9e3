package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/BearBump/ShipBox/config"
	fulfillmentapi "github.com/BearBump/ShipBox/internal/api/fulfillment_api"
	webhooksapi "github.com/BearBump/ShipBox/internal/api/webhooks_api"
	"github.com/BearBump/ShipBox/internal/broker/kafka"
	"github.com/BearBump/ShipBox/internal/logger"
	"github.com/BearBump/ShipBox/internal/services/webhooks"
	"github.com/BearBump/ShipBox/internal/wiring"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

type shipAPIApp struct {
	ctx      context.Context
	cancel   context.CancelFunc
	opts     shipAPIOpts
	deps     shipAPIDeps
	core     *wiring.Core
	producer *kafka.Producer
	log      *zap.Logger
}

func mustBootstrapShipAPI() *shipAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	swaggerPath := os.Getenv("swaggerPath")
	if swaggerPath == "" {
		panic("swaggerPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	log, err := logger.New(cfg.Logging, "ship-api")
	if err != nil {
		panic(fmt.Sprintf("logger: %v", err))
	}

	app, err := newShipAPIApp(cfg, wiring.DefaultFactories(), swaggerPath, log)
	if err != nil {
		log.Fatal("bootstrap ship-api", zap.Error(err))
	}
	return app
}

func newShipAPIApp(cfg *config.Config, f wiring.Factories, swaggerPath string, log *zap.Logger) (*shipAPIApp, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	core, err := wiring.Build(cfg, f, reg, log)
	if err != nil {
		return nil, err
	}

	hooks := webhooks.New(core.Store, core.Dispatcher, core.Composer, core.Merger, webhooks.Config{
		Secret:    cfg.Webhook.Secret,
		Mode:      cfg.Webhook.Mode,
		ScanLimit: cfg.Webhook.ScanLimit,
	}, log.Named("webhooks")).WithMetrics(core.Metrics)

	producer := kafka.NewProducer(cfg.Kafka.Brokers())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &shipAPIApp{
		ctx:    ctx,
		cancel: cancel,
		opts: shipAPIOpts{
			grpcAddr:     cfg.ShipBox.GRPCAddr,
			httpAddr:     cfg.ShipBox.HTTPAddr,
			grpcDialAddr: cfg.ShipBox.GRPCAddr,
			swaggerPath:  swaggerPath,
		},
		deps: shipAPIDeps{
			webhooks: webhooksapi.New(hooks, producer, cfg.Kafka.TransactionAcceptedTopicName, log.Named("intake")),
			fulfillment: fulfillmentapi.New(core.Store, core.Labels, core.ShipBy, fulfillmentapi.LeadDefaults{
				Mode:       core.LeadMode,
				StaticDays: cfg.LeadTime.LeadDays(),
				MaxDays:    cfg.LeadTime.MaxDays,
			}),
			gatherer: reg,
			log:      log,
		},
		core:     core,
		producer: producer,
		log:      log,
	}, nil
}

func (a *shipAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.producer != nil {
		_ = a.producer.Close()
	}
	if a.core != nil {
		a.core.Close()
	}
	_ = a.log.Sync()
}

func (a *shipAPIApp) Run() error {
	a.core.RunBackground(a.ctx)
	return runShipAPI(a.ctx, a.opts, a.deps)
}
