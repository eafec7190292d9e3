package main

import (
	"context"
	"time"

	"github.com/BearBump/ShipBox/config"
	"github.com/BearBump/ShipBox/internal/broker/kafka"
	"github.com/BearBump/ShipBox/internal/cache/memcache"
	"github.com/BearBump/ShipBox/internal/integrations/marketplace"
	"github.com/BearBump/ShipBox/internal/services/fulfillment"
	"github.com/BearBump/ShipBox/internal/services/reminders"
	"github.com/BearBump/ShipBox/internal/wiring"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type acceptedConsumer interface {
	Consume(ctx context.Context, handler kafka.Handler) error
	Close() error
}

type workerFactories struct {
	wiring.Factories

	newConsumer    func(cfg *config.Config, log *zap.Logger) acceptedConsumer
	newRateLimiter func(cfg *config.Config) (rl reminders.RateLimiter, closeFn func())
}

func defaultWorkerFactories() workerFactories {
	base := wiring.DefaultFactories()
	return workerFactories{
		Factories: base,
		newConsumer: func(cfg *config.Config, log *zap.Logger) acceptedConsumer {
			return kafka.NewConsumer(cfg.Kafka.Brokers(), cfg.Kafka.TransactionAcceptedTopicName, cfg.ShipBox.KafkaConsumerGroup,
				kafka.WithConsumerLogger(log.Named("consumer")))
		},
		newRateLimiter: func(cfg *config.Config) (reminders.RateLimiter, func()) {
			if cfg.Redis.Enabled {
				c, release := base.Redis.Acquire(cfg.Redis.Addr())
				return c.RateLimiter(""), release
			}
			return memcache.NewRateLimiter(), nil
		},
	}
}

type workerOpts struct {
	swaggerPath string
	onListen    func(httpAddr string)
}

func RunShipWorker(ctx context.Context, cfg *config.Config, f workerFactories, opts workerOpts, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	core, err := wiring.Build(cfg, f.Factories, reg, log)
	if err != nil {
		return err
	}
	defer core.Close()

	recorder, _ := core.Store.(marketplace.Recorder)
	svc := fulfillment.New(recorder, core.Labels, log.Named("fulfillment")).WithMetrics(core.Metrics)

	rl, closeRL := f.newRateLimiter(cfg)
	if closeRL != nil {
		defer closeRL()
	}
	sched := reminders.New(core.Store, core.Dispatcher, core.Composer, core.Merger, rl, log.Named("reminders")).
		WithSettings(
			time.Duration(cfg.Reminders.IntervalSeconds)*time.Second,
			cfg.Reminders.ScanLimit,
			cfg.Reminders.Concurrency,
			int64(cfg.Reminders.RateLimitPerMinute),
		).
		WithMetrics(core.Metrics)
	if cfg.Reminders.MorningHour > 0 {
		pc := reminders.DefaultPlannerConfig()
		pc.MorningAt = time.Duration(cfg.Reminders.MorningHour) * time.Hour
		sched.WithPlanner(pc)
	}

	consumer := f.newConsumer(cfg, log)
	defer func() { _ = consumer.Close() }()

	g, gctx := errgroup.WithContext(ctx)
	core.RunBackground(gctx)

	g.Go(func() error {
		log.Info("kafka consumer started",
			zap.String("topic", cfg.Kafka.TransactionAcceptedTopicName),
			zap.String("group", cfg.ShipBox.KafkaConsumerGroup),
		)
		return consumer.Consume(gctx, svc.HandleMessage(gctx))
	})
	g.Go(func() error { return svc.RunReporter(gctx) })
	if cfg.Reminders.Enabled {
		g.Go(func() error { return sched.Run(gctx) })
	} else {
		log.Info("ship-by reminders disabled")
	}
	g.Go(func() error {
		return runWorkerHTTPServer(gctx, workerHTTPOpts{
			httpAddr:    cfg.ShipBox.WorkerHTTPAddr,
			swaggerPath: opts.swaggerPath,
			onListen:    opts.onListen,
			scheduler:   sched,
			store:       core.Store,
			gatherer:    reg,
			cfg:         cfg,
		})
	})

	return g.Wait()
}
