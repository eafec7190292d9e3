package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/BearBump/ShipBox/config"
	"github.com/BearBump/ShipBox/internal/logger"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	log, err := logger.New(cfg.Logging, "ship-worker")
	if err != nil {
		panic(fmt.Sprintf("logger: %v", err))
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	opts := workerOpts{swaggerPath: os.Getenv("workerSwaggerPath")}
	if err := RunShipWorker(ctx, cfg, defaultWorkerFactories(), opts, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("ship-worker stopped", zap.Error(err))
		os.Exit(1)
	}
}
