package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"rewardgate/internal/config"
	"rewardgate/internal/infrastructure"
	"rewardgate/internal/observability/logger"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, cleanup, err := infrastructure.Bootstrap(ctx, cfg, log)
	if err != nil {
		log.Fatal("bootstrap failed", zap.Error(err))
	}
	defer cleanup()

	log.Info("server running", zap.String("addr", cfg.ApiAddr()))
	if err := app.Run(ctx); err != nil {
		log.Error("server stopped with error", zap.Error(err))
		cleanup()
		os.Exit(1)
	}
	log.Info("server stopped")
}
