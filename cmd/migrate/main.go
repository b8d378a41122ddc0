package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"rewardgate/internal/config"
	"rewardgate/internal/observability/logger"
	"rewardgate/internal/repository"
)

func main() {
	flag.Parse()
	args := flag.Args()

	if len(args) < 1 {
		fmt.Println("Error: migration command is required")
		fmt.Println("Usage: go run cmd/migrate/main.go [command] [args]")
		fmt.Println("Commands: up, down, status, redo, up-to VERSION, down-to VERSION")
		os.Exit(1)
	}

	cfg, err := config.NewStore()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	if cfg.StoreProvider != "postgres" {
		fmt.Fprintf(os.Stderr, "migrations only apply to the postgres store (REWARDGATE_STORE=%s)\n", cfg.StoreProvider)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	command := args[0]

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	log.Info("starting migration", zap.String("command", command))

	if err := repository.RunMigrations(ctx, cfg.DSN(), command, args[1:]...); err != nil {
		log.Fatal("migration failed", zap.Error(err))
	}

	log.Info("migration finished successfully", zap.String("command", command))
}
