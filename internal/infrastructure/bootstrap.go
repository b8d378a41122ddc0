package infrastructure

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"rewardgate/internal/config"
	"rewardgate/internal/observability/metrics"
	"rewardgate/internal/provider"
	"rewardgate/internal/repository"
	"rewardgate/internal/service"
	transportGRPC "rewardgate/internal/transport/grpc"
	transportHTTP "rewardgate/internal/transport/http"
	transportNATS "rewardgate/internal/transport/nats"
)

// Bootstrap initialises all dependencies from config and wires up the application.
// Returns the App, a cleanup function, or an error.
func Bootstrap(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, func(), error) {
	var cleanupFns []func()

	ids, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		return nil, nil, fmt.Errorf("snowflake node: %w", err)
	}

	// ── Ledger store ──────────────────────────────────────────────────────────
	var store service.LedgerStore
	switch cfg.StoreProvider {
	case "postgres":
		db, err := connectPostgres(ctx, cfg.DSN())
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		cleanupFns = append(cleanupFns, db.Close)
		store = repository.NewLedgerRepo(db, ids)

	case "redis":
		rdb, err := connectRedis(ctx, cfg.RedisAddr())
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		cleanupFns = append(cleanupFns, func() { _ = rdb.Close() })
		store = repository.NewRedisLedger(rdb, ids)
	}

	// ── Message bus ───────────────────────────────────────────────────────────
	var bus repository.MessageBus = repository.NopBus{}
	if cfg.BusProvider == "nats" {
		nc, err := connectNats(cfg.NatsAddr(), log)
		if err != nil {
			return nil, runCleanup(cleanupFns), fmt.Errorf("connect nats: %w", err)
		}
		natsBus := transportNATS.NewBus(nc, cfg.BusPrefix)
		cleanupFns = append(cleanupFns, natsBus.Close)
		bus = natsBus
	}

	// ── Pipeline and transports ───────────────────────────────────────────────
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	processor := service.NewRewardProcessor(service.Options{
		Store:   store,
		Secrets: cfg.ProviderSecret,
		Bus:     bus,
		Logger:  log,
		Metrics: metrics.NewPostbackMetrics(registry),
		Timeout: cfg.StoreTimeout,
	})

	adapters := provider.NewRegistry(provider.Defaults(cfg.PublicBaseURL)...)
	handler := transportHTTP.NewHandler(processor, adapters, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), log)

	servers := []Server{transportHTTP.NewServer(cfg.ApiAddr(), handler)}
	if addr, err := cfg.GRPCAddr(); err == nil {
		servers = append(servers, transportGRPC.NewServer(addr, store, log))
	}

	log.Info("application wired",
		zap.String("store", cfg.StoreProvider),
		zap.String("bus", cfg.BusProvider),
		zap.Int("providers", len(cfg.ProviderSecret)),
	)

	return NewApp(servers, log), runCleanup(cleanupFns), nil
}

// runCleanup returns a single function that calls all cleanup functions in reverse order.
func runCleanup(fns []func()) func() {
	return func() {
		for i := len(fns) - 1; i >= 0; i-- {
			fns[i]()
		}
	}
}
