package infrastructure

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Server is anything App can start and stop: HTTP, gRPC.
type Server interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type App struct {
	servers []Server
	log     *zap.Logger
}

func NewApp(servers []Server, log *zap.Logger) *App {
	return &App{servers: servers, log: log}
}

// Run starts every server and blocks until ctx is cancelled or one of them
// fails, then stops them all.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, srv := range a.servers {
		s := srv
		g.Go(func() error {
			return s.Start(gctx)
		})
	}

	<-gctx.Done()
	a.log.Info("shutting down servers")

	stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	for _, srv := range a.servers {
		if err := srv.Stop(stopCtx); err != nil {
			a.log.Warn("server stop failed", zap.Error(err))
		}
	}

	return g.Wait()
}
