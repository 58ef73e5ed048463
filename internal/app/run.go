package app

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/veilmarket/veilmarket/internal/export"
	"github.com/veilmarket/veilmarket/internal/server"
	"github.com/veilmarket/veilmarket/internal/server/handler"
)

// run starts the HTTP server, the WebSocket hub, and the journal exporter,
// then blocks until the context is cancelled or a component fails.
func (a *App) run(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)

	srv := a.buildServer(deps)

	g.Go(func() error {
		return deps.Hub.Run(ctx)
	})

	if deps.Archiver != nil {
		exporter := export.NewExporter(deps.Archiver, deps.LockManager, a.logger)
		interval := a.cfg.S3.ExportInterval.Duration
		g.Go(func() error {
			return exporter.RunLoop(ctx, interval)
		})
	}

	g.Go(func() error {
		return srv.Start()
	})

	// Shut the server down when the group context ends, bounding the drain
	// of in-flight requests by the configured timeout.
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout.Duration)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	a.logger.InfoContext(ctx, "ledger daemon running",
		slog.String("store", deps.StoreName),
		slog.String("backend", deps.Engine.Backend()),
		slog.String("principal", deps.Self.String()),
	)

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return context.Canceled
	}
	return err
}

// buildServer assembles the handlers and middleware around the engine.
func (a *App) buildServer(deps *Dependencies) *server.Server {
	logger := a.logger

	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(logger),
		Status:  handler.NewStatusHandler(deps.Engine.Backend(), deps.StoreName, deps.Self.String(), deps.FHE),
		Markets: handler.NewMarketHandler(deps.Engine, logger),
		Bets:    handler.NewBetHandler(deps.Engine, deps.FHE, logger),
		Access:  handler.NewAccessHandler(deps.Engine, logger),
		Tallies: handler.NewTallyHandler(deps.Engine, logger),
		Events:  handler.NewEventHandler(deps.Engine, logger),
	}

	srvDeps := server.Deps{
		Hub:     deps.Hub,
		Metrics: deps.Metrics,
	}
	if a.cfg.Server.RateLimitEnabled {
		srvDeps.Limiter = deps.RateLimiter
	}

	return server.NewServer(server.Config{
		Host:             a.cfg.Server.Host,
		Port:             a.cfg.Server.Port,
		APIKeys:          a.cfg.Server.APIKeys,
		CORSOrigins:      a.cfg.Server.CORSOrigins,
		RequireSignature: a.cfg.Server.RequireSignature,
		RateLimitPerMin:  a.cfg.Server.RateLimitPerMin,
		ReadTimeout:      a.cfg.Server.ReadTimeout.Duration,
		WriteTimeout:     a.cfg.Server.WriteTimeout.Duration,
	}, handlers, srvDeps, logger)
}
