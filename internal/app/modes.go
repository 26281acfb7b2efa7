package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/orionbet/orionkeeper/internal/keeper"
	"github.com/orionbet/orionkeeper/internal/pipeline"
	"github.com/orionbet/orionkeeper/internal/server"
	"github.com/orionbet/orionkeeper/internal/server/handler"
	"github.com/orionbet/orionkeeper/internal/server/ws"
)

const shutdownTimeout = 30 * time.Second

// ServerMode serves the HTTP API only. The scheduler can still be started
// through POST /api/keeper/schedule.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	sched := a.newScheduler(deps)
	a.runPriceStream(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps, sched)
	a.stopSchedulerOnExit(ctx, g, sched)
	return ignoreCanceled(g.Wait())
}

// KeeperMode runs the auto-manage loop and the archiver without an HTTP
// surface.
func (a *App) KeeperMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting keeper mode")

	g, ctx := errgroup.WithContext(ctx)
	sched := a.newScheduler(deps)
	a.runPriceStream(ctx, g, deps)
	a.runArchiver(ctx, g, deps)
	sched.Start(ctx)
	a.stopSchedulerOnExit(ctx, g, sched)
	return ignoreCanceled(g.Wait())
}

// FullMode serves the API and, when keeper.autostart is set, runs the
// auto-manage loop in the same process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode",
		slog.Bool("autostart", a.cfg.RunsScheduler()),
	)

	g, ctx := errgroup.WithContext(ctx)
	sched := a.newScheduler(deps)
	a.runPriceStream(ctx, g, deps)
	a.runArchiver(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps, sched)
	if a.cfg.RunsScheduler() {
		sched.Start(ctx)
	}
	a.stopSchedulerOnExit(ctx, g, sched)
	return ignoreCanceled(g.Wait())
}

func (a *App) newScheduler(deps *Dependencies) *keeper.Scheduler {
	return keeper.NewScheduler(
		deps.Keeper.AutoManageTick,
		a.cfg.Keeper.Interval.Duration,
		a.cfg.Keeper.MaxBackoff.Duration,
		deps.Metrics,
		a.logger,
	)
}

// stopSchedulerOnExit stops the loop, which outlives request contexts,
// when the group shuts down.
func (a *App) stopSchedulerOnExit(ctx context.Context, g *errgroup.Group, sched *keeper.Scheduler) {
	g.Go(func() error {
		<-ctx.Done()
		sched.Stop()
		return nil
	})
}

func (a *App) runPriceStream(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Stream == nil {
		return
	}
	g.Go(func() error {
		return deps.Stream.Run(ctx)
	})
}

func (a *App) runArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Archiver == nil {
		return
	}
	arch := pipeline.NewArchiver(deps.Archiver, a.cfg.Archive.RetentionDays, a.logger)
	g.Go(func() error {
		return arch.RunCron(ctx, a.cfg.Archive.Cron)
	})
}

// startHTTPServer adds the HTTP server and, when a signal bus is wired, the
// WebSocket hub to g. The server is shut down gracefully when ctx is
// cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, sched *keeper.Scheduler) {
	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.cfg.Server.CORSOrigins, a.logger)
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	throttle := keeper.NewThrottle(a.cfg.Keeper.ScheduleMinInterval.Duration, nil)
	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, server.Handlers{
		Health:   handler.NewHealthHandler(deps.Health, a.logger),
		Price:    handler.NewPriceHandler(deps.Prices, a.logger),
		Keeper:   handler.NewKeeperHandler(deps.Keeper, sched, throttle, a.logger),
		Claim:    handler.NewClaimHandler(deps.Keeper, a.logger),
		Contract: handler.NewContractHandler(deps.Keeper, a.logger),
		Rounds:   handler.NewRoundHandler(deps.Keeper, a.logger),
		Metrics:  deps.Metrics.Handler(),
	}, hub, deps.RateLimiter, a.logger)

	if a.cfg.Server.APIKey == "" {
		a.logger.Warn("server.api_key is empty, operator endpoints are unauthenticated")
	}

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
