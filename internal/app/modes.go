package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brunovh/grainalloc/internal/domain"
	"github.com/brunovh/grainalloc/internal/pipeline"
	"github.com/brunovh/grainalloc/internal/server"
	"github.com/brunovh/grainalloc/internal/server/handler"
	"github.com/brunovh/grainalloc/internal/server/ws"
)

// ServeMode starts the HTTP and WebSocket status surface and a trigger loop
// that executes one full run per trigger request. It blocks until the
// context is cancelled.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies, runner *pipeline.Runner) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)

	state := runner.State()

	// WebSocket hub bridging the signal bus to connected clients.
	wsHub := ws.NewHub(deps.SignalBus, state.Snapshot, a.logger)
	g.Go(func() error {
		if err := wsHub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	// HTTP API.
	triggerCh := make(chan struct{}, 1)
	handlers := server.Handlers{
		Health: handler.NewHealthHandler(a.logger, map[string]handler.Pinger{
			"postgres": deps.Postgres,
			"redis":    deps.Redis,
		}),
		Run:         handler.NewRunHandler(state, a.logger).WithTriggerChannel(triggerCh),
		Allocations: handler.NewAllocationHandler(deps.Sink, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:               a.cfg.Server.Port,
		CORSOrigins:        a.cfg.Server.CORSOrigins,
		APIKey:             a.cfg.Server.APIKey,
		RateLimitPerMinute: a.cfg.Server.RateLimitPerMinute,
	}, handlers, wsHub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})

	// Graceful HTTP shutdown when the context ends.
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	// Trigger loop: each received trigger executes one full run.
	g.Go(func() error {
		return a.triggerLoop(ctx, runner, triggerCh)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// triggerLoop waits for trigger requests and runs the pipeline once per
// request. A trigger that arrives while a run is in flight is rejected by
// the runner itself; the rejection is logged and the loop keeps waiting.
func (a *App) triggerLoop(ctx context.Context, runner *pipeline.Runner, triggerCh <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-triggerCh:
		}

		a.logger.InfoContext(ctx, "run triggered")
		if err := runner.Run(ctx, pipeline.ModeFull); err != nil {
			if errors.Is(err, domain.ErrRunActive) {
				a.logger.WarnContext(ctx, "trigger rejected, run already in progress")
				continue
			}
			a.logger.ErrorContext(ctx, "run failed",
				slog.String("error", err.Error()),
			)
		}
	}
}
