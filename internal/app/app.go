// Package app provides the top-level application lifecycle management for
// the allocation engine. It wires together all dependencies (stores, caches,
// routing, blob storage, and the run pipeline) and starts the appropriate
// goroutines based on the configured operating mode.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/brunovh/grainalloc/internal/config"
	"github.com/brunovh/grainalloc/internal/match"
	"github.com/brunovh/grainalloc/internal/pipeline"
	"github.com/brunovh/grainalloc/internal/run"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, selects the
// operating mode, starts the corresponding goroutines, and blocks until the
// context is cancelled or the work completes. On return the caller should
// invoke Close to release resources.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	runner := a.buildRunner(deps)

	mode := strings.ToLower(a.cfg.Mode)
	switch mode {
	case "sync":
		return runner.Run(ctx, pipeline.ModeSync)
	case "allocate":
		return runner.Run(ctx, pipeline.ModeAllocate)
	case "run":
		return runner.Run(ctx, pipeline.ModeFull)
	case "serve":
		return a.ServeMode(ctx, deps, runner)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// buildRunner assembles the pipeline Runner from the wired dependencies.
func (a *App) buildRunner(deps *Dependencies) *pipeline.Runner {
	pricing := match.Pricing{
		FreightPerKm:   a.cfg.Pricing.FreightPerKm,
		FreightMinimum: a.cfg.Pricing.FreightMinimum,
		TaxRate:        a.cfg.Pricing.TaxRate,
	}

	return pipeline.NewRunner(run.New(), pipeline.Options{
		Operations:          deps.Operations,
		Combinations:        deps.Combinations,
		Sink:                deps.Sink,
		Distances:           deps.Distances,
		Router:              deps.Router,
		Locks:               deps.LockManager,
		Bus:                 deps.SignalBus,
		Archiver:            deps.Archiver,
		Pricing:             pricing,
		ResolverConcurrency: a.cfg.Run.ResolverConcurrency,
		LockTTL:             a.cfg.Run.LockTTL.Duration,
		Logger:              a.logger,
	})
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
