package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/brunovh/grainalloc/internal/domain"
	"github.com/brunovh/grainalloc/internal/match"
	"github.com/brunovh/grainalloc/internal/run"
)

// Mode selects which stages a run executes.
type Mode string

const (
	// ModeFull loads orders, generates combinations, allocates, and
	// persists the allocation set.
	ModeFull Mode = "full"
	// ModeSync stops after generating and persisting the combination
	// working set.
	ModeSync Mode = "sync"
	// ModeAllocate reuses the stored combination working set and runs
	// only the allocation and persistence stages.
	ModeAllocate Mode = "allocate"
)

// Progress checkpoints assigned at stage boundaries. Values are not a
// continuous percentage; the generation and allocation scans interpolate
// between their boundaries.
const (
	progressPrepared      = 5
	progressLoaded        = 10
	progressDistances     = 20
	progressGenerated     = 60
	progressWorkingSet    = 65
	progressAllocated     = 90
	progressPersisted     = 95
	runLockKey            = "provisioning-run"
	defaultLockTTL        = 30 * time.Minute
	logChannel            = "run:log"
	statusChannel         = "run:status"
)

// Options bundles the collaborators a Runner needs.
type Options struct {
	Operations   domain.OperationStore
	Combinations domain.CombinationStore
	Sink         domain.AllocationSink
	Distances    domain.DistanceCache
	Router       domain.Router
	Locks        domain.LockManager
	Bus          domain.SignalBus
	Archiver     domain.Archiver // optional

	Pricing             match.Pricing
	ResolverConcurrency int
	LockTTL             time.Duration
	Logger              *slog.Logger
}

// Runner executes the provisioning pipeline as one long-running unit of
// work and exposes its status through a run.State. A Runner owns exactly
// one State; at most one run is in flight at a time, enforced both
// in-process (status CAS) and across processes (distributed lock).
type Runner struct {
	state  *run.State
	loader *Loader
	alloc  *match.Allocator
	opts   Options
	logger *slog.Logger
}

// NewRunner creates a Runner and wires the run state's log and status
// fan-out to the signal bus.
func NewRunner(state *run.State, opts Options) *Runner {
	if opts.LockTTL <= 0 {
		opts.LockTTL = defaultLockTTL
	}
	logger := opts.Logger.With(slog.String("component", "runner"))

	r := &Runner{
		state:  state,
		loader: NewLoader(opts.Operations, opts.Logger),
		alloc:  match.NewAllocator(opts.Logger),
		opts:   opts,
		logger: logger,
	}

	if opts.Bus != nil {
		state.SetLogSink(func(e domain.LogEntry) {
			r.publish(logChannel, "run_log", e)
		})
		state.SetStatusSink(func(snap domain.RunSnapshot) {
			r.publish(statusChannel, "run_status", snap)
		})
	}

	return r
}

// State returns the run state owned by this Runner.
func (r *Runner) State() *run.State {
	return r.state
}

// Run executes one provisioning run in the given mode. It returns
// domain.ErrRunActive (or domain.ErrLockHeld) when another run is in
// flight; any other error means the run ended in the Failed status with
// the reason recorded in the log.
func (r *Runner) Run(ctx context.Context, mode Mode) error {
	unlock, err := r.opts.Locks.Acquire(ctx, runLockKey, r.opts.LockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return domain.ErrRunActive
		}
		return fmt.Errorf("pipeline: acquire run lock: %w", err)
	}
	defer unlock()

	runID := uuid.New().String()
	if err := r.state.Begin(runID); err != nil {
		return err
	}

	r.logger.Info("run starting", slog.String("run_id", runID), slog.String("mode", string(mode)))
	r.state.Infof("=== starting provisioning run %s (%s) ===", runID, mode)

	if err := r.execute(ctx, mode); err != nil {
		r.state.Errorf("%v", err)
		r.state.Fail(err)
		r.logger.Error("run failed",
			slog.String("run_id", runID),
			slog.String("error", err.Error()),
		)
		return err
	}

	r.state.Infof("=== provisioning run completed ===")
	r.state.Complete()
	r.logger.Info("run completed", slog.String("run_id", runID))
	return nil
}

// execute runs the stage sequence for the selected mode. The first error
// aborts the run; no stage is retried.
func (r *Runner) execute(ctx context.Context, mode Mode) error {
	if mode != ModeSync {
		if err := r.opts.Sink.Prepare(ctx); err != nil {
			return fmt.Errorf("prepare allocation sink: %w", err)
		}
		r.state.Infof("allocation sink prepared")
	}
	r.state.SetProgress(progressPrepared)

	var combs []domain.Combination
	var err error
	if mode == ModeAllocate {
		combs, err = r.loadStoredCombinations(ctx)
	} else {
		combs, err = r.generateCombinations(ctx)
	}
	if err != nil {
		return err
	}

	r.state.UpdateStats(func(st *domain.RunStats) {
		st.TotalCombinations = len(combs)
	})

	if mode == ModeSync {
		return nil
	}

	allocations, totals := r.alloc.Allocate(combs, func(frac float64) {
		r.state.SetProgress(progressWorkingSet + frac*(progressAllocated-progressWorkingSet))
	})
	r.mergeTotals(totals)
	if len(allocations) == 0 {
		return domain.ErrNoAllocations
	}
	r.state.Infof("allocation finished: %d rows, %.0f units allocated, average distance %.2f km",
		len(allocations), totals.Allocated, totals.AverageDistance)

	if err := r.opts.Sink.ReplaceAll(ctx, allocations); err != nil {
		return fmt.Errorf("persist allocations: %w", err)
	}
	r.state.SetProgress(progressPersisted)
	r.state.Infof("%d allocations persisted", len(allocations))

	if r.opts.Archiver != nil {
		snap := r.state.Snapshot()
		if err := r.opts.Archiver.ArchiveRun(ctx, snap.RunID, allocations, snap.Stats); err != nil {
			// Archiving is retention, not correctness; the run still
			// completes with the sink written.
			r.state.Warnf("run archive failed: %v", err)
		} else {
			r.state.Infof("run archived")
		}
	}

	r.logSummary()
	return nil
}

// generateCombinations runs the load -> resolve -> generate -> persist
// working set stages.
func (r *Runner) generateCombinations(ctx context.Context) ([]domain.Combination, error) {
	sales, purchases, opCount, err := r.loader.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load operations: %w", err)
	}
	r.state.UpdateStats(func(st *domain.RunStats) {
		st.TotalOperations = opCount
		st.TotalSales = len(sales)
		st.TotalPurchases = len(purchases)
	})
	r.state.Infof("%d operations loaded: %d sales, %d purchases", opCount, len(sales), len(purchases))
	if len(sales) == 0 || len(purchases) == 0 {
		return nil, domain.ErrNoOperations
	}
	r.state.SetProgress(progressLoaded)

	resolver := match.NewResolver(r.opts.Distances, r.opts.Router, r.opts.Logger)
	preloaded, err := resolver.Preload(ctx)
	if err != nil {
		return nil, fmt.Errorf("preload distance cache: %w", err)
	}
	r.state.Infof("%d cached distances loaded", preloaded)
	r.state.SetProgress(progressDistances)

	gen := match.NewGenerator(resolver, r.opts.Pricing, r.opts.ResolverConcurrency, r.opts.Logger)
	combs, routes, err := gen.Generate(ctx, sales, purchases, func(frac float64) {
		r.state.SetProgress(progressDistances + frac*(progressGenerated-progressDistances))
	})
	if err != nil {
		return nil, fmt.Errorf("generate combinations: %w", err)
	}
	if len(combs) == 0 {
		return nil, domain.ErrNoCombinations
	}

	summaries := routes.Summaries()
	r.state.UpdateStats(func(st *domain.RunStats) {
		st.DistancesComputed = resolver.Computed()
		st.BuyerDistances = summaries
	})
	r.state.Infof("%d combinations generated, %d distances computed", len(combs), resolver.Computed())
	r.logBuyerRoutes(summaries)

	if err := r.opts.Combinations.Replace(ctx, combs); err != nil {
		return nil, fmt.Errorf("persist combination working set: %w", err)
	}
	r.state.SetProgress(progressWorkingSet)
	r.state.Infof("combination working set replaced")

	return combs, nil
}

// loadStoredCombinations reuses the working set persisted by a previous
// sync stage.
func (r *Runner) loadStoredCombinations(ctx context.Context) ([]domain.Combination, error) {
	combs, err := r.opts.Combinations.ListByDistance(ctx)
	if err != nil {
		return nil, fmt.Errorf("load stored combinations: %w", err)
	}
	if len(combs) == 0 {
		return nil, domain.ErrNoCombinations
	}
	r.state.Infof("%d stored combinations loaded", len(combs))
	r.state.SetProgress(progressWorkingSet)
	return combs, nil
}

func (r *Runner) mergeTotals(t match.Totals) {
	r.state.UpdateStats(func(st *domain.RunStats) {
		st.Processed = t.Processed
		st.TotalAllocated = t.Allocated
		st.TotalRevenue = t.Revenue
		st.TotalCost = t.Cost
		st.TotalProfit = t.Profit
		st.TotalFreight = t.Freight
		st.TotalTaxBalance = t.TaxBalance
		st.AverageDistance = t.AverageDistance
		for grain, qty := range t.GrainTotals {
			st.GrainTotals[grain] = qty
		}
	})
}

func (r *Runner) logBuyerRoutes(summaries map[string]domain.BuyerDistance) {
	buyers := make([]string, 0, len(summaries))
	for b := range summaries {
		buyers = append(buyers, b)
	}
	sort.Strings(buyers)

	r.state.Infof("average distance per buyer:")
	for _, b := range buyers {
		s := summaries[b]
		r.state.Infof("  %s: %.2f km over %d routes", b, s.AverageKm, s.Routes)
	}
}

func (r *Runner) logSummary() {
	snap := r.state.Snapshot()
	st := snap.Stats

	r.state.Infof("=== run summary ===")
	r.state.Infof("total units allocated: %.0f", st.TotalAllocated)
	r.state.Infof("total revenue: %.2f", st.TotalRevenue)
	r.state.Infof("total cost: %.2f", st.TotalCost)
	r.state.Infof("total profit: %.2f", st.TotalProfit)
	r.state.Infof("average distance: %.2f km", st.AverageDistance)

	grains := make([]string, 0, len(st.GrainTotals))
	for g := range st.GrainTotals {
		grains = append(grains, g)
	}
	sort.Strings(grains)
	for _, g := range grains {
		r.state.Infof("  %s: %.0f units", g, st.GrainTotals[g])
	}
}

// publish serializes a bus event envelope; failures are logged and
// dropped, observers are best-effort.
func (r *Runner) publish(channel, kind string, payload any) {
	data, err := json.Marshal(map[string]any{"type": kind, "payload": payload})
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.opts.Bus.Publish(ctx, channel, data); err != nil {
		r.logger.Warn("bus publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}
