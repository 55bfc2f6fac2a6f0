// Package match contains the provisioning core: distance resolution,
// candidate-combination generation, and the greedy capacity-constrained
// allocation pass.
package match

import (
	"context"
	"log/slog"
	"sync"

	"github.com/brunovh/grainalloc/internal/domain"
)

// Resolver answers "driving distance between two locations" with as few
// external calls as possible. It consults an in-memory map preloaded from
// the persisted cache, falls back to the routing service on a miss, and
// writes fresh results through to the cache. A pair is computed at most
// once per run, successes and failures alike.
type Resolver struct {
	cache  domain.DistanceCache
	router domain.Router
	logger *slog.Logger

	mu       sync.Mutex
	known    map[domain.RouteKey]float64
	failed   map[domain.RouteKey]bool
	inflight map[domain.RouteKey]chan struct{}
	computed int
}

// NewResolver creates a Resolver. Call Preload before the first Resolve.
func NewResolver(cache domain.DistanceCache, router domain.Router, logger *slog.Logger) *Resolver {
	return &Resolver{
		cache:    cache,
		router:   router,
		logger:   logger.With(slog.String("component", "resolver")),
		known:    make(map[domain.RouteKey]float64),
		failed:   make(map[domain.RouteKey]bool),
		inflight: make(map[domain.RouteKey]chan struct{}),
	}
}

// Preload populates the in-memory map from the persisted distance cache.
func (r *Resolver) Preload(ctx context.Context) (int, error) {
	cached, err := r.cache.LoadAll(ctx)
	if err != nil {
		return 0, err
	}
	r.mu.Lock()
	for k, v := range cached {
		r.known[k] = v
	}
	n := len(r.known)
	r.mu.Unlock()
	return n, nil
}

// Computed returns how many distances were fetched from the routing
// service during this run.
func (r *Resolver) Computed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.computed
}

// Resolve returns the distance in kilometers for the given location pair
// and whether it was actually resolved. A false second return means the
// degraded path was taken (missing coordinates or routing failure): the
// zero is a substitute, not a measurement, and nothing is cached.
// Resolve is safe for concurrent use across independent pairs.
func (r *Resolver) Resolve(ctx context.Context, key domain.RouteKey, from, to domain.Coords) (float64, bool) {
	for {
		r.mu.Lock()
		if km, ok := r.known[key]; ok {
			r.mu.Unlock()
			return km, true
		}
		if r.failed[key] {
			r.mu.Unlock()
			return 0, false
		}
		if ch, ok := r.inflight[key]; ok {
			r.mu.Unlock()
			select {
			case <-ch:
				continue
			case <-ctx.Done():
				return 0, false
			}
		}
		ch := make(chan struct{})
		r.inflight[key] = ch
		r.mu.Unlock()

		km, ok := r.lookup(ctx, key, from, to)

		r.mu.Lock()
		delete(r.inflight, key)
		if ok {
			r.known[key] = km
			r.computed++
		} else {
			r.failed[key] = true
		}
		close(ch)
		r.mu.Unlock()
		return km, ok
	}
}

// lookup performs the external routing call and the write-through to the
// persisted cache. No retries anywhere on this path.
func (r *Resolver) lookup(ctx context.Context, key domain.RouteKey, from, to domain.Coords) (float64, bool) {
	if key.From == "" || key.To == "" || from.Zero() || to.Zero() {
		return 0, false
	}

	km, err := r.router.DrivingDistance(ctx, from, to)
	if err != nil {
		r.logger.Warn("routing lookup failed",
			slog.String("from", key.From),
			slog.String("to", key.To),
			slog.String("error", err.Error()),
		)
		return 0, false
	}

	if err := r.cache.Put(ctx, key, km); err != nil {
		// The distance is still valid for this run; only persistence for
		// future runs is lost.
		r.logger.Warn("distance cache write failed",
			slog.String("from", key.From),
			slog.String("to", key.To),
			slog.String("error", err.Error()),
		)
	}
	return km, true
}
