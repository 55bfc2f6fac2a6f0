package domain

import (
	"context"
	"io"
	"time"
)

// OperationStore provides read access to the raw provisioning operations
// that seed a run.
type OperationStore interface {
	// ListOperations returns every provisioning operation, newest first.
	ListOperations(ctx context.Context) ([]RawOperation, error)
}

// CombinationStore persists the candidate-combination working set between
// the generation and allocation stages so a later run can reuse it.
type CombinationStore interface {
	// Replace clears the previous working set and bulk-inserts the new one.
	Replace(ctx context.Context, combs []Combination) error
	// ListByDistance returns the working set ordered by ascending
	// distance with generation order as the tie-break.
	ListByDistance(ctx context.Context) ([]Combination, error)
}

// AllocationSink is the durable table holding the final allocation set of
// the most recent run.
type AllocationSink interface {
	// Prepare ensures the sink is ready to accept a run's output and
	// clears any staging leftovers from a crashed run.
	Prepare(ctx context.Context) error
	// ReplaceAll writes the full allocation set using a staged write:
	// the previous set stays visible until the new one is swapped in.
	ReplaceAll(ctx context.Context, allocs []Allocation) error
	// List returns persisted allocations ordered by ascending distance.
	List(ctx context.Context, limit, offset int) ([]Allocation, error)
}

// DistanceCache is the persisted route-distance cache shared across runs.
type DistanceCache interface {
	// LoadAll returns every cached distance, keyed by location pair.
	LoadAll(ctx context.Context) (map[RouteKey]float64, error)
	// Put stores a freshly computed distance.
	Put(ctx context.Context, key RouteKey, km float64) error
}

// Router computes a driving distance between two coordinate pairs. It has
// no guaranteed latency bound; callers own timeouts via ctx.
type Router interface {
	DrivingDistance(ctx context.Context, from, to Coords) (float64, error)
}

// LockManager guards mutually exclusive work across processes. Acquire
// returns ErrLockHeld when the lock is taken; the returned function
// releases the lock and is safe to call more than once.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// SignalBus is a lightweight pub/sub fan-out used to stream run log lines
// and status changes to live observers.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// RateLimiter applies a request quota per key over a time window.
type RateLimiter interface {
	// Allow reports whether the caller identified by key may proceed.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// BlobWriter uploads an object to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Archiver uploads a completed run's allocation set and stats for
// long-term retention.
type Archiver interface {
	ArchiveRun(ctx context.Context, runID string, allocs []Allocation, stats RunStats) error
}
