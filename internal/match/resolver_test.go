package match

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/brunovh/grainalloc/internal/domain"
)

// fakeDistanceCache is an in-memory domain.DistanceCache.
type fakeDistanceCache struct {
	mu      sync.Mutex
	entries map[domain.RouteKey]float64
	puts    int
	loadErr error
	putErr  error
}

func newFakeDistanceCache() *fakeDistanceCache {
	return &fakeDistanceCache{entries: make(map[domain.RouteKey]float64)}
}

func (f *fakeDistanceCache) LoadAll(ctx context.Context) (map[domain.RouteKey]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	out := make(map[domain.RouteKey]float64, len(f.entries))
	for k, v := range f.entries {
		out[k] = v
	}
	return out, nil
}

func (f *fakeDistanceCache) Put(ctx context.Context, key domain.RouteKey, km float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	f.entries[key] = km
	f.puts++
	return nil
}

// fakeRouter is a scripted domain.Router that counts calls.
type fakeRouter struct {
	mu    sync.Mutex
	km    float64
	err   error
	calls int
}

func (f *fakeRouter) DrivingDistance(ctx context.Context, from, to domain.Coords) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return f.km, nil
}

func (f *fakeRouter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

var (
	testKey  = domain.RouteKey{From: "loc-a", To: "loc-b"}
	testFrom = domain.Coords{-51.2, -23.3}
	testTo   = domain.Coords{-47.1, -22.9}
)

func TestResolvePreloadedHitSkipsRouter(t *testing.T) {
	cache := newFakeDistanceCache()
	cache.entries[testKey] = 42.5
	router := &fakeRouter{km: 99}

	r := NewResolver(cache, router, testLogger())
	if _, err := r.Preload(context.Background()); err != nil {
		t.Fatalf("preload: %v", err)
	}

	km, ok := r.Resolve(context.Background(), testKey, testFrom, testTo)
	if !ok || km != 42.5 {
		t.Fatalf("resolve = (%v, %v), want (42.5, true)", km, ok)
	}
	if router.callCount() != 0 {
		t.Errorf("router calls = %d, want 0", router.callCount())
	}
	if r.Computed() != 0 {
		t.Errorf("computed = %d, want 0", r.Computed())
	}
}

func TestResolveMissCallsRouterAndWritesThrough(t *testing.T) {
	cache := newFakeDistanceCache()
	router := &fakeRouter{km: 17.3}

	r := NewResolver(cache, router, testLogger())

	km, ok := r.Resolve(context.Background(), testKey, testFrom, testTo)
	if !ok || km != 17.3 {
		t.Fatalf("resolve = (%v, %v), want (17.3, true)", km, ok)
	}
	if cache.entries[testKey] != 17.3 {
		t.Errorf("cache entry = %v, want 17.3", cache.entries[testKey])
	}
	if r.Computed() != 1 {
		t.Errorf("computed = %d, want 1", r.Computed())
	}

	// Second resolve is served from memory.
	r.Resolve(context.Background(), testKey, testFrom, testTo)
	if router.callCount() != 1 {
		t.Errorf("router calls = %d, want 1", router.callCount())
	}
}

func TestResolveRouterFailureIsDegradedAndNotRetried(t *testing.T) {
	cache := newFakeDistanceCache()
	router := &fakeRouter{err: errors.New("upstream down")}

	r := NewResolver(cache, router, testLogger())

	km, ok := r.Resolve(context.Background(), testKey, testFrom, testTo)
	if ok || km != 0 {
		t.Fatalf("resolve = (%v, %v), want (0, false)", km, ok)
	}
	if len(cache.entries) != 0 {
		t.Error("failed lookup must not be cached")
	}

	// The failure is remembered for the rest of the run.
	r.Resolve(context.Background(), testKey, testFrom, testTo)
	if router.callCount() != 1 {
		t.Errorf("router calls = %d, want 1 (no retry)", router.callCount())
	}
}

func TestResolveMissingCoordinatesDegradesWithoutRouterCall(t *testing.T) {
	cache := newFakeDistanceCache()
	router := &fakeRouter{km: 10}

	r := NewResolver(cache, router, testLogger())

	km, ok := r.Resolve(context.Background(), testKey, domain.Coords{}, testTo)
	if ok || km != 0 {
		t.Fatalf("resolve = (%v, %v), want (0, false)", km, ok)
	}
	if router.callCount() != 0 {
		t.Errorf("router calls = %d, want 0", router.callCount())
	}
}

func TestResolveCacheWriteFailureStillReturnsDistance(t *testing.T) {
	cache := newFakeDistanceCache()
	cache.putErr = errors.New("cache down")
	router := &fakeRouter{km: 55}

	r := NewResolver(cache, router, testLogger())

	km, ok := r.Resolve(context.Background(), testKey, testFrom, testTo)
	if !ok || km != 55 {
		t.Fatalf("resolve = (%v, %v), want (55, true)", km, ok)
	}
}

func TestResolveConcurrentSameKeySingleRouterCall(t *testing.T) {
	cache := newFakeDistanceCache()
	router := &fakeRouter{km: 33}

	r := NewResolver(cache, router, testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			km, ok := r.Resolve(context.Background(), testKey, testFrom, testTo)
			if !ok || km != 33 {
				t.Errorf("resolve = (%v, %v), want (33, true)", km, ok)
			}
		}()
	}
	wg.Wait()

	if router.callCount() != 1 {
		t.Errorf("router calls = %d, want 1", router.callCount())
	}
}
