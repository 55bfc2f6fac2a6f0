package match

import (
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/brunovh/grainalloc/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func makeComb(seq int, dest, orig string, dist, cap, origAmount float64) domain.Combination {
	return domain.Combination{
		Seq:              seq,
		DestinationOrder: dest,
		OriginOrder:      orig,
		Grain:            "soy",
		Distance:         dist,
		DistanceResolved: true,
		OriginalCap:      cap,
		AmountOrigin:     origAmount,
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestAllocateNearestFirst(t *testing.T) {
	// One origin (120 units) feeding two destinations. The closer
	// destination is filled first; the farther one takes what is left.
	combs := []domain.Combination{
		makeComb(0, "S1", "B1", 10, 70, 120),
		makeComb(1, "S2", "B1", 5, 50, 120),
	}

	alloc := NewAllocator(testLogger())
	out, totals := alloc.Allocate(combs, nil)

	if len(out) != 2 {
		t.Fatalf("allocations = %d, want 2", len(out))
	}
	if out[0].DestinationOrder != "S2" || !almostEqual(out[0].Quantity, 50) {
		t.Errorf("first allocation = %s/%.0f, want S2/50", out[0].DestinationOrder, out[0].Quantity)
	}
	if out[1].DestinationOrder != "S1" || !almostEqual(out[1].Quantity, 70) {
		t.Errorf("second allocation = %s/%.0f, want S1/70", out[1].DestinationOrder, out[1].Quantity)
	}
	if !almostEqual(totals.Allocated, 120) {
		t.Errorf("total allocated = %.0f, want 120", totals.Allocated)
	}
}

func TestAllocateTieBreakByGenerationOrder(t *testing.T) {
	// Equal distances fall back to generation order, keeping repeated runs
	// over identical inputs byte-identical.
	combs := []domain.Combination{
		makeComb(1, "S2", "B2", 8, 40, 40),
		makeComb(0, "S1", "B1", 8, 40, 40),
	}

	alloc := NewAllocator(testLogger())
	out, _ := alloc.Allocate(combs, nil)

	if len(out) != 2 {
		t.Fatalf("allocations = %d, want 2", len(out))
	}
	if out[0].DestinationOrder != "S1" {
		t.Errorf("first allocation = %s, want S1 (lower seq)", out[0].DestinationOrder)
	}
}

func TestAllocateExhaustedOriginSkipped(t *testing.T) {
	// Once an origin runs dry every later combination using it yields
	// nothing.
	combs := []domain.Combination{
		makeComb(0, "S1", "B1", 1, 100, 30),
		makeComb(1, "S2", "B1", 2, 100, 30),
	}

	alloc := NewAllocator(testLogger())
	out, totals := alloc.Allocate(combs, nil)

	if len(out) != 1 {
		t.Fatalf("allocations = %d, want 1", len(out))
	}
	if !almostEqual(totals.Allocated, 30) {
		t.Errorf("total allocated = %.0f, want 30", totals.Allocated)
	}
	if totals.Processed != 2 {
		t.Errorf("processed = %d, want 2", totals.Processed)
	}
}

func TestAllocateDestinationCapNeverExceeded(t *testing.T) {
	// Several origins compete for one destination; the sum across them
	// must stop exactly at the destination cap.
	combs := []domain.Combination{
		makeComb(0, "S1", "B1", 1, 100, 60),
		makeComb(1, "S1", "B2", 2, 100, 60),
		makeComb(2, "S1", "B3", 3, 100, 60),
	}

	alloc := NewAllocator(testLogger())
	out, totals := alloc.Allocate(combs, nil)

	if !almostEqual(totals.Allocated, 100) {
		t.Fatalf("total allocated = %.0f, want 100 (cap)", totals.Allocated)
	}
	var sum float64
	for _, a := range out {
		sum += a.Quantity
	}
	if !almostEqual(sum, 100) {
		t.Errorf("per-destination sum = %.0f, want 100", sum)
	}
}

func TestAllocateZeroDistanceStillEligible(t *testing.T) {
	// A zero distance (unresolvable route) sorts first but remains
	// allocatable.
	comb := makeComb(0, "S1", "B1", 0, 10, 10)
	comb.DistanceResolved = false

	alloc := NewAllocator(testLogger())
	out, _ := alloc.Allocate([]domain.Combination{comb}, nil)

	if len(out) != 1 || !almostEqual(out[0].Quantity, 10) {
		t.Fatalf("zero-distance combination was not allocated: %+v", out)
	}
}

func TestAllocateFinancials(t *testing.T) {
	comb := makeComb(0, "S1", "B1", 100, 40, 40)
	comb.DestinationPrice = 10.0
	comb.OriginPrice = 7.0
	comb.FreightCost = 2.4
	comb.OriginCredit = 0.6475
	comb.DestinationTax = 0.925
	comb.Profit = 10.0 - (7.0 + 2.4 + (0.925 - 0.6475))

	alloc := NewAllocator(testLogger())
	out, totals := alloc.Allocate([]domain.Combination{comb}, nil)

	if len(out) != 1 {
		t.Fatalf("allocations = %d, want 1", len(out))
	}
	a := out[0]
	if !almostEqual(a.Revenue, 400) {
		t.Errorf("revenue = %v, want 400", a.Revenue)
	}
	if !almostEqual(a.Cost, 280) {
		t.Errorf("cost = %v, want 280", a.Cost)
	}
	if !almostEqual(a.Freight, 96) {
		t.Errorf("freight = %v, want 96", a.Freight)
	}
	if !almostEqual(a.TaxBalance, (0.6475-0.925)*40) {
		t.Errorf("tax balance = %v, want %v", a.TaxBalance, (0.6475-0.925)*40)
	}
	if !almostEqual(a.Profit, comb.Profit*40) {
		t.Errorf("profit = %v, want %v", a.Profit, comb.Profit*40)
	}
	if !almostEqual(totals.Revenue, 400) || !almostEqual(totals.Cost, 280) {
		t.Errorf("totals = %+v", totals)
	}
}

func TestAllocateEmptyInput(t *testing.T) {
	alloc := NewAllocator(testLogger())
	out, totals := alloc.Allocate(nil, nil)

	if len(out) != 0 {
		t.Errorf("allocations = %d, want 0", len(out))
	}
	if totals.Processed != 0 || !almostEqual(totals.Allocated, 0) {
		t.Errorf("totals = %+v, want zero", totals)
	}
}

func TestAllocateDoesNotMutateInput(t *testing.T) {
	combs := []domain.Combination{
		makeComb(0, "S1", "B1", 10, 70, 120),
		makeComb(1, "S2", "B1", 5, 50, 120),
	}

	alloc := NewAllocator(testLogger())
	alloc.Allocate(combs, nil)

	if combs[0].DestinationOrder != "S1" || combs[1].DestinationOrder != "S2" {
		t.Error("input slice was reordered")
	}
}

func TestAllocateDeterministic(t *testing.T) {
	combs := []domain.Combination{
		makeComb(0, "S1", "B1", 10, 70, 120),
		makeComb(1, "S2", "B1", 5, 50, 120),
		makeComb(2, "S2", "B2", 5, 50, 10),
	}

	alloc := NewAllocator(testLogger())
	first, _ := alloc.Allocate(combs, nil)
	second, _ := alloc.Allocate(combs, nil)

	if len(first) != len(second) {
		t.Fatalf("run lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("allocation %d differs between runs", i)
		}
	}
}

func TestAllocateProgressReachesOne(t *testing.T) {
	combs := []domain.Combination{
		makeComb(0, "S1", "B1", 10, 70, 120),
		makeComb(1, "S2", "B1", 5, 50, 120),
	}

	var last float64
	alloc := NewAllocator(testLogger())
	alloc.Allocate(combs, func(frac float64) {
		if frac < last {
			t.Errorf("progress went backwards: %v after %v", frac, last)
		}
		last = frac
	})
	if !almostEqual(last, 1) {
		t.Errorf("final progress = %v, want 1", last)
	}
}
