package match

import (
	"log/slog"
	"sort"

	"github.com/brunovh/grainalloc/internal/domain"
)

// Totals aggregates the financial outcome of an allocation pass.
type Totals struct {
	Processed       int
	Allocated       float64
	Revenue         float64
	Cost            float64
	Profit          float64
	Freight         float64
	TaxBalance      float64
	AverageDistance float64
	GrainTotals     map[string]float64
}

// Allocator converts a candidate combination set into a concrete
// allocation set under two-sided capacity constraints, shortest distance
// first.
type Allocator struct {
	logger *slog.Logger
}

// NewAllocator creates an Allocator.
func NewAllocator(logger *slog.Logger) *Allocator {
	return &Allocator{logger: logger.With(slog.String("component", "allocator"))}
}

// Allocate runs the single-pass greedy scan. Combinations are sorted by
// ascending distance with generation order as the tie-break, so repeated
// runs over identical inputs produce identical output. The pass is
// intentionally myopic: nearest pairs are serviced first even when a
// farther pair would yield more profit, and capacities are never
// rebalanced afterwards.
//
// progress, when non-nil, receives the scanned fraction in [0, 1].
func (a *Allocator) Allocate(combs []domain.Combination, progress func(float64)) ([]domain.Allocation, Totals) {
	sorted := append([]domain.Combination(nil), combs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Distance != sorted[j].Distance {
			return sorted[i].Distance < sorted[j].Distance
		}
		return sorted[i].Seq < sorted[j].Seq
	})

	destinationRemaining := make(map[string]float64)
	originRemaining := make(map[string]float64)
	allocatedPerDest := make(map[string]float64)

	totals := Totals{GrainTotals: make(map[string]float64)}
	var allocations []domain.Allocation
	var distanceSum float64
	var distanceCount int

	for idx, comb := range sorted {
		totals.Processed = idx + 1
		if progress != nil {
			progress(float64(idx+1) / float64(len(sorted)))
		}

		dest := comb.DestinationOrder
		orig := comb.OriginOrder

		if _, ok := destinationRemaining[dest]; !ok {
			destinationRemaining[dest] = comb.OriginalCap
		}
		if _, ok := originRemaining[orig]; !ok {
			originRemaining[orig] = comb.AmountOrigin
		}

		if destinationRemaining[dest] <= 0 || originRemaining[orig] <= 0 {
			continue
		}

		qty := destinationRemaining[dest]
		if originRemaining[orig] < qty {
			qty = originRemaining[orig]
		}

		// The per-destination accumulator enforces the original cap even
		// when the remaining-capacity map was seeded from a combination
		// generated against stale amounts.
		if allocatedPerDest[dest]+qty > comb.OriginalCap {
			qty = comb.OriginalCap - allocatedPerDest[dest]
			if qty <= 0 {
				continue
			}
		}

		revenue := comb.DestinationPrice * qty
		cost := comb.OriginPrice * qty
		freight := comb.FreightCost * qty
		taxBalance := (comb.OriginCredit - comb.DestinationTax) * qty
		profit := comb.Profit * qty

		destinationRemaining[dest] -= qty
		originRemaining[orig] -= qty
		allocatedPerDest[dest] += qty

		totals.Allocated += qty
		totals.Revenue += revenue
		totals.Cost += cost
		totals.Profit += profit
		totals.Freight += freight
		totals.TaxBalance += taxBalance
		totals.GrainTotals[comb.Grain] += qty

		distanceSum += comb.Distance
		distanceCount++

		allocations = append(allocations, domain.Allocation{
			DestinationOrder: dest,
			OriginOrder:      orig,
			Buyer:            comb.Buyer,
			Seller:           comb.Seller,
			Grain:            comb.Grain,
			Quantity:         qty,
			Revenue:          revenue,
			Cost:             cost,
			Freight:          freight,
			TaxBalance:       taxBalance,
			Profit:           profit,
			Distance:         comb.Distance,
			FromCoords:       comb.FromCoords,
			ToCoords:         comb.ToCoords,
		})
	}

	if distanceCount > 0 {
		totals.AverageDistance = distanceSum / float64(distanceCount)
	}

	a.logger.Info("allocation pass finished",
		slog.Int("combinations", len(sorted)),
		slog.Int("allocations", len(allocations)),
		slog.Float64("total_allocated", totals.Allocated),
		slog.Float64("average_distance", totals.AverageDistance),
	)

	return allocations, totals
}
