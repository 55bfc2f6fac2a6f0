package match

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/brunovh/grainalloc/internal/domain"
)

// Pricing holds the per-unit economics constants used when costing a
// combination.
type Pricing struct {
	// FreightPerKm is the freight rate per kilometer per unit.
	FreightPerKm float64
	// FreightMinimum is the floor applied to the freight cost: very short
	// hauls still incur a minimum service cost.
	FreightMinimum float64
	// TaxRate is the PIS rate applied to tax-applicable orders.
	TaxRate float64
}

// DefaultPricing matches the historical provisioning constants.
func DefaultPricing() Pricing {
	return Pricing{
		FreightPerKm:   0.024,
		FreightMinimum: 1.50,
		TaxRate:        0.0925,
	}
}

// Generator produces every valid candidate pairing of sell and buy orders
// together with its per-unit economics.
type Generator struct {
	resolver    *Resolver
	pricing     Pricing
	concurrency int
	logger      *slog.Logger
}

// NewGenerator creates a Generator. concurrency bounds the number of
// in-flight distance resolutions; values below 1 disable parallelism.
func NewGenerator(resolver *Resolver, pricing Pricing, concurrency int, logger *slog.Logger) *Generator {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Generator{
		resolver:    resolver,
		pricing:     pricing,
		concurrency: concurrency,
		logger:      logger.With(slog.String("component", "generator")),
	}
}

// BuyerRoutes maps a buyer name to the distances observed for that buyer
// during generation, in generation order.
type BuyerRoutes map[string][]float64

// Summaries converts observed route lists to per-buyer averages.
func (b BuyerRoutes) Summaries() map[string]domain.BuyerDistance {
	out := make(map[string]domain.BuyerDistance, len(b))
	for buyer, dists := range b {
		sum := 0.0
		for _, d := range dists {
			sum += d
		}
		avg := 0.0
		if len(dists) > 0 {
			avg = sum / float64(len(dists))
		}
		out[buyer] = domain.BuyerDistance{AverageKm: avg, Routes: len(dists)}
	}
	return out
}

// pair is one pre-indexed valid (sell, buy) pairing. Indexing up front
// keeps the output order deterministic regardless of how the workers
// interleave.
type pair struct {
	seq  int
	sale domain.SellOrder
	buy  domain.BuyOrder
}

// Generate iterates the full sell x buy cross product, skips pairs whose
// grains differ, resolves a distance for each remaining pair, and emits
// one Combination per pair. Economically unfavorable pairs are generated
// like any other; the allocation engine does not filter on profit.
//
// progress, when non-nil, receives the completed fraction in [0, 1].
func (g *Generator) Generate(ctx context.Context, sales []domain.SellOrder, purchases []domain.BuyOrder, progress func(float64)) ([]domain.Combination, BuyerRoutes, error) {
	var pairs []pair
	for _, sale := range sales {
		for _, buy := range purchases {
			if sale.Grain != buy.Grain {
				continue
			}
			pairs = append(pairs, pair{seq: len(pairs), sale: sale, buy: buy})
		}
	}

	g.logger.Info("generating combinations",
		slog.Int("sales", len(sales)),
		slog.Int("purchases", len(purchases)),
		slog.Int("valid_pairs", len(pairs)),
	)

	out := make([]domain.Combination, len(pairs))

	var done int
	var mu sync.Mutex

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.concurrency)
	for _, p := range pairs {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out[p.seq] = g.build(ctx, p)

			if progress != nil {
				mu.Lock()
				done++
				frac := float64(done) / float64(len(pairs))
				mu.Unlock()
				progress(frac)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, nil, err
	}

	routes := make(BuyerRoutes)
	for _, c := range out {
		buyer := c.Buyer
		if buyer == "" {
			buyer = "unknown"
		}
		routes[buyer] = append(routes[buyer], c.Distance)
	}

	return out, routes, nil
}

// build costs a single pairing.
func (g *Generator) build(ctx context.Context, p pair) domain.Combination {
	key := domain.RouteKey{From: p.buy.OriginID, To: p.sale.DestinationID}
	dist, resolved := g.resolver.Resolve(ctx, key, p.buy.OriginCoords, p.sale.DestinationCoords)

	freight := dist * g.pricing.FreightPerKm
	if freight < g.pricing.FreightMinimum {
		freight = g.pricing.FreightMinimum
	}

	var originCredit, destinationTax float64
	if p.buy.HasPIS {
		originCredit = p.buy.BagPrice * g.pricing.TaxRate
	}
	if p.sale.HasPIS {
		destinationTax = p.sale.BagPrice * g.pricing.TaxRate
	}

	effectiveOrigin := p.buy.BagPrice + freight + (destinationTax - originCredit)
	profit := p.sale.BagPrice - effectiveOrigin

	provisional := p.sale.OriginalProvisioned
	if p.buy.Amount < provisional {
		provisional = p.buy.Amount
	}

	return domain.Combination{
		Seq:                   p.seq,
		DestinationOrder:      p.sale.ID,
		OriginOrder:           p.buy.ID,
		Buyer:                 p.sale.Buyer,
		Seller:                p.buy.Seller,
		Grain:                 p.sale.Grain,
		DestinationPrice:      p.sale.BagPrice,
		OriginPrice:           p.buy.BagPrice,
		AmountDestination:     p.sale.Amount,
		AmountOrigin:          p.buy.Amount,
		Distance:              dist,
		DistanceResolved:      resolved,
		FreightCost:           freight,
		OriginCredit:          originCredit,
		DestinationTax:        destinationTax,
		EffectiveOriginCost:   effectiveOrigin,
		Profit:                profit,
		OriginalCap:           p.sale.OriginalProvisioned,
		ProvisionalAllocation: provisional,
		FromCoords:            p.buy.OriginCoords,
		ToCoords:              p.sale.DestinationCoords,
	}
}
