package match

import (
	"context"
	"testing"

	"github.com/brunovh/grainalloc/internal/domain"
)

func makeSale(id, grain string, price, amount float64, destID string, coords domain.Coords, hasPIS bool) domain.SellOrder {
	return domain.SellOrder{
		ID:                  id,
		Grain:               grain,
		BagPrice:            price,
		Amount:              amount,
		OriginalProvisioned: amount,
		Buyer:               "buyer-" + id,
		DestinationID:       destID,
		DestinationCoords:   coords,
		HasPIS:              hasPIS,
	}
}

func makeBuy(id, grain string, price, amount float64, originID string, coords domain.Coords, hasPIS bool) domain.BuyOrder {
	return domain.BuyOrder{
		ID:           id,
		Grain:        grain,
		BagPrice:     price,
		Amount:       amount,
		Seller:       "seller-" + id,
		OriginID:     originID,
		OriginCoords: coords,
		HasPIS:       hasPIS,
	}
}

func newTestGenerator(km float64, concurrency int) (*Generator, *fakeRouter, *fakeDistanceCache) {
	cache := newFakeDistanceCache()
	router := &fakeRouter{km: km}
	resolver := NewResolver(cache, router, testLogger())
	gen := NewGenerator(resolver, DefaultPricing(), concurrency, testLogger())
	return gen, router, cache
}

func TestGenerateSkipsGrainMismatch(t *testing.T) {
	gen, _, _ := newTestGenerator(100, 1)

	sales := []domain.SellOrder{
		makeSale("s1", "soy", 10, 100, "d1", testTo, false),
		makeSale("s2", "corn", 8, 100, "d2", testTo, false),
	}
	purchases := []domain.BuyOrder{
		makeBuy("b1", "soy", 7, 100, "o1", testFrom, false),
	}

	combs, _, err := gen.Generate(context.Background(), sales, purchases, nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(combs) != 1 {
		t.Fatalf("combinations = %d, want 1 (corn/soy mismatch skipped)", len(combs))
	}
	if combs[0].DestinationOrder != "s1" || combs[0].OriginOrder != "b1" {
		t.Errorf("combination pair = %s/%s, want s1/b1", combs[0].DestinationOrder, combs[0].OriginOrder)
	}
}

func TestGenerateFreightFloor(t *testing.T) {
	// 10 km at 0.024/km is 0.24, well under the 1.50 minimum.
	gen, _, _ := newTestGenerator(10, 1)

	sales := []domain.SellOrder{makeSale("s1", "soy", 10, 100, "d1", testTo, false)}
	purchases := []domain.BuyOrder{makeBuy("b1", "soy", 7, 100, "o1", testFrom, false)}

	combs, _, err := gen.Generate(context.Background(), sales, purchases, nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !almostEqual(combs[0].FreightCost, 1.50) {
		t.Errorf("freight = %v, want 1.50 floor", combs[0].FreightCost)
	}
}

func TestGenerateEconomics(t *testing.T) {
	gen, _, _ := newTestGenerator(500, 1)

	sales := []domain.SellOrder{makeSale("s1", "soy", 20, 100, "d1", testTo, true)}
	purchases := []domain.BuyOrder{makeBuy("b1", "soy", 12, 100, "o1", testFrom, true)}

	combs, _, err := gen.Generate(context.Background(), sales, purchases, nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	c := combs[0]

	wantFreight := 500 * 0.024
	if !almostEqual(c.FreightCost, wantFreight) {
		t.Errorf("freight = %v, want %v", c.FreightCost, wantFreight)
	}
	wantCredit := 12 * 0.0925
	if !almostEqual(c.OriginCredit, wantCredit) {
		t.Errorf("origin credit = %v, want %v", c.OriginCredit, wantCredit)
	}
	wantTax := 20 * 0.0925
	if !almostEqual(c.DestinationTax, wantTax) {
		t.Errorf("destination tax = %v, want %v", c.DestinationTax, wantTax)
	}
	wantEffective := 12 + wantFreight + (wantTax - wantCredit)
	if !almostEqual(c.EffectiveOriginCost, wantEffective) {
		t.Errorf("effective origin cost = %v, want %v", c.EffectiveOriginCost, wantEffective)
	}
	if !almostEqual(c.Profit, 20-wantEffective) {
		t.Errorf("profit = %v, want %v", c.Profit, 20-wantEffective)
	}
}

func TestGenerateNoPISNoTaxTerms(t *testing.T) {
	gen, _, _ := newTestGenerator(500, 1)

	sales := []domain.SellOrder{makeSale("s1", "soy", 20, 100, "d1", testTo, false)}
	purchases := []domain.BuyOrder{makeBuy("b1", "soy", 12, 100, "o1", testFrom, false)}

	combs, _, err := gen.Generate(context.Background(), sales, purchases, nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	c := combs[0]
	if c.OriginCredit != 0 || c.DestinationTax != 0 {
		t.Errorf("tax terms = (%v, %v), want (0, 0) without PIS", c.OriginCredit, c.DestinationTax)
	}
}

func TestGenerateProvisionalAllocation(t *testing.T) {
	gen, _, _ := newTestGenerator(100, 1)

	sales := []domain.SellOrder{makeSale("s1", "soy", 10, 80, "d1", testTo, false)}
	purchases := []domain.BuyOrder{makeBuy("b1", "soy", 7, 50, "o1", testFrom, false)}

	combs, _, err := gen.Generate(context.Background(), sales, purchases, nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !almostEqual(combs[0].ProvisionalAllocation, 50) {
		t.Errorf("provisional = %v, want 50 (min of both sides)", combs[0].ProvisionalAllocation)
	}
	if !almostEqual(combs[0].OriginalCap, 80) {
		t.Errorf("original cap = %v, want 80", combs[0].OriginalCap)
	}
}

func TestGenerateDeterministicOrderUnderConcurrency(t *testing.T) {
	gen, _, _ := newTestGenerator(100, 8)

	var sales []domain.SellOrder
	var purchases []domain.BuyOrder
	for i := 0; i < 6; i++ {
		sales = append(sales, makeSale("s"+string(rune('a'+i)), "soy", 10, 100, "d1", testTo, false))
		purchases = append(purchases, makeBuy("b"+string(rune('a'+i)), "soy", 7, 100, "o1", testFrom, false))
	}

	combs, _, err := gen.Generate(context.Background(), sales, purchases, nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(combs) != 36 {
		t.Fatalf("combinations = %d, want 36", len(combs))
	}
	for i, c := range combs {
		if c.Seq != i {
			t.Fatalf("combination %d has seq %d; output order must match generation order", i, c.Seq)
		}
	}
}

func TestGenerateBuyerRoutes(t *testing.T) {
	gen, _, _ := newTestGenerator(100, 1)

	sales := []domain.SellOrder{
		makeSale("s1", "soy", 10, 100, "d1", testTo, false),
		makeSale("s2", "soy", 11, 100, "d2", domain.Coords{-40.0, -20.0}, false),
	}
	purchases := []domain.BuyOrder{makeBuy("b1", "soy", 7, 100, "o1", testFrom, false)}

	_, routes, err := gen.Generate(context.Background(), sales, purchases, nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	summaries := routes.Summaries()
	if len(summaries) != 2 {
		t.Fatalf("buyers = %d, want 2", len(summaries))
	}
	s1 := summaries["buyer-s1"]
	if s1.Routes != 1 || !almostEqual(s1.AverageKm, 100) {
		t.Errorf("buyer-s1 summary = %+v, want 1 route at 100 km", s1)
	}
}

func TestGenerateEmptyInputs(t *testing.T) {
	gen, _, _ := newTestGenerator(100, 1)

	combs, routes, err := gen.Generate(context.Background(), nil, nil, nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(combs) != 0 || len(routes) != 0 {
		t.Errorf("expected empty output, got %d combinations", len(combs))
	}
}
