package domain

// Combination is a candidate pairing of one sell order and one buy order
// of the same grain, with its resolved distance and per-unit economics.
// A Combination is immutable once generated; remaining-capacity state
// lives in the allocation engine, keyed by order identity.
type Combination struct {
	// Seq is the generation-order index. The allocation engine sorts by
	// ascending Distance and breaks ties on Seq, which makes the pass
	// deterministic for fixed inputs.
	Seq int

	DestinationOrder string
	OriginOrder      string
	Buyer            string
	Seller           string
	Grain            string

	DestinationPrice  float64
	OriginPrice       float64
	AmountDestination float64
	AmountOrigin      float64

	Distance float64
	// DistanceResolved is false when the resolver took its degraded path
	// (missing coordinates or a routing failure) and substituted zero.
	// A genuine zero-kilometer route has DistanceResolved true.
	DistanceResolved bool

	FreightCost         float64
	OriginCredit        float64
	DestinationTax      float64
	EffectiveOriginCost float64
	Profit              float64

	// OriginalCap is the destination order's immutable allocation ceiling
	// at generation time.
	OriginalCap float64
	// ProvisionalAllocation is min(OriginalCap, AmountOrigin). It is a
	// pre-allocation estimate only; the engine decides the real quantity.
	ProvisionalAllocation float64

	FromCoords Coords
	ToCoords   Coords
}

// RouteKey identifies a cached distance by the ordered pair of location
// identifiers.
type RouteKey struct {
	From string
	To   string
}
