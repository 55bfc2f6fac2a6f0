package domain

// Allocation is the realized, quantity-bearing outcome of a combination
// after the greedy capacity-constrained pass. Rows are created once and
// never mutated; a run replaces the previous run's full set atomically.
type Allocation struct {
	DestinationOrder string  `json:"destination_order"`
	OriginOrder      string  `json:"origin_order"`
	Buyer            string  `json:"buyer"`
	Seller           string  `json:"seller"`
	Grain            string  `json:"grain"`
	Quantity         float64 `json:"amount_allocated"`
	Revenue          float64 `json:"revenue"`
	Cost             float64 `json:"cost"`
	Freight          float64 `json:"freight"`
	TaxBalance       float64 `json:"tax_balance"`
	Profit           float64 `json:"profit_total"`
	Distance         float64 `json:"distance"`
	FromCoords       Coords  `json:"from_coords"`
	ToCoords         Coords  `json:"to_coords"`
}
