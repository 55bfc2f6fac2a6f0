package domain

// Coords is a [longitude, latitude] pair, the order used by the routing
// provider and by the source location records.
type Coords [2]float64

// Zero reports whether the coordinate pair was never populated.
func (c Coords) Zero() bool {
	return c[0] == 0 && c[1] == 0
}

// SellOrder is a destination-side demand commitment: a buyer that takes
// delivery of a grain quantity at a fixed location.
type SellOrder struct {
	ID       string
	Grain    string
	BagPrice float64
	Amount   float64

	// OriginalProvisioned is the immutable allocation ceiling for this
	// order. It is fixed at normalization time and never tracks later
	// changes to Amount.
	OriginalProvisioned float64

	Buyer             string
	DestinationID     string
	DestinationCoords Coords
	HasPIS            bool
}

// BuyOrder is an origin-side supply commitment: a seller offering a grain
// quantity for pickup at a fixed location.
type BuyOrder struct {
	ID           string
	Grain        string
	BagPrice     float64
	Amount       float64
	Seller       string
	OriginID     string
	OriginCoords Coords
	HasPIS       bool
}

// RawOperation mirrors the document shape of a provisioning operation in
// the operations store: one destination order plus the origin orders
// provisioned against it. Optional source fields are pointers so the
// loader can distinguish "absent" from zero values.
type RawOperation struct {
	Destination RawSellOrder   `json:"destinationOrder"`
	Origins     []RawOriginRef `json:"originOrders"`
}

// RawOriginRef wraps a nested origin order reference.
type RawOriginRef struct {
	Order RawBuyOrder `json:"order"`
}

// RawSellOrder is the unvalidated destination order record.
type RawSellOrder struct {
	ID                string       `json:"_id"`
	Grain             string       `json:"grain"`
	BagPrice          *float64     `json:"bagPrice"`
	Amount            *float64     `json:"amount"`
	AmountProvisioned *float64     `json:"amountProvisioned"`
	HasPIS            *bool        `json:"hasPIS"`
	Buyer             *RawParty    `json:"buyer"`
	To                *RawLocation `json:"to"`
}

// RawBuyOrder is the unvalidated origin order record.
type RawBuyOrder struct {
	ID       string       `json:"_id"`
	Grain    string       `json:"grain"`
	BagPrice *float64     `json:"bagPrice"`
	Amount   *float64     `json:"amount"`
	HasPIS   *bool        `json:"hasPIS"`
	Seller   *RawParty    `json:"seller"`
	From     *RawLocation `json:"from"`
}

// RawParty is a named counterparty reference.
type RawParty struct {
	Name string `json:"name"`
}

// RawLocation is a location reference with optional geo coordinates.
type RawLocation struct {
	ID       string    `json:"_id"`
	Location *RawPoint `json:"location"`
}

// RawPoint is a GeoJSON-style point.
type RawPoint struct {
	Coordinates []float64 `json:"coordinates"`
}
