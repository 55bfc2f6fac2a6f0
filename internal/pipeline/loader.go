// Package pipeline wires the provisioning stages into a single runnable
// unit of work: load and normalize orders, resolve distances, generate
// combinations, allocate, and persist.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/brunovh/grainalloc/internal/domain"
)

// Loader fetches raw provisioning operations and normalizes them into
// validated sell and buy orders. It is a pure transformation apart from
// the store read; transport errors and malformed records are fatal for
// the run.
type Loader struct {
	store  domain.OperationStore
	logger *slog.Logger
}

// NewLoader creates a Loader backed by the given operations store.
func NewLoader(store domain.OperationStore, logger *slog.Logger) *Loader {
	return &Loader{
		store:  store,
		logger: logger.With(slog.String("component", "loader")),
	}
}

// Load reads every provisioning operation and splits it into destination
// (sell) and origin (buy) orders. Zero operations yields empty slices and
// no error; the caller decides that an empty run is fatal. A record
// missing a required field fails fast instead of letting a null-like
// sentinel reach the financial math.
func (l *Loader) Load(ctx context.Context) ([]domain.SellOrder, []domain.BuyOrder, int, error) {
	ops, err := l.store.ListOperations(ctx)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("pipeline: list operations: %w", err)
	}

	var sales []domain.SellOrder
	var purchases []domain.BuyOrder

	for i, op := range ops {
		sale, err := normalizeSell(op.Destination)
		if err != nil {
			return nil, nil, 0, fmt.Errorf("pipeline: operation %d destination: %w", i, err)
		}
		sales = append(sales, sale)

		for j, ref := range op.Origins {
			buy, err := normalizeBuy(ref.Order)
			if err != nil {
				return nil, nil, 0, fmt.Errorf("pipeline: operation %d origin %d: %w", i, j, err)
			}
			purchases = append(purchases, buy)
		}
	}

	l.logger.Info("operations normalized",
		slog.Int("operations", len(ops)),
		slog.Int("sales", len(sales)),
		slog.Int("purchases", len(purchases)),
	)

	return sales, purchases, len(ops), nil
}

func normalizeSell(raw domain.RawSellOrder) (domain.SellOrder, error) {
	if raw.ID == "" {
		return domain.SellOrder{}, fmt.Errorf("%w: missing order id", domain.ErrInvalidRecord)
	}
	if raw.Grain == "" {
		return domain.SellOrder{}, fmt.Errorf("%w: order %s: missing grain", domain.ErrInvalidRecord, raw.ID)
	}
	if raw.BagPrice == nil {
		return domain.SellOrder{}, fmt.Errorf("%w: order %s: missing bag price", domain.ErrInvalidRecord, raw.ID)
	}
	if raw.Amount == nil {
		return domain.SellOrder{}, fmt.Errorf("%w: order %s: missing amount", domain.ErrInvalidRecord, raw.ID)
	}
	if raw.To == nil || raw.To.ID == "" {
		return domain.SellOrder{}, fmt.Errorf("%w: order %s: missing destination location", domain.ErrInvalidRecord, raw.ID)
	}

	// The original provisioned amount is the immutable allocation ceiling.
	// When the source carries no distinct value it defaults to the live
	// amount, and that default must be preserved from here on.
	original := *raw.Amount
	if raw.AmountProvisioned != nil {
		original = *raw.AmountProvisioned
	}

	sale := domain.SellOrder{
		ID:                  raw.ID,
		Grain:               raw.Grain,
		BagPrice:            *raw.BagPrice,
		Amount:              *raw.Amount,
		OriginalProvisioned: original,
		DestinationID:       raw.To.ID,
		DestinationCoords:   pointCoords(raw.To.Location),
	}
	if raw.HasPIS != nil {
		sale.HasPIS = *raw.HasPIS
	}
	if raw.Buyer != nil {
		sale.Buyer = raw.Buyer.Name
	}
	return sale, nil
}

func normalizeBuy(raw domain.RawBuyOrder) (domain.BuyOrder, error) {
	if raw.ID == "" {
		return domain.BuyOrder{}, fmt.Errorf("%w: missing order id", domain.ErrInvalidRecord)
	}
	if raw.Grain == "" {
		return domain.BuyOrder{}, fmt.Errorf("%w: order %s: missing grain", domain.ErrInvalidRecord, raw.ID)
	}
	if raw.BagPrice == nil {
		return domain.BuyOrder{}, fmt.Errorf("%w: order %s: missing bag price", domain.ErrInvalidRecord, raw.ID)
	}
	if raw.Amount == nil {
		return domain.BuyOrder{}, fmt.Errorf("%w: order %s: missing amount", domain.ErrInvalidRecord, raw.ID)
	}
	if raw.From == nil || raw.From.ID == "" {
		return domain.BuyOrder{}, fmt.Errorf("%w: order %s: missing origin location", domain.ErrInvalidRecord, raw.ID)
	}

	buy := domain.BuyOrder{
		ID:           raw.ID,
		Grain:        raw.Grain,
		BagPrice:     *raw.BagPrice,
		Amount:       *raw.Amount,
		OriginID:     raw.From.ID,
		OriginCoords: pointCoords(raw.From.Location),
	}
	if raw.HasPIS != nil {
		buy.HasPIS = *raw.HasPIS
	}
	if raw.Seller != nil {
		buy.Seller = raw.Seller.Name
	}
	return buy, nil
}

// pointCoords extracts a coordinate pair, tolerating absent geo data:
// missing coordinates degrade distance resolution, they do not fail the
// record.
func pointCoords(p *domain.RawPoint) domain.Coords {
	if p == nil || len(p.Coordinates) < 2 {
		return domain.Coords{}
	}
	return domain.Coords{p.Coordinates[0], p.Coordinates[1]}
}
