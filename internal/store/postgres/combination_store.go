package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brunovh/grainalloc/internal/domain"
)

// CombinationStore implements domain.CombinationStore using PostgreSQL.
type CombinationStore struct {
	pool *pgxpool.Pool
}

// NewCombinationStore creates a CombinationStore backed by the given pool.
func NewCombinationStore(pool *pgxpool.Pool) *CombinationStore {
	return &CombinationStore{pool: pool}
}

const combinationInsert = `
	INSERT INTO combinations (
		seq, destination_order, origin_order, buyer, seller, grain,
		destination_price, origin_price, amount_destination, amount_origin,
		distance, distance_resolved, freight_cost, origin_credit,
		destination_tax, effective_origin_cost, profit,
		original_cap, provisional_allocation,
		from_lon, from_lat, to_lon, to_lat
	) VALUES (
		$1, $2, $3, $4, $5, $6,
		$7, $8, $9, $10,
		$11, $12, $13, $14,
		$15, $16, $17,
		$18, $19,
		$20, $21, $22, $23
	)`

const combinationSelectCols = `seq, destination_order, origin_order, buyer, seller, grain,
	destination_price, origin_price, amount_destination, amount_origin,
	distance, distance_resolved, freight_cost, origin_credit,
	destination_tax, effective_origin_cost, profit,
	original_cap, provisional_allocation,
	from_lon, from_lat, to_lon, to_lat`

// Replace clears the previous working set and bulk-inserts the new one in
// a single transaction using pgx Batch.
func (s *CombinationStore) Replace(ctx context.Context, combs []domain.Combination) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: replace combinations begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM combinations"); err != nil {
		return fmt.Errorf("postgres: clear combinations: %w", err)
	}

	batch := &pgx.Batch{}
	for _, c := range combs {
		batch.Queue(combinationInsert,
			c.Seq, c.DestinationOrder, c.OriginOrder, c.Buyer, c.Seller, c.Grain,
			c.DestinationPrice, c.OriginPrice, c.AmountDestination, c.AmountOrigin,
			c.Distance, c.DistanceResolved, c.FreightCost, c.OriginCredit,
			c.DestinationTax, c.EffectiveOriginCost, c.Profit,
			c.OriginalCap, c.ProvisionalAllocation,
			c.FromCoords[0], c.FromCoords[1], c.ToCoords[0], c.ToCoords[1],
		)
	}

	br := tx.SendBatch(ctx, batch)
	for i := range combs {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("postgres: insert combination %d: %w", i, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("postgres: insert combinations: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: replace combinations commit: %w", err)
	}
	return nil
}

// ListByDistance returns the working set ordered by ascending distance
// with generation order as the tie-break. The ordering here is a
// convenience only; the allocation engine re-sorts explicitly instead of
// relying on store-side guarantees.
func (s *CombinationStore) ListByDistance(ctx context.Context) ([]domain.Combination, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+combinationSelectCols+" FROM combinations ORDER BY distance ASC, seq ASC")
	if err != nil {
		return nil, fmt.Errorf("postgres: list combinations: %w", err)
	}
	defer rows.Close()

	var combs []domain.Combination
	for rows.Next() {
		var c domain.Combination
		if err := rows.Scan(
			&c.Seq, &c.DestinationOrder, &c.OriginOrder, &c.Buyer, &c.Seller, &c.Grain,
			&c.DestinationPrice, &c.OriginPrice, &c.AmountDestination, &c.AmountOrigin,
			&c.Distance, &c.DistanceResolved, &c.FreightCost, &c.OriginCredit,
			&c.DestinationTax, &c.EffectiveOriginCost, &c.Profit,
			&c.OriginalCap, &c.ProvisionalAllocation,
			&c.FromCoords[0], &c.FromCoords[1], &c.ToCoords[0], &c.ToCoords[1],
		); err != nil {
			return nil, fmt.Errorf("postgres: scan combination: %w", err)
		}
		combs = append(combs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list combinations: %w", err)
	}
	return combs, nil
}

// Compile-time interface check.
var _ domain.CombinationStore = (*CombinationStore)(nil)
