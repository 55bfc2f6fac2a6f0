package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brunovh/grainalloc/internal/domain"
)

// AllocationStore implements domain.AllocationSink using PostgreSQL with
// a staged write: each run bulk-inserts into allocations_staging and then
// swaps the staging set into the live table in one transaction, so a
// crash mid-write never leaves the live table empty or half-filled.
type AllocationStore struct {
	pool *pgxpool.Pool
}

// NewAllocationStore creates an AllocationStore backed by the given pool.
func NewAllocationStore(pool *pgxpool.Pool) *AllocationStore {
	return &AllocationStore{pool: pool}
}

const allocationCols = `destination_order, origin_order, buyer, seller, grain,
	amount_allocated, revenue, cost, freight, tax_balance, profit_total,
	distance, from_lon, from_lat, to_lon, to_lat`

// Prepare clears staging leftovers from a previous crashed run.
func (s *AllocationStore) Prepare(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "TRUNCATE allocations_staging"); err != nil {
		return fmt.Errorf("postgres: prepare allocation staging: %w", err)
	}
	return nil
}

// ReplaceAll writes the full allocation set. The previous run's rows stay
// visible until the final swap transaction commits.
func (s *AllocationStore) ReplaceAll(ctx context.Context, allocs []domain.Allocation) error {
	batch := &pgx.Batch{}
	const insert = `
		INSERT INTO allocations_staging (` + allocationCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`
	for _, a := range allocs {
		batch.Queue(insert,
			a.DestinationOrder, a.OriginOrder, a.Buyer, a.Seller, a.Grain,
			a.Quantity, a.Revenue, a.Cost, a.Freight, a.TaxBalance, a.Profit,
			a.Distance, a.FromCoords[0], a.FromCoords[1], a.ToCoords[0], a.ToCoords[1],
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	for i := range allocs {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("postgres: stage allocation %d: %w", i, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("postgres: stage allocations: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: swap allocations begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM allocations"); err != nil {
		return fmt.Errorf("postgres: clear allocations: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO allocations (`+allocationCols+`)
		SELECT `+allocationCols+` FROM allocations_staging ORDER BY id`); err != nil {
		return fmt.Errorf("postgres: swap allocations: %w", err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM allocations_staging"); err != nil {
		return fmt.Errorf("postgres: clear allocation staging: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: swap allocations commit: %w", err)
	}
	return nil
}

// List returns persisted allocations ordered by ascending distance.
func (s *AllocationStore) List(ctx context.Context, limit, offset int) ([]domain.Allocation, error) {
	query := "SELECT " + allocationCols + " FROM allocations ORDER BY distance ASC, id ASC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
		if offset > 0 {
			query += " OFFSET $2"
			args = append(args, offset)
		}
	} else if offset > 0 {
		query += " OFFSET $1"
		args = append(args, offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list allocations: %w", err)
	}
	defer rows.Close()

	var allocs []domain.Allocation
	for rows.Next() {
		var a domain.Allocation
		if err := rows.Scan(
			&a.DestinationOrder, &a.OriginOrder, &a.Buyer, &a.Seller, &a.Grain,
			&a.Quantity, &a.Revenue, &a.Cost, &a.Freight, &a.TaxBalance, &a.Profit,
			&a.Distance, &a.FromCoords[0], &a.FromCoords[1], &a.ToCoords[0], &a.ToCoords[1],
		); err != nil {
			return nil, fmt.Errorf("postgres: scan allocation: %w", err)
		}
		allocs = append(allocs, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list allocations: %w", err)
	}
	return allocs, nil
}

// Compile-time interface check.
var _ domain.AllocationSink = (*AllocationStore)(nil)
