package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brunovh/grainalloc/internal/domain"
)

// OperationStore implements domain.OperationStore using PostgreSQL. The
// upstream system writes provisioning operations as one JSON document per
// row, preserving the nested destination/origin shape the loader expects.
type OperationStore struct {
	pool *pgxpool.Pool
}

// NewOperationStore creates an OperationStore backed by the given pool.
func NewOperationStore(pool *pgxpool.Pool) *OperationStore {
	return &OperationStore{pool: pool}
}

// ListOperations returns every provisioning operation, newest first.
func (s *OperationStore) ListOperations(ctx context.Context) ([]domain.RawOperation, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT payload FROM provisioning_operations ORDER BY id DESC")
	if err != nil {
		return nil, fmt.Errorf("postgres: list operations: %w", err)
	}
	defer rows.Close()

	var ops []domain.RawOperation
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("postgres: scan operation: %w", err)
		}
		var op domain.RawOperation
		if err := json.Unmarshal(payload, &op); err != nil {
			return nil, fmt.Errorf("postgres: decode operation payload: %w", err)
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list operations: %w", err)
	}
	return ops, nil
}

// Compile-time interface check.
var _ domain.OperationStore = (*OperationStore)(nil)
