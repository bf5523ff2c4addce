package store

import (
	"context"
	"database/sql"
	"fmt"

	"diocese/internal/allocator"
	txcontext "diocese/pkg/platform/tx"
)

// PostgresSequenceStore persists counters in the sequence_counters table.
// The increment is a single upsert, so linearizability per scope comes from
// Postgres row locking rather than application-level coordination, and the
// counter survives restarts and concurrent instances.
type PostgresSequenceStore struct {
	db *sql.DB
}

func NewPostgresSequenceStore(db *sql.DB) *PostgresSequenceStore {
	return &PostgresSequenceStore{db: db}
}

type dbQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *PostgresSequenceStore) querier(ctx context.Context) dbQuerier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresSequenceStore) Next(ctx context.Context, scope allocator.Scope) (int64, error) {
	query := `
		INSERT INTO sequence_counters (role, parent_code, last_issued, created_at, updated_at)
		VALUES ($1, $2, 1, now(), now())
		ON CONFLICT (role, parent_code) DO UPDATE SET
			last_issued = sequence_counters.last_issued + 1,
			updated_at = now()
		RETURNING last_issued
	`
	var lastIssued int64
	err := s.querier(ctx).QueryRowContext(ctx, query, string(scope.Role), scope.ParentCode).Scan(&lastIssued)
	if err != nil {
		return 0, fmt.Errorf("increment sequence counter: %w", err)
	}
	return lastIssued, nil
}

func (s *PostgresSequenceStore) Sync(ctx context.Context, scope allocator.Scope, floor int64) error {
	query := `
		INSERT INTO sequence_counters (role, parent_code, last_issued, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		ON CONFLICT (role, parent_code) DO UPDATE SET
			last_issued = GREATEST(sequence_counters.last_issued, EXCLUDED.last_issued),
			updated_at = now()
	`
	if _, err := s.querier(ctx).ExecContext(ctx, query, string(scope.Role), scope.ParentCode, floor); err != nil {
		return fmt.Errorf("sync sequence counter: %w", err)
	}
	return nil
}
