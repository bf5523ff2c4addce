package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"diocese/internal/transfer"
	txcontext "diocese/pkg/platform/tx"
)

// PostgresHistory persists transfer records. The unique index on the natural
// key backs deduplication even under concurrent retransmissions. Methods
// join an ambient transaction from context when one is present.
type PostgresHistory struct {
	db *sql.DB
}

func NewPostgresHistory(db *sql.DB) *PostgresHistory {
	return &PostgresHistory{db: db}
}

type dbQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresHistory) querier(ctx context.Context) dbQuerier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const recordColumns = `id, person_id, person_code, transfer_type,
	from_zone, to_zone,
	COALESCE(from_department, ''), COALESCE(to_department, ''),
	reason, effective_date, created_at`

func (s *PostgresHistory) Append(ctx context.Context, record transfer.Record) error {
	query := `
		INSERT INTO transfer_records (
			id, person_id, person_code, transfer_type,
			from_zone, to_zone, from_department, to_department,
			reason, effective_date, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), $9, $10, $11)
	`
	_, err := s.querier(ctx).ExecContext(ctx, query,
		record.ID, record.PersonID, record.PersonCode, string(record.Type),
		record.FromZone, record.ToZone, record.FromDepartment, record.ToDepartment,
		record.Reason, record.EffectiveDate, record.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert transfer record: %w", err)
	}
	return nil
}

func (s *PostgresHistory) ListByPerson(ctx context.Context, personCode string, transferType transfer.Type) ([]transfer.Record, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM transfer_records
		WHERE ($1 = '' OR person_code = $1)
		  AND ($2 = '' OR transfer_type = $2)
		ORDER BY created_at DESC, id DESC
	`
	rows, err := s.querier(ctx).QueryContext(ctx, query, personCode, string(transferType))
	if err != nil {
		return nil, fmt.Errorf("list transfer records: %w", err)
	}
	defer rows.Close()

	var records []transfer.Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (s *PostgresHistory) FindByNaturalKey(ctx context.Context, key transfer.NaturalKey) (transfer.Record, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM transfer_records
		WHERE person_code = $1
		  AND to_zone = $2
		  AND COALESCE(to_department, '') = $3
		  AND effective_date::date = $4::date
		ORDER BY created_at DESC
		LIMIT 1
	`
	rows, err := s.querier(ctx).QueryContext(ctx, query,
		key.PersonCode, key.ToZone, key.ToDepartment, key.EffectiveDate)
	if err != nil {
		return transfer.Record{}, fmt.Errorf("find transfer record: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return transfer.Record{}, err
		}
		return transfer.Record{}, ErrNotFound
	}
	return scanRecord(rows)
}

func scanRecord(rows *sql.Rows) (transfer.Record, error) {
	var (
		record       transfer.Record
		transferType string
	)
	err := rows.Scan(
		&record.ID, &record.PersonID, &record.PersonCode, &transferType,
		&record.FromZone, &record.ToZone, &record.FromDepartment, &record.ToDepartment,
		&record.Reason, &record.EffectiveDate, &record.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return transfer.Record{}, ErrNotFound
		}
		return transfer.Record{}, fmt.Errorf("scan transfer record: %w", err)
	}
	record.Type = transfer.Type(transferType)
	return record, nil
}
