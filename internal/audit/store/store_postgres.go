package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"diocese/internal/audit"
)

// PostgresStore persists the ledger in the audit_entries table. Appends are
// idempotent on entry ID so the retry worker can safely re-deliver.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Append inserts one entry. Duplicate IDs are ignored via ON CONFLICT DO
// NOTHING; the ledger has no update path by construction.
func (s *PostgresStore) Append(ctx context.Context, entry audit.Entry) error {
	query := `
		INSERT INTO audit_entries (
			id, action, entity_type, entity_id, actor_id,
			old_value, new_value, timestamp, client_ip, user_agent, request_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query,
		entry.ID,
		string(entry.Action),
		entry.EntityType,
		entry.EntityID,
		entry.ActorID,
		nullableJSON(entry.OldValue),
		nullableJSON(entry.NewValue),
		entry.Timestamp,
		entry.ClientIP,
		entry.UserAgent,
		entry.RequestID,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) Query(ctx context.Context, filter audit.Filter, page audit.Page) (audit.PageResult, error) {
	where, args := buildWhere(filter)
	page = page.Normalize()

	var total int
	countQuery := `SELECT COUNT(*) FROM audit_entries` + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return audit.PageResult{}, fmt.Errorf("count audit entries: %w", err)
	}

	query := `
		SELECT id, action, entity_type, entity_id, actor_id,
		       COALESCE(old_value, 'null'::jsonb), COALESCE(new_value, 'null'::jsonb),
		       timestamp, client_ip, user_agent, request_id
		FROM audit_entries` + where + `
		ORDER BY timestamp DESC, id DESC
		LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)
	args = append(args, page.Limit, page.Offset())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return audit.PageResult{}, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		var (
			entry    audit.Entry
			action   string
			oldValue []byte
			newValue []byte
		)
		err := rows.Scan(
			&entry.ID, &action, &entry.EntityType, &entry.EntityID, &entry.ActorID,
			&oldValue, &newValue, &entry.Timestamp,
			&entry.ClientIP, &entry.UserAgent, &entry.RequestID,
		)
		if err != nil {
			return audit.PageResult{}, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.Action = audit.Action(action)
		if string(oldValue) != "null" {
			entry.OldValue = oldValue
		}
		if string(newValue) != "null" {
			entry.NewValue = newValue
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return audit.PageResult{}, fmt.Errorf("iterate audit entries: %w", err)
	}

	return audit.PageResult{
		Entries: entries,
		Page:    page.Page,
		Limit:   page.Limit,
		Total:   total,
		Pages:   (total + page.Limit - 1) / page.Limit,
	}, nil
}

func buildWhere(f audit.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, strings.Replace(cond, "?", "$"+strconv.Itoa(len(args)), 1))
	}

	if f.EntityType != "" {
		add("entity_type = ?", f.EntityType)
	}
	if f.EntityID != "" {
		add("entity_id = ?", f.EntityID)
	}
	if f.ActorID != "" {
		add("actor_id = ?", f.ActorID)
	}
	if len(f.Actions) > 0 {
		actions := make([]string, len(f.Actions))
		for i, a := range f.Actions {
			actions[i] = string(a)
		}
		add("action = ANY(?)", pq.Array(actions))
	}
	if !f.Start.IsZero() {
		add("timestamp >= ?", f.Start)
	}
	if !f.End.IsZero() {
		add("timestamp <= ?", f.End)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
