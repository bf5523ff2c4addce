package store

import (
	"context"

	"diocese/internal/audit"
)

// Store is the ledger's persistence. It is deliberately append-and-read
// only: no update or delete exists for audit entries.
type Store interface {
	Append(ctx context.Context, entry audit.Entry) error
	// Query returns entries matching filter ordered by timestamp descending
	// (ties broken by id descending, so pagination is stable while no new
	// entries land ahead of the cursor).
	Query(ctx context.Context, filter audit.Filter, page audit.Page) (audit.PageResult, error)
}
