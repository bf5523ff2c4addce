package store

import (
	"context"
	"time"

	"diocese/internal/transfer"
	"diocese/pkg/apperrors"
)

var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "transfer record not found")

// HistoryStore holds the append-only transfer history. Implementations join
// an ambient transaction from context when one is present.
type HistoryStore interface {
	Append(ctx context.Context, record transfer.Record) error
	ListByPerson(ctx context.Context, personCode string, transferType transfer.Type) ([]transfer.Record, error)
	// FindByNaturalKey returns the prior record for an identical request, or
	// ErrNotFound.
	FindByNaturalKey(ctx context.Context, key transfer.NaturalKey) (transfer.Record, error)
}

// IdempotencyStore remembers completed results under caller-supplied keys so
// retransmissions short-circuit without touching the history.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (transfer.Result, bool, error)
	Set(ctx context.Context, key string, result transfer.Result, ttl time.Duration) error
}
