package store

import (
	"context"

	"diocese/internal/allocator"
	"diocese/pkg/apperrors"
)

// SequenceStore is the durable per-scope counter backing code allocation.
// Counters are created lazily on the first Next for a scope and are
// monotonically non-decreasing; a sequence number is never reissued, even
// after the entity it named is deleted.
type SequenceStore interface {
	// Next atomically increments the counter for scope and returns the new
	// value. Two concurrent calls for the same scope never observe the same
	// number.
	Next(ctx context.Context, scope allocator.Scope) (int64, error)

	// Sync raises the counter for scope to at least floor. Used to seed a
	// counter from pre-existing codes when legacy data is ahead of it; a
	// floor below the current value is a no-op.
	Sync(ctx context.Context, scope allocator.Scope, floor int64) error
}

// ErrNotFound keeps storage-level 404s consistent across implementations.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")
