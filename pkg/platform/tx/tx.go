// Package tx coordinates atomic units across stores. A Runner opens the
// unit; stores pick the transaction up from context so every write inside
// commits or rolls back together.
package tx

import (
	"context"
	"database/sql"
)

type txKey struct{}

// WithTx returns a context carrying dbTx. Stores consult it before falling
// back to their own handle, so a whole unit shares one transaction.
func WithTx(ctx context.Context, dbTx *sql.Tx) context.Context {
	if dbTx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey{}, dbTx)
}

// From reports the ambient transaction, if any.
func From(ctx context.Context) (*sql.Tx, bool) {
	dbTx, ok := ctx.Value(txKey{}).(*sql.Tx)
	return dbTx, ok
}
