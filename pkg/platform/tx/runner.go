package tx

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"diocese/pkg/apperrors"
)

// Runner executes fn as one failure-atomic unit. The Postgres runner opens a
// database transaction and carries it in the context so every store call
// inside fn joins it; the in-memory runner serializes on a sharded mutex
// keyed by the lock key in context.
type Runner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

const defaultTxTimeout = 5 * time.Second

// lockKey routes in-memory transactions to a mutex shard, so independent
// entities do not contend. The Postgres runner ignores it.
type lockKeyCtx struct{}

// WithLockKey tags ctx with the entity key the atomic unit is about.
func WithLockKey(ctx context.Context, key string) context.Context {
	if key == "" {
		return ctx
	}
	return context.WithValue(ctx, lockKeyCtx{}, key)
}

// PostgresRunner runs atomic units as real database transactions.
type PostgresRunner struct {
	db      *sql.DB
	timeout time.Duration
}

func NewPostgresRunner(db *sql.DB) *PostgresRunner {
	return &PostgresRunner{db: db}
}

func (r *PostgresRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(err, apperrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := r.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = dbTx.Rollback()
	}()

	if err := fn(WithTx(ctx, dbTx)); err != nil {
		return err
	}
	return dbTx.Commit()
}

// ShardedRunner is the in-memory counterpart: fn runs under one of N shard
// mutexes picked from the context's lock key. It gives per-entity mutual
// exclusion, not rollback; in-memory stores must apply their writes last.
const numShards = 128

type ShardedRunner struct {
	shards  [numShards]sync.Mutex
	timeout time.Duration
}

func NewShardedRunner() *ShardedRunner {
	return &ShardedRunner{}
}

func (r *ShardedRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(err, apperrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := r.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	shard := r.selectShard(ctx)
	r.shards[shard].Lock()
	defer r.shards[shard].Unlock()

	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(err, apperrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	return fn(ctx)
}

func (r *ShardedRunner) selectShard(ctx context.Context) int {
	if key, ok := ctx.Value(lockKeyCtx{}).(string); ok && key != "" {
		return int(fnvHash(key) % numShards)
	}
	return 0
}

// fnvHash is FNV-1a, chosen for distribution over short entity codes.
func fnvHash(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}
