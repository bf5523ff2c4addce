package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"diocese/internal/platform/redis"
	"diocese/internal/transfer"
)

const idempotencyKeyPrefix = "transfer:idem:"

// RedisIdempotency stores completed transfer results under caller-supplied
// keys with a TTL, so retransmissions replay the original result across
// process restarts and replicas.
type RedisIdempotency struct {
	client *redis.Client
}

func NewRedisIdempotency(client *redis.Client) *RedisIdempotency {
	return &RedisIdempotency{client: client}
}

func (s *RedisIdempotency) Get(ctx context.Context, key string) (transfer.Result, bool, error) {
	raw, err := s.client.Get(ctx, idempotencyKeyPrefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return transfer.Result{}, false, nil
	}
	if err != nil {
		return transfer.Result{}, false, fmt.Errorf("get idempotency key: %w", err)
	}

	var result transfer.Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return transfer.Result{}, false, fmt.Errorf("decode idempotency result: %w", err)
	}
	return result, true, nil
}

func (s *RedisIdempotency) Set(ctx context.Context, key string, result transfer.Result, ttl time.Duration) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode idempotency result: %w", err)
	}
	if err := s.client.Set(ctx, idempotencyKeyPrefix+key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("set idempotency key: %w", err)
	}
	return nil
}
