package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisLedger struct {
	client *redis.Client
	prefix string
}

// NewRedisLedger creates a Redis-backed request token ledger.
func NewRedisLedger(client *redis.Client) *RedisLedger {
	return &RedisLedger{
		client: client,
		prefix: "oauth1:request_token:",
	}
}

func (r *RedisLedger) key(token string) string {
	return r.prefix + token
}

func (r *RedisLedger) Register(ctx context.Context, token string, ttl time.Duration) error {
	if token == "" {
		return fmt.Errorf("session: missing request token")
	}
	if ttl <= 0 {
		return fmt.Errorf("session: ledger ttl must be positive")
	}

	return r.client.Set(ctx, r.key(token), "pending", ttl).Err()
}

// Consume uses GETDEL so two concurrent callbacks carrying the same
// token cannot both succeed.
func (r *RedisLedger) Consume(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}

	err := r.client.GetDel(ctx, r.key(token)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("session: ledger consume failed: %w", err)
	}
	return true, nil
}
