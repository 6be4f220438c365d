package consolidator

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// KVStore is the dedup hot cache abstraction (lets unit tests replace
// Redis). Keys are only marked after a confirmed commit, so a cache hit
// always means the row is durably in the canonical store; a miss just falls
// through to the store's unique index.
type KVStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	MarkCommitted(ctx context.Context, keys []string, ttl time.Duration) error
}

const dedupKeyPrefix = "ziggy:dedup:"

// RedisKVStore is the go-redis backed implementation.
type RedisKVStore struct {
	client *redis.Client
}

func NewRedisKVStore(client *redis.Client) *RedisKVStore {
	return &RedisKVStore{client: client}
}

func (r *RedisKVStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, dedupKeyPrefix+key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *RedisKVStore) MarkCommitted(ctx context.Context, keys []string, ttl time.Duration) error {
	if len(keys) == 0 {
		return nil
	}
	pipe := r.client.Pipeline()
	for _, key := range keys {
		pipe.Set(ctx, dedupKeyPrefix+key, 1, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}
