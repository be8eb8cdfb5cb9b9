package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements DurableKVStore atop go-redis, grounded on the
// teacher's internal/stream.RedisStreamManager connection/key shape.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore dials addr and verifies connectivity with a Ping, exactly
// as the teacher's NewRedisStreamManager does.
func NewRedisStore(addr, password string, db int, prefix string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if _, err := client.Ping(context.Background()).Result(); err != nil {
		return nil, fmt.Errorf("kvstore: connect to redis: %w", err)
	}
	if prefix == "" {
		prefix = "ragcore:"
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

func (r *RedisStore) key(k string) string {
	return r.prefix + k
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("kvstore: get: %w", err)
	}
	return data, true, nil
}

// Set stores value under key with the given TTL. go-redis treats a
// zero TTL as "no expiry", so a non-positive ttlSeconds is instead
// translated into an immediate delete — the entry must read back
// absent, not live forever.
func (r *RedisStore) Set(ctx context.Context, key string, value []byte, ttlSeconds int64) error {
	if ttlSeconds <= 0 {
		if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
			return fmt.Errorf("kvstore: set (expire immediately): %w", err)
		}
		return nil
	}
	ttl := time.Duration(ttlSeconds) * time.Second
	if err := r.client.Set(ctx, r.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("kvstore: set: %w", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("kvstore: delete: %w", err)
	}
	return nil
}
