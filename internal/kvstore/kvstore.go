// Package kvstore adapts the cache's durable shared tier, grounded on
// the teacher's internal/stream.RedisStreamManager.
package kvstore

import "context"

// DurableKVStore is a raw byte-oriented get/set/delete contract the
// cache's shared tier binds against, per spec.md §4.3/§6.
type DurableKVStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int64) error
	Delete(ctx context.Context, key string) error
}
