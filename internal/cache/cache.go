// Package cache implements the two-tier query cache of spec.md §4.3:
// a bounded process-local LRU ahead of a durable shared tier, grounded
// on the teacher's internal/stream package's dual memory/Redis managers.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wekui/ragcore/internal/core"
	"github.com/wekui/ragcore/internal/kvstore"
	"github.com/wekui/ragcore/internal/logger"
)

// Config tunes the local tier's capacity/TTL and the shared tier's TTL.
type Config struct {
	LocalCapacity int
	LocalTTL      time.Duration
	SharedTTL     time.Duration
}

// Cache is the read-through/write-through two-tier Result cache.
type Cache struct {
	local  *localTier
	shared kvstore.DurableKVStore
	cfg    Config
}

// New builds a Cache. shared may be nil to run local-tier-only (the
// "shared tier unreachable" degraded mode spec.md §4.3 describes, made
// permanent rather than transient).
func New(shared kvstore.DurableKVStore, cfg Config) *Cache {
	return &Cache{
		local:  newLocalTier(cfg.LocalCapacity, cfg.LocalTTL),
		shared: shared,
		cfg:    cfg,
	}
}

// Get reads local first, falling back to shared on a local miss and
// populating local on a shared hit, per spec.md §4.3's read order.
func (c *Cache) Get(ctx context.Context, query core.Query) (*core.Result, string, error) {
	key := Fingerprint(query)

	if raw, ok := c.local.get(key); ok {
		result, err := decode(raw)
		if err != nil {
			return nil, "miss", nil
		}
		return result, "hit", nil
	}

	if c.shared == nil {
		return nil, "miss", nil
	}

	raw, ok, err := c.shared.Get(ctx, key)
	if err != nil {
		logger.GetLogger(ctx).Warnf("cache: shared tier read failed, treating as miss: %v", err)
		return nil, "miss", core.New(core.KindCacheUnavailable, "shared cache read failed", err)
	}
	if !ok {
		return nil, "miss", nil
	}

	result, err := decode(raw)
	if err != nil {
		return nil, "miss", nil
	}
	c.local.put(key, raw)
	return result, "hit", nil
}

// Put writes local then shared, per spec.md §4.3's write order; a
// shared-tier failure is logged, not rolled back and not propagated —
// the local write already happened and stands.
func (c *Cache) Put(ctx context.Context, query core.Query, result core.Result) {
	key := Fingerprint(query)

	envelope := core.CacheEntry{
		Version:     1,
		CreatedAtMs: nowMillis(),
		TTLMs:       c.cfg.SharedTTL.Milliseconds(),
		Payload:     result,
	}
	raw, err := json.Marshal(envelope)
	if err != nil {
		logger.GetLogger(ctx).Errorf("cache: encode entry failed: %v", err)
		return
	}

	c.local.put(key, raw)

	if c.shared == nil {
		return
	}
	ttlSeconds := int64(c.cfg.SharedTTL.Seconds())
	if err := c.shared.Set(ctx, key, raw, ttlSeconds); err != nil {
		logger.GetLogger(ctx).Warnf("cache: shared tier write failed, local tier still holds fresh value: %v", err)
	}
}

func decode(raw []byte) (*core.Result, error) {
	var envelope core.CacheEntry
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("cache: decode entry: %w", err)
	}
	return &envelope.Payload, nil
}

// nowMillis is the one non-deterministic primitive in this package,
// isolated so tests can stub CreatedAtMs without touching clock state.
var nowMillis = func() int64 { return time.Now().UnixMilli() }
