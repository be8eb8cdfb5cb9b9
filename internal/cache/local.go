package cache

import (
	"hash/fnv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// localEntry pairs a cached payload with its own expiry, since the LRU
// cache itself only bounds by count, not time.
type localEntry struct {
	value     []byte
	expiresAt time.Time
}

// localTier is a 16-way sharded, bounded LRU used as the process-local
// cache tier of spec.md §4.3, grounded on the teacher's per-resource-
// mutex style (RetrieveEngineRegistry.mu, MemoryStreamManager.mu).
type localTier struct {
	shards []*localShard
	ttl    time.Duration
}

type localShard struct {
	mu    sync.Mutex
	cache *lru.Cache[string, localEntry]
}

const shardCount = 16

func newLocalTier(capacity int, ttl time.Duration) *localTier {
	if capacity <= 0 {
		capacity = 1024
	}
	perShard := max(capacity/shardCount, 1)

	t := &localTier{shards: make([]*localShard, shardCount), ttl: ttl}
	for i := range t.shards {
		c, _ := lru.New[string, localEntry](perShard)
		t.shards[i] = &localShard{cache: c}
	}
	return t
}

func (t *localTier) shardFor(key string) *localShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return t.shards[h.Sum32()%uint32(len(t.shards))]
}

func (t *localTier) get(key string) ([]byte, bool) {
	shard := t.shardFor(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	entry, ok := shard.cache.Get(key)
	if !ok {
		return nil, false
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		shard.cache.Remove(key)
		return nil, false
	}
	return entry.value, true
}

func (t *localTier) put(key string, value []byte) {
	shard := t.shardFor(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	var expires time.Time
	if t.ttl > 0 {
		expires = time.Now().Add(t.ttl)
	}
	shard.cache.Add(key, localEntry{value: value, expiresAt: expires})
}
