package bm25

import (
	"context"
	"testing"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/wekui/ragcore/internal/core"
	"github.com/wekui/ragcore/internal/vectorstore"
)

func seedStore(t *testing.T, docs map[string]string) *vectorstore.MemoryStore {
	t.Helper()
	store := vectorstore.NewMemoryStore()
	base := time.Now().Add(-time.Hour)
	i := 0
	for id, content := range docs {
		i++
		err := store.Upsert(context.Background(), core.Chunk{
			ID: id, Source: "doc.md", Content: content, CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("seed upsert: %v", err)
		}
	}
	return store
}

func TestIndexSearchRanksMoreRelevantDocHigher(t *testing.T) {
	store := seedStore(t, map[string]string{
		"1": "the quick brown fox jumps over the lazy dog",
		"2": "a fox is a wild canid found across the northern hemisphere",
		"3": "an entirely unrelated document about oceanography and tides",
	})
	idx := New(store, nil)
	if err := idx.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	hits, err := idx.Search("fox", 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits mentioning fox, got %d: %+v", len(hits), hits)
	}
	if hits[0].Score < hits[1].Score {
		t.Fatalf("hits not sorted descending by score: %+v", hits)
	}
}

func TestIndexSearchBeforeInitializeIsBm25Unavailable(t *testing.T) {
	idx := New(vectorstore.NewMemoryStore(), nil)
	_, err := idx.Search("anything", 10, nil)
	if err == nil {
		t.Fatal("expected error searching an uninitialized index")
	}
	ce, ok := core.AsCore(err)
	if !ok || ce.Kind != core.KindBm25Unavailable {
		t.Fatalf("expected KindBm25Unavailable, got %v", err)
	}
}

func TestIndexSearchRespectsSourceFilter(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	base := time.Now().Add(-time.Hour)
	mustUpsert := func(id, source, content string, offset int) {
		if err := store.Upsert(context.Background(), core.Chunk{
			ID: id, Source: source, Content: content, CreatedAt: base.Add(time.Duration(offset) * time.Second),
		}); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	mustUpsert("1", "a.md", "widgets are manufactured here", 1)
	mustUpsert("2", "b.md", "widgets are also manufactured here", 2)

	idx := New(store, nil)
	if err := idx.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	hits, err := idx.Search("widgets", 10, []string{"a.md"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].ChunkID != "1" {
		t.Fatalf("expected only chunk 1 from a.md, got %+v", hits)
	}
}

// TestRefreshIsIdempotent checks that calling Refresh twice with no new
// chunks leaves search results unchanged, per spec.md §8.
func TestRefreshIsIdempotent(t *testing.T) {
	store := seedStore(t, map[string]string{"1": "idempotent refresh behavior under test"})
	idx := New(store, nil)
	if err := idx.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	before, err := idx.Search("idempotent", 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if err := idx.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if err := idx.Refresh(context.Background()); err != nil {
		t.Fatalf("second Refresh: %v", err)
	}

	after, err := idx.Search("idempotent", 10, nil)
	if err != nil {
		t.Fatalf("Search after refresh: %v", err)
	}
	if len(before) != len(after) || before[0].ChunkID != after[0].ChunkID || before[0].Score != after[0].Score {
		t.Fatalf("refresh changed search results: before=%+v after=%+v", before, after)
	}
}

func TestRefreshPicksUpNewChunksOnly(t *testing.T) {
	store := seedStore(t, map[string]string{"1": "original seeded document"})
	idx := New(store, nil)
	if err := idx.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if err := store.Upsert(context.Background(), core.Chunk{
		ID: "2", Source: "doc.md", Content: "freshly added document content", CreatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("upsert new chunk: %v", err)
	}

	if err := idx.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	hits, err := idx.Search("freshly", 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].ChunkID != "2" {
		t.Fatalf("expected to find the newly refreshed chunk, got %+v", hits)
	}
}

func TestInvalidateThenRebuildSweepRemovesDoc(t *testing.T) {
	store := seedStore(t, map[string]string{"1": "document subject to deletion"})
	idx := New(store, nil)
	if err := idx.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	idx.Invalidate("1")

	// Tombstoned but not yet swept: Search must still exclude it.
	hits, err := idx.Search("deletion", 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected tombstoned doc to be excluded from search, got %+v", hits)
	}

	if err := idx.RebuildSweep(context.Background()); err != nil {
		t.Fatalf("RebuildSweep: %v", err)
	}
	snap := idx.snapshot.Load()
	if len(snap.tombstones) != 0 {
		t.Fatalf("expected tombstones to be cleared after sweep, got %v", snap.tombstones)
	}
	if _, ok := snap.docLengths["1"]; ok {
		t.Fatalf("expected doc 1 to be fully removed after sweep")
	}
}

func TestIndexChunksPoolFanoutMatchesInlinePath(t *testing.T) {
	docs := make(map[string]string, poolFanoutThreshold+5)
	for i := 0; i < poolFanoutThreshold+5; i++ {
		docs[string(rune('a'+i%26))+string(rune('0'+i/26))] = "shared token unique" + string(rune('a'+i%26))
	}
	store := seedStore(t, docs)

	inline := New(store, nil)
	if err := inline.Initialize(context.Background()); err != nil {
		t.Fatalf("inline Initialize: %v", err)
	}

	pool, err := ants.NewPool(4)
	if err != nil {
		t.Fatalf("ants.NewPool: %v", err)
	}
	defer pool.Release()
	pooled := New(store, pool)
	if err := pooled.Initialize(context.Background()); err != nil {
		t.Fatalf("pooled Initialize: %v", err)
	}

	inlineHits, err := inline.Search("shared", 100, nil)
	if err != nil {
		t.Fatalf("inline Search: %v", err)
	}
	pooledHits, err := pooled.Search("shared", 100, nil)
	if err != nil {
		t.Fatalf("pooled Search: %v", err)
	}
	if len(inlineHits) != len(pooledHits) {
		t.Fatalf("inline/pooled hit count mismatch: %d vs %d", len(inlineHits), len(pooledHits))
	}
}
