package cache

import (
	"context"
	"testing"
	"time"

	"github.com/wekui/ragcore/internal/core"
	"github.com/wekui/ragcore/internal/kvstore"
)

func testQuery(text string) core.Query {
	return core.Query{
		Text:    text,
		Sources: []string{"b.md", "a.md"},
		TopK:    5,
		Features: core.Features{
			UseHybrid:   true,
			UseReranker: true,
			UseHyDE:     false,
			RerankTopK:  3,
		},
	}
}

func TestCachePutGetRoundTrip(t *testing.T) {
	c := New(kvstore.NewMemoryStore(), Config{LocalCapacity: 64, LocalTTL: time.Minute, SharedTTL: time.Minute})
	ctx := context.Background()
	q := testQuery("what is the capital of France?")
	want := core.Result{Answer: "Paris", Metadata: core.Metadata{Answer: "generated"}}

	c.Put(ctx, q, want)

	got, status, err := c.Get(ctx, q)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if status != "hit" {
		t.Fatalf("status = %q, want hit", status)
	}
	if got == nil || got.Answer != want.Answer {
		t.Fatalf("got = %+v, want answer %q", got, want.Answer)
	}
}

func TestCacheGetMissWhenEmpty(t *testing.T) {
	c := New(kvstore.NewMemoryStore(), Config{LocalCapacity: 64, LocalTTL: time.Minute, SharedTTL: time.Minute})
	got, status, err := c.Get(context.Background(), testQuery("never asked before"))
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if status != "miss" || got != nil {
		t.Fatalf("status = %q, got = %+v, want miss/nil", status, got)
	}
}

// TestCacheSharedTierPopulatesLocalOnHit checks that a shared-tier hit
// (local tier empty) backfills the local tier, per spec.md §4.3's read
// order: local miss -> shared hit -> populate local.
func TestCacheSharedTierPopulatesLocalOnHit(t *testing.T) {
	shared := kvstore.NewMemoryStore()
	writer := New(shared, Config{LocalCapacity: 64, LocalTTL: time.Minute, SharedTTL: time.Minute})
	q := testQuery("shared tier question")
	writer.Put(context.Background(), q, core.Result{Answer: "from shared"})

	// Fresh Cache over the same shared store, empty local tier.
	reader := New(shared, Config{LocalCapacity: 64, LocalTTL: time.Minute, SharedTTL: time.Minute})
	key := Fingerprint(q)
	if _, ok := reader.local.get(key); ok {
		t.Fatalf("reader's local tier should start empty")
	}

	got, status, err := reader.Get(context.Background(), q)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if status != "hit" || got == nil || got.Answer != "from shared" {
		t.Fatalf("got = %+v, status = %q, want shared hit", got, status)
	}
	if _, ok := reader.local.get(key); !ok {
		t.Fatalf("local tier was not backfilled after shared-tier hit")
	}
}

// TestCacheDegradesWithoutSharedTier exercises the nil-shared-store
// local-only degraded mode container.go's initKVStore can produce.
func TestCacheDegradesWithoutSharedTier(t *testing.T) {
	c := New(nil, Config{LocalCapacity: 64, LocalTTL: time.Minute, SharedTTL: time.Minute})
	q := testQuery("degraded mode question")
	c.Put(context.Background(), q, core.Result{Answer: "local only"})

	got, status, err := c.Get(context.Background(), q)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if status != "hit" || got == nil || got.Answer != "local only" {
		t.Fatalf("got = %+v, status = %q, want local hit", got, status)
	}
}

func TestFingerprintStableAcrossSourceOrder(t *testing.T) {
	q1 := core.Query{Text: "hello", Sources: []string{"a", "b"}, TopK: 3}
	q2 := core.Query{Text: "hello", Sources: []string{"b", "a"}, TopK: 3}
	if Fingerprint(q1) != Fingerprint(q2) {
		t.Fatalf("fingerprint should be stable across source ordering")
	}
}

func TestFingerprintIgnoresUseCacheToggle(t *testing.T) {
	base := core.Query{Text: "hello", TopK: 3}
	withCache := base
	withCache.Features.UseCache = true
	if Fingerprint(base) != Fingerprint(withCache) {
		t.Fatalf("use_cache must be excluded from the fingerprint per spec.md §4.3")
	}
}

// TestFingerprintUniqueAcrossToggleCombinations checks all 2^4 boolean
// toggle combinations of the fields spec.md §4.3 says DO affect the
// fingerprint produce distinct keys (holding text/sources/top_k fixed).
func TestFingerprintUniqueAcrossToggleCombinations(t *testing.T) {
	seen := make(map[string]core.Features)
	for i := 0; i < 16; i++ {
		f := core.Features{
			UseHybrid:   i&1 != 0,
			UseReranker: i&2 != 0,
			UseHyDE:     i&4 != 0,
			RerankTopK:  i & 8,
		}
		q := core.Query{Text: "same text", TopK: 5, Features: f}
		fp := Fingerprint(q)
		if prior, ok := seen[fp]; ok {
			t.Fatalf("toggle combo %+v collided with %+v at fingerprint %s", f, prior, fp)
		}
		seen[fp] = f
	}
	if len(seen) != 16 {
		t.Fatalf("expected 16 distinct fingerprints, got %d", len(seen))
	}
}

func TestFingerprintNormalizesUnicodeAndWhitespace(t *testing.T) {
	// "café" as a precomposed character vs. "e" + combining acute accent,
	// both trimmed for surrounding whitespace.
	precomposed := core.Query{Text: "  café  ", TopK: 1}
	decomposed := core.Query{Text: "café", TopK: 1}
	if Fingerprint(precomposed) != Fingerprint(decomposed) {
		t.Fatalf("fingerprint should NFC-normalize text before hashing")
	}
}
