package retrieval

import (
	"context"
	"testing"
	"time"

	"github.com/wekui/ragcore/internal/cache"
	"github.com/wekui/ragcore/internal/core"
	"github.com/wekui/ragcore/internal/kvstore"
	"github.com/wekui/ragcore/internal/llmclient"
	"github.com/wekui/ragcore/internal/rerank"
	"github.com/wekui/ragcore/internal/vectorstore"
)

// fakeEmbedder returns a fixed-dimension vector derived from the input's
// length, enough to exercise cosine scoring deterministically without a
// real embedding model.
type fakeEmbedder struct{ dim int }

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, f.dim)
	for i := range v {
		v[i] = float32((len(text) + i) % 7)
	}
	return v, nil
}

func (f *fakeEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = f.Embed(ctx, t)
	}
	return out, nil
}

func (f *fakeEmbedder) ModelName() string { return "fake-embed" }
func (f *fakeEmbedder) Dimensions() int   { return f.dim }
func (f *fakeEmbedder) ModelID() string   { return "fake-embed" }

func testConfig() Config {
	return Config{
		DefaultTopK:        5,
		DefaultRerankTopK:  5,
		MinFanoutK:         10,
		RRFConstant:        60,
		AnswerPromptSystem: "answer using only the provided sources",
		AnswerPromptUser:   "answer the question",
		NoMatchAnswer:      "no matching sources were found",
	}
}

func seedVectorStore(t *testing.T, embedder *fakeEmbedder, docs map[string]string) *vectorstore.MemoryStore {
	t.Helper()
	store := vectorstore.NewMemoryStore()
	now := time.Now()
	for id, content := range docs {
		vec, err := embedder.Embed(context.Background(), content)
		if err != nil {
			t.Fatalf("embed seed doc: %v", err)
		}
		if err := store.Upsert(context.Background(), core.Chunk{
			ID: id, Source: "doc.md", Content: content, Embedding: vec, CreatedAt: now,
		}); err != nil {
			t.Fatalf("upsert seed doc: %v", err)
		}
	}
	return store
}

func TestPipelineRunAnswersFromRetrievedChunks(t *testing.T) {
	embedder := &fakeEmbedder{dim: 8}
	store := seedVectorStore(t, embedder, map[string]string{
		"c1": "Paris is the capital of France.",
	})
	chat := &fakeChat{completeResp: &llmclient.Response{Content: "The capital of France is Paris."}}

	p := New(nil, embedder, store, nil, rerank.New(chat), chat, testConfig())

	result, err := p.Run(context.Background(), core.Query{
		Text: "What is the capital of France?",
		TopK: 3,
	}, nil)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.Answer != "The capital of France is Paris." {
		t.Fatalf("answer = %q", result.Answer)
	}
	if len(result.Hits) != 1 {
		t.Fatalf("expected 1 hit, got %d: %+v", len(result.Hits), result.Hits)
	}
	if result.Metadata.Answer != "generated" {
		t.Fatalf("expected metadata.answer=generated, got %q", result.Metadata.Answer)
	}
	if result.Metadata.Hybrid != "dense_only" {
		t.Fatalf("expected dense_only hybrid mode with UseHybrid unset, got %q", result.Metadata.Hybrid)
	}
}

func TestPipelineNoMatchWhenNoChunksIndexed(t *testing.T) {
	embedder := &fakeEmbedder{dim: 8}
	store := seedVectorStore(t, embedder, nil)
	chat := &fakeChat{completeResp: &llmclient.Response{Content: "should not be called"}}

	p := New(nil, embedder, store, nil, rerank.New(chat), chat, testConfig())

	result, err := p.Run(context.Background(), core.Query{Text: "anything", TopK: 3}, nil)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.Answer != "no matching sources were found" {
		t.Fatalf("expected the no-match answer, got %q", result.Answer)
	}
	if chat.calls != 0 {
		t.Fatalf("expected no LLM call when there are no hits, got %d calls", chat.calls)
	}
}

func TestPipelineCacheHitSkipsRetrieval(t *testing.T) {
	embedder := &fakeEmbedder{dim: 8}
	store := seedVectorStore(t, embedder, map[string]string{
		"c1": "some indexed content",
	})
	chat := &fakeChat{completeResp: &llmclient.Response{Content: "generated answer"}}
	c := cache.New(kvstore.NewMemoryStore(), cache.Config{LocalCapacity: 64, LocalTTL: time.Minute, SharedTTL: time.Minute})

	p := New(c, embedder, store, nil, rerank.New(chat), chat, testConfig())

	query := core.Query{Text: "cache me", TopK: 3, Features: core.Features{UseCache: true}}
	first, err := p.Run(context.Background(), query, nil)
	if err != nil {
		t.Fatalf("first Run returned error: %v", err)
	}
	if first.Metadata.Cache != "miss" {
		t.Fatalf("expected first call to be a cache miss, got %q", first.Metadata.Cache)
	}
	firstCalls := chat.calls

	second, err := p.Run(context.Background(), query, nil)
	if err != nil {
		t.Fatalf("second Run returned error: %v", err)
	}
	if second.Metadata.Cache != "hit" {
		t.Fatalf("expected second call to be a cache hit, got %q", second.Metadata.Cache)
	}
	if chat.calls != firstCalls {
		t.Fatalf("expected no additional LLM calls on a cache hit, went from %d to %d", firstCalls, chat.calls)
	}
	if second.Answer != first.Answer {
		t.Fatalf("cached answer %q does not match original %q", second.Answer, first.Answer)
	}
}
