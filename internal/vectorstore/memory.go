package vectorstore

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/wekui/ragcore/internal/core"
)

// MemoryStore is an in-process VectorStore used by tests in place of
// PGVectorStore, grounded on the teacher's own in-memory test doubles
// (chat_pipline/chat_pipline_test.go, rerank/reranker_test.go).
type MemoryStore struct {
	mu     sync.RWMutex
	chunks map[string]core.Chunk
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{chunks: make(map[string]core.Chunk)}
}

func (m *MemoryStore) Upsert(_ context.Context, chunk core.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks[chunk.ID] = chunk
	return nil
}

func (m *MemoryStore) DeleteBySource(_ context.Context, source string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, c := range m.chunks {
		if c.Source == source {
			delete(m.chunks, id)
		}
	}
	return nil
}

func (m *MemoryStore) Search(_ context.Context, query []float32, topK int, sources []string) ([]Scored, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	allow := make(map[string]bool, len(sources))
	for _, s := range sources {
		allow[s] = true
	}

	scored := make([]Scored, 0, len(m.chunks))
	for _, c := range m.chunks {
		if len(allow) > 0 && !allow[c.Source] {
			continue
		}
		scored = append(scored, Scored{Chunk: c, Score: cosine(query, c.Embedding)})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Chunk.ID < scored[j].Chunk.ID
	})
	if topK > 0 && len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

func (m *MemoryStore) ListAllChunks(_ context.Context, sinceWatermark time.Time) ([]core.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]core.Chunk, 0, len(m.chunks))
	for _, c := range m.chunks {
		if !sinceWatermark.IsZero() && !c.CreatedAt.After(sinceWatermark) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
