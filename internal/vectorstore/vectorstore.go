// Package vectorstore adapts the dense nearest-neighbor backend behind
// a narrow contract, grounded on the teacher's
// internal/application/repository/retriever/postgres package.
package vectorstore

import (
	"context"
	"time"

	"github.com/wekui/ragcore/internal/core"
)

// Scored pairs a Chunk with its similarity score for the dense leg of
// spec.md §4.1's hybrid retrieval.
type Scored struct {
	Chunk core.Chunk
	Score float64
}

// VectorStore is the dense-retrieval collaborator contract of spec.md §6.
// Implementations never chunk or embed documents themselves — ingestion
// is out of scope — they only persist and search already-embedded chunks.
type VectorStore interface {
	// Search returns the topK nearest chunks to query by cosine similarity,
	// optionally restricted to sources.
	Search(ctx context.Context, query []float32, topK int, sources []string) ([]Scored, error)
	// Upsert stores or replaces a chunk's vector.
	Upsert(ctx context.Context, chunk core.Chunk) error
	// DeleteBySource removes every chunk belonging to source.
	DeleteBySource(ctx context.Context, source string) error
	// ListAllChunks streams every chunk created after sinceWatermark (the
	// zero Time means "from the beginning"), for BM25's Initialize/Refresh.
	ListAllChunks(ctx context.Context, sinceWatermark time.Time) ([]core.Chunk, error)
}
