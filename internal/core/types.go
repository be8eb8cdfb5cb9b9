package core

import "time"

// Chunk is the immutable unit of retrieval: a bounded slice of a source
// document's text together with its externally-produced dense embedding.
// Two chunks with equal ID are equal, per SPEC_FULL.md §4 / spec.md §3.
type Chunk struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// RankedHit pairs a Chunk with the scores it accrued while moving through
// the pipeline. Nil fields mean "unknown" and never participate in
// ordering, per spec.md §3.
type RankedHit struct {
	Chunk        Chunk
	DenseScore   *float64 `json:"dense_score,omitempty"`
	SparseScore  *float64 `json:"sparse_score,omitempty"`
	FusedScore   *float64 `json:"fused_score,omitempty"`
	RerankScore  *float64 `json:"rerank_score,omitempty"`
	FinalScore   float64  `json:"final_score"`
	DenseRank    int      `json:"-"` // 1-based rank in the dense result list, 0 = absent
	SparseRank   int      `json:"-"` // 1-based rank in the sparse result list, 0 = absent
	Excerpt      string   `json:"excerpt"`
}

// Feature toggles a Query carries, enumerated in spec.md §4.1.
type Features struct {
	UseCache     bool `json:"use_cache"`
	UseHybrid    bool `json:"use_hybrid"`
	UseReranker  bool `json:"use_reranker"`
	UseHyDE      bool `json:"use_hyde"`
	RerankTopK   int  `json:"rerank_top_k"`
}

// Query is the free-form question plus the filter/config the pipeline
// executes against.
type Query struct {
	Text     string   `json:"text"`
	Sources  []string `json:"sources,omitempty"` // empty = all sources
	TopK     int      `json:"top_k"`
	Features Features `json:"features"`
}

// Metadata records which features fired and which soft failures were
// absorbed along the way, per spec.md §4.1's "metadata describing which
// features fired" contract.
type Metadata struct {
	Cache    string `json:"cache,omitempty"`    // "hit" | "miss" | ""
	HyDE     string `json:"hyde,omitempty"`     // "" | "used" | "failed"
	Hybrid   string `json:"hybrid,omitempty"`   // "" | "dense_only" | "sparse_only" | "both"
	Rerank   string `json:"rerank,omitempty"`   // "" | "used" | "failed" | "skipped"
	Answer   string `json:"answer,omitempty"`   // "" | "generated" | "failed"
}

// Result is the full pipeline output: generated answer, ranked evidence
// and metadata describing which features fired.
type Result struct {
	Answer   string      `json:"answer"`
	Hits     []RankedHit `json:"hits"`
	Metadata Metadata    `json:"metadata"`
}

// CacheEntry is the envelope persisted in the durable KV tier, per
// spec.md §6 "Persisted cache-entry layout".
type CacheEntry struct {
	Version       int    `json:"version"`
	CreatedAtMs   int64  `json:"created_at_epoch_ms"`
	TTLMs         int64  `json:"ttl_ms"`
	Payload       Result `json:"payload"`
}
