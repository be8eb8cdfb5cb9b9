package bm25

import (
	"context"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/wekui/ragcore/internal/core"
	"github.com/wekui/ragcore/internal/logger"
	"github.com/wekui/ragcore/internal/vectorstore"
)

const (
	k1 = 1.5
	b  = 0.75
)

// Hit is one scored sparse-retrieval result, per spec.md §4.2's
// Search contract.
type Hit struct {
	ChunkID string
	Source  string
	Score   float64
}

// Index is the in-process inverted index of spec.md §4.2. A single
// writer (Initialize/Refresh/Invalidate) excludes all others via mu;
// Search only ever dereferences the atomic pointer, never the mutex,
// so readers never block on a writer.
type Index struct {
	snapshot atomic.Pointer[Snapshot]
	mu       sync.Mutex
	pool     *ants.Pool
	store    vectorstore.VectorStore
}

// New builds an empty Index. pool is used to parallelize the bulk scan
// in Initialize; store supplies the chunk set to index.
func New(store vectorstore.VectorStore, pool *ants.Pool) *Index {
	idx := &Index{pool: pool, store: store}
	idx.snapshot.Store(emptySnapshot())
	return idx
}

// Initialize populates the index from the vector store's full chunk
// set. Idempotent and serialized against itself and Refresh/Invalidate.
func (idx *Index) Initialize(ctx context.Context) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	chunks, err := idx.store.ListAllChunks(ctx, time.Time{})
	if err != nil {
		return core.New(core.KindBm25Unavailable, "bm25 initialize: list chunks", err)
	}

	next := emptySnapshot()
	idx.indexChunks(next, chunks)
	idx.snapshot.Store(next)
	logger.GetLogger(ctx).Infof("bm25: initialized with %d chunks", len(chunks))
	return nil
}

// Refresh incrementally indexes chunks created after the current
// watermark and advances it, per spec.md §4.2.
func (idx *Index) Refresh(ctx context.Context) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	current := idx.snapshot.Load()
	since := time.Time{}
	if current.watermark > 0 {
		since = time.Unix(0, current.watermark)
	}

	chunks, err := idx.store.ListAllChunks(ctx, since)
	if err != nil {
		return core.New(core.KindBm25Unavailable, "bm25 refresh: list chunks", err)
	}
	if len(chunks) == 0 {
		return nil
	}

	next := current.clone()
	idx.indexChunks(next, chunks)
	idx.snapshot.Store(next)
	logger.GetLogger(ctx).Infof("bm25: refreshed with %d new chunks", len(chunks))
	return nil
}

// RebuildSweep clears tombstoned documents, run periodically per
// SPEC_FULL.md §10's lazy BM25 deletion decision.
func (idx *Index) RebuildSweep(ctx context.Context) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	current := idx.snapshot.Load()
	if len(current.tombstones) == 0 {
		return nil
	}
	next := current.clone()
	next.sweepTombstones()
	idx.snapshot.Store(next)
	logger.GetLogger(ctx).Infof("bm25: swept %d tombstoned documents", len(current.tombstones))
	return nil
}

// Invalidate tombstones a single chunk id for the next RebuildSweep;
// a zero-duration synchronous option isn't offered since incremental
// deletion is permitted but not required (spec.md §9).
func (idx *Index) Invalidate(id string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	current := idx.snapshot.Load()
	next := current.clone()
	next.tombstones[id] = true
	idx.snapshot.Store(next)
}

// tokenizedChunk is a chunk with its tokenization already done, so the
// expensive part of indexing can run on idx.pool while the cheap
// postings merge stays single-threaded against snap.
type tokenizedChunk struct {
	id, source string
	tokens     []string
	createdAt  time.Time
}

const poolFanoutThreshold = 64

// indexChunks adds each chunk to snap and advances its watermark.
// Tokenization fans out across idx.pool once there are enough chunks to
// make it worthwhile (grounded on the teacher's ants-pool bulk
// processing shape); the postings merge itself always runs inline since
// it mutates snap's maps.
func (idx *Index) indexChunks(snap *Snapshot, chunks []core.Chunk) {
	if idx.pool == nil || len(chunks) < poolFanoutThreshold {
		for _, c := range chunks {
			snap.addDoc(c.ID, c.Source, c.Content)
			bumpWatermark(snap, c.CreatedAt)
		}
		return
	}

	tokenized := make([]tokenizedChunk, len(chunks))
	var wg sync.WaitGroup
	for i, c := range chunks {
		wg.Add(1)
		i, c := i, c
		err := idx.pool.Submit(func() {
			defer wg.Done()
			tokenized[i] = tokenizedChunk{id: c.ID, source: c.Source, tokens: Tokenize(c.Content), createdAt: c.CreatedAt}
		})
		if err != nil {
			wg.Done()
			tokenized[i] = tokenizedChunk{id: c.ID, source: c.Source, tokens: Tokenize(c.Content), createdAt: c.CreatedAt}
		}
	}
	wg.Wait()

	for _, tc := range tokenized {
		snap.addDocTokens(tc.id, tc.source, tc.tokens)
		bumpWatermark(snap, tc.createdAt)
	}
}

func bumpWatermark(snap *Snapshot, createdAt time.Time) {
	if ts := createdAt.UnixNano(); ts > snap.watermark {
		snap.watermark = ts
	}
}

// Search returns up to topK hits for query, restricted to filter (empty
// = all sources), scored by Okapi BM25 (k1=1.5, b=0.75).
func (idx *Index) Search(query string, topK int, filter []string) ([]Hit, error) {
	snap := idx.snapshot.Load()
	if len(snap.docLengths) == 0 {
		return nil, core.New(core.KindBm25Unavailable, "bm25 search: index not initialized", nil)
	}

	allow := make(map[string]bool, len(filter))
	for _, s := range filter {
		allow[s] = true
	}

	terms := Tokenize(query)
	scores := make(map[string]float64)
	n := float64(len(snap.docLengths))

	for _, term := range uniqueTerms(terms) {
		list := snap.postings[term]
		if len(list) == 0 {
			continue
		}
		idf := math.Log(1 + (n-float64(len(list))+0.5)/(float64(len(list))+0.5))
		for _, p := range list {
			if snap.tombstones[p.docID] {
				continue
			}
			if len(allow) > 0 && !allow[snap.docSources[p.docID]] {
				continue
			}
			dl := float64(snap.docLengths[p.docID])
			tf := float64(p.freq)
			denom := tf + k1*(1-b+b*dl/maxFloat(snap.avgdl, 1))
			scores[p.docID] += idf * (tf * (k1 + 1)) / denom
		}
	}

	hits := make([]Hit, 0, len(scores))
	for docID, score := range scores {
		hits = append(hits, Hit{ChunkID: docID, Source: snap.docSources[docID], Score: score})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func uniqueTerms(tokens []string) []string {
	seen := make(map[string]bool, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
