package retrieval

import (
	"sort"

	"github.com/wekui/ragcore/internal/bm25"
	"github.com/wekui/ragcore/internal/core"
	"github.com/wekui/ragcore/internal/vectorstore"
)

// fuse merges dense and sparse result lists by reciprocal rank fusion
// with constant k, per spec.md §4.1 step 4. Either list may be nil (the
// path didn't run or failed); when only one ran its order is kept.
// Ties are broken by ascending chunk ID so fusion is deterministic.
func fuse(dense []vectorstore.Scored, sparse []bm25.Hit, k int) []core.RankedHit {
	byID := make(map[string]*core.RankedHit)
	order := make([]string, 0, len(dense)+len(sparse))

	for rank, d := range dense {
		hit, ok := byID[d.Chunk.ID]
		if !ok {
			hit = &core.RankedHit{Chunk: d.Chunk}
			byID[d.Chunk.ID] = hit
			order = append(order, d.Chunk.ID)
		}
		score := d.Score
		hit.DenseScore = &score
		hit.DenseRank = rank + 1
	}
	for rank, s := range sparse {
		hit, ok := byID[s.ChunkID]
		if !ok {
			hit = &core.RankedHit{Chunk: core.Chunk{ID: s.ChunkID, Source: s.Source}}
			byID[s.ChunkID] = hit
			order = append(order, s.ChunkID)
		}
		score := s.Score
		hit.SparseScore = &score
		hit.SparseRank = rank + 1
	}

	bothRan := len(dense) > 0 && len(sparse) > 0
	hits := make([]core.RankedHit, 0, len(order))
	for _, id := range order {
		h := byID[id]
		if bothRan {
			fused := rrfScore(h.DenseRank, k) + rrfScore(h.SparseRank, k)
			h.FusedScore = &fused
			h.FinalScore = fused
		} else if h.DenseScore != nil {
			h.FinalScore = *h.DenseScore
		} else if h.SparseScore != nil {
			h.FinalScore = *h.SparseScore
		}
		hits = append(hits, *h)
	}

	if bothRan {
		sort.Slice(hits, func(i, j int) bool {
			if hits[i].FinalScore != hits[j].FinalScore {
				return hits[i].FinalScore > hits[j].FinalScore
			}
			return hits[i].Chunk.ID < hits[j].Chunk.ID
		})
	}
	return hits
}

// rrfScore is 0 for a rank of 0 (absent from that list), per the RRF
// formula's sum over only the lists a document actually appears in.
func rrfScore(rank, k int) float64 {
	if rank == 0 {
		return 0
	}
	return 1.0 / float64(k+rank)
}
