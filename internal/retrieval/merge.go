package retrieval

import (
	"sort"
	"strings"

	"github.com/wekui/ragcore/internal/core"
)

// mergeAdjacent coalesces ranked hits from the same source whose
// excerpts overlap, so the answer prompt doesn't repeat the same
// sentence twice split across two chunks. Unlike the teacher's span-
// indexed merge, chunks here carry no stored start/end offset, so
// overlap is detected textually (on Excerpt, or on Chunk.Content when a
// hit has no excerpt): if one excerpt's trailing run of
// characters matches the other's leading run, the two are joined along
// that overlap. Chunks that don't overlap are left standalone. This is
// a supplemented feature — spec.md's pipeline contract stops at rerank
// and answer generation — run (if enabled) between rerank and answer
// generation.
func mergeAdjacent(hits []core.RankedHit) []core.RankedHit {
	if len(hits) == 0 {
		return hits
	}

	bySource := make(map[string][]core.RankedHit)
	var sourceOrder []string
	for _, h := range hits {
		if _, ok := bySource[h.Chunk.Source]; !ok {
			sourceOrder = append(sourceOrder, h.Chunk.Source)
		}
		bySource[h.Chunk.Source] = append(bySource[h.Chunk.Source], h)
	}

	merged := make([]core.RankedHit, 0, len(hits))
	for _, source := range sourceOrder {
		group := bySource[source]
		sort.Slice(group, func(i, j int) bool { return group[i].Chunk.ID < group[j].Chunk.ID })

		current := group[0]
		for i := 1; i < len(group); i++ {
			next := group[i]
			a, b := current.Excerpt, next.Excerpt
			if a == "" {
				a = current.Chunk.Content
			}
			if b == "" {
				b = next.Chunk.Content
			}
			if overlap := overlapLength(a, b); overlap > 0 {
				current.Excerpt = a + b[overlap:]
				if next.FinalScore > current.FinalScore {
					current.FinalScore = next.FinalScore
				}
				continue
			}
			merged = append(merged, current)
			current = next
		}
		merged = append(merged, current)
	}

	sort.Slice(merged, func(i, j int) bool {
		if merged[i].FinalScore != merged[j].FinalScore {
			return merged[i].FinalScore > merged[j].FinalScore
		}
		return merged[i].Chunk.ID < merged[j].Chunk.ID
	})
	return merged
}

// overlapLength returns how many leading characters of b duplicate a's
// trailing characters, trying the longest candidate suffix first. 0
// means no detectable overlap.
func overlapLength(a, b string) int {
	maxCheck := len(a)
	if len(b) < maxCheck {
		maxCheck = len(b)
	}
	for n := maxCheck; n >= 16; n-- {
		if strings.HasSuffix(a, b[:n]) {
			return n
		}
	}
	return 0
}
