package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/wekui/ragcore/internal/common"
	"github.com/wekui/ragcore/internal/core"
	"golang.org/x/text/unicode/norm"
)

// Fingerprint derives the cache key for q, hashing every field that
// changes the Result it would produce, per spec.md §4.3. Omitting a
// field here is the correctness bug spec.md warns about: a stale hit
// across configs.
func Fingerprint(q core.Query) string {
	text := norm.NFC.String(strings.TrimSpace(common.CleanInvalidUTF8(q.Text)))

	sources := append([]string(nil), q.Sources...)
	sort.Strings(sources)

	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%d\x00%t\x00%t\x00%t\x00%d",
		text,
		strings.Join(sources, "\x1f"),
		q.TopK,
		q.Features.UseHybrid,
		q.Features.UseReranker,
		q.Features.UseHyDE,
		q.Features.RerankTopK,
	)
	return hex.EncodeToString(h.Sum(nil))
}
