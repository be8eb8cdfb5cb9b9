// Package rerank scores retrieved passages against a query, per
// spec.md §4.4. The teacher's rerank model hits a dedicated reranker
// endpoint (models/rerank); this package instead drives the same
// chat model used for answer generation with a single structured
// prompt, per spec.md §4.4's "single LLM call" contract, falling back
// to a deterministic lexical-overlap score when that call fails.
package rerank

import (
	"bufio"
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/wekui/ragcore/internal/llmclient"
	"github.com/wekui/ragcore/internal/logger"
)

// Result is one scored candidate, index-aligned with the Rerank call's
// input passages.
type Result struct {
	Index int
	Score float64
}

// Reranker scores candidate passages against query, grounded on the
// teacher's rerank.Reranker interface shape.
type Reranker interface {
	Rerank(ctx context.Context, query string, passages []string) ([]Result, error)
}

type llmReranker struct {
	chat llmclient.Chat
}

// New builds a Reranker backed by chat, per spec.md §4.4.
func New(chat llmclient.Chat) Reranker {
	return &llmReranker{chat: chat}
}

const rerankPromptTemplate = `Score how relevant each passage below is to the query on a scale from 0.00 to 1.00.
Respond with exactly one line per passage, in the form "INDEX: SCORE", nothing else.

Query: %s

%s`

func (r *llmReranker) Rerank(ctx context.Context, query string, passages []string) ([]Result, error) {
	if len(passages) == 0 {
		return nil, nil
	}

	resp, err := r.chat.Complete(ctx, []llmclient.Message{
		{Role: "user", Content: buildPrompt(query, passages)},
	}, nil, &llmclient.Options{Temperature: 0})
	if err != nil {
		logger.GetLogger(ctx).Warnf("rerank: llm call failed, falling back to lexical overlap: %v", err)
		return lexicalOverlap(query, passages), nil
	}

	scores := parseScores(resp.Content, len(passages))
	out := make([]Result, len(passages))
	for i := range passages {
		out[i] = Result{Index: i, Score: scores[i]}
	}
	return out, nil
}

func buildPrompt(query string, passages []string) string {
	var b strings.Builder
	for i, p := range passages {
		fmt.Fprintf(&b, "%d: %s\n", i, truncate(p, 2000))
	}
	return fmt.Sprintf(rerankPromptTemplate, query, b.String())
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// parseScores reads "INDEX: SCORE" lines; any index missing from the
// response or any unparseable score is left at 0, per spec.md §4.4.
func parseScores(content string, n int) []float64 {
	scores := make([]float64, n)
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		idx, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil || idx < 0 || idx >= n {
			continue
		}
		score, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			continue
		}
		scores[idx] = score
	}
	return scores
}

// lexicalOverlap is the mandatory fallback of spec.md §4.4: unique
// query token count present in the passage divided by unique query
// token count. Deterministic, so the rerank stage never hard-fails.
func lexicalOverlap(query string, passages []string) []Result {
	queryTokens := uniqueWords(query)
	out := make([]Result, len(passages))
	for i, p := range passages {
		out[i] = Result{Index: i, Score: overlapScore(queryTokens, p)}
	}
	return out
}

func overlapScore(queryTokens map[string]bool, passage string) float64 {
	if len(queryTokens) == 0 {
		return 0
	}
	passageTokens := uniqueWords(passage)
	var hits int
	for t := range queryTokens {
		if passageTokens[t] {
			hits++
		}
	}
	return float64(hits) / float64(len(queryTokens))
}

func uniqueWords(s string) map[string]bool {
	fields := strings.Fields(strings.ToLower(s))
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}

// SortByScore returns results ordered by descending score, breaking
// ties by ascending index so reruns are deterministic.
func SortByScore(results []Result) []Result {
	out := append([]Result(nil), results...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Index < out[j].Index
	})
	return out
}
