package rerank

import (
	"context"
	"errors"
	"testing"

	"github.com/wekui/ragcore/internal/llmclient"
)

type fakeChat struct {
	completeResp *llmclient.Response
	completeErr  error
}

func (f *fakeChat) Complete(_ context.Context, _ []llmclient.Message, _ []llmclient.ToolSchema, _ *llmclient.Options) (*llmclient.Response, error) {
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	return f.completeResp, nil
}

func (f *fakeChat) Stream(_ context.Context, _ []llmclient.Message, _ []llmclient.ToolSchema, _ *llmclient.Options) (<-chan llmclient.StreamEvent, error) {
	ch := make(chan llmclient.StreamEvent)
	close(ch)
	return ch, nil
}

func (f *fakeChat) ModelName() string { return "fake-model" }
func (f *fakeChat) ModelID() string   { return "fake" }

func TestRerankParsesIndexScoreLines(t *testing.T) {
	chat := &fakeChat{completeResp: &llmclient.Response{Content: "0: 0.20\n1: 0.95\n2: 0.50"}}
	r := New(chat)

	results, err := r.Rerank(context.Background(), "query", []string{"p0", "p1", "p2"})
	if err != nil {
		t.Fatalf("Rerank returned error: %v", err)
	}
	want := map[int]float64{0: 0.20, 1: 0.95, 2: 0.50}
	for _, res := range results {
		if want[res.Index] != res.Score {
			t.Fatalf("index %d: got score %v, want %v", res.Index, res.Score, want[res.Index])
		}
	}
}

func TestRerankMissingIndexDefaultsToZero(t *testing.T) {
	chat := &fakeChat{completeResp: &llmclient.Response{Content: "1: 0.75"}}
	r := New(chat)

	results, err := r.Rerank(context.Background(), "query", []string{"p0", "p1"})
	if err != nil {
		t.Fatalf("Rerank returned error: %v", err)
	}
	if results[0].Score != 0 {
		t.Fatalf("expected missing index 0 to default to score 0, got %v", results[0].Score)
	}
	if results[1].Score != 0.75 {
		t.Fatalf("expected index 1 score 0.75, got %v", results[1].Score)
	}
}

func TestRerankUnparseableLineIgnored(t *testing.T) {
	chat := &fakeChat{completeResp: &llmclient.Response{Content: "not a valid line\n1: 0.4"}}
	r := New(chat)

	results, err := r.Rerank(context.Background(), "query", []string{"p0", "p1"})
	if err != nil {
		t.Fatalf("Rerank returned error: %v", err)
	}
	if results[0].Score != 0 {
		t.Fatalf("expected unparseable line to leave index 0 at score 0, got %v", results[0].Score)
	}
	if results[1].Score != 0.4 {
		t.Fatalf("expected index 1 score 0.4, got %v", results[1].Score)
	}
}

// TestRerankFallsBackToLexicalOverlapOnLLMFailure is the mandatory
// fallback path spec.md §4.4 requires: the LLM call errors and Rerank
// must still return a deterministic score, never an error.
func TestRerankFallsBackToLexicalOverlapOnLLMFailure(t *testing.T) {
	chat := &fakeChat{completeErr: errors.New("llm unavailable")}
	r := New(chat)

	results, err := r.Rerank(context.Background(), "quick brown fox", []string{
		"the quick brown fox jumps", "completely unrelated text",
	})
	if err != nil {
		t.Fatalf("Rerank must never hard-fail, got error: %v", err)
	}
	if results[0].Score <= results[1].Score {
		t.Fatalf("expected passage overlapping the query to score higher: %+v", results)
	}
}

func TestRerankEmptyPassages(t *testing.T) {
	r := New(&fakeChat{})
	results, err := r.Rerank(context.Background(), "query", nil)
	if err != nil || results != nil {
		t.Fatalf("expected nil/nil for empty passages, got %v, %v", results, err)
	}
}

func TestSortByScoreOrdersDescendingWithIndexTieBreak(t *testing.T) {
	in := []Result{{Index: 2, Score: 0.5}, {Index: 0, Score: 0.9}, {Index: 1, Score: 0.9}}
	out := SortByScore(in)
	if out[0].Index != 0 || out[1].Index != 1 || out[2].Index != 2 {
		t.Fatalf("expected order [0,1,2] (score desc, index asc tiebreak), got %+v", out)
	}
}
