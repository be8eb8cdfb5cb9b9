package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wekui/ragcore/internal/llmclient"
)

func TestRewriteQueryReturnsUnchangedWithNoHistory(t *testing.T) {
	chat := &fakeChat{completeResp: &llmclient.Response{Content: "should not be used"}}
	got := rewriteQuery(context.Background(), chat, "what about it?", nil)
	if got != "what about it?" {
		t.Fatalf("expected question unchanged with empty history, got %q", got)
	}
	if chat.calls != 0 {
		t.Fatalf("expected no LLM call with empty history, got %d calls", chat.calls)
	}
}

func TestRewriteQueryUsesLLMResponseAndStripsThinkTags(t *testing.T) {
	chat := &fakeChat{completeResp: &llmclient.Response{
		Content: "<think>reasoning the model does internally</think>What is the capital of France?",
	}}
	history := []Turn{{Query: "Tell me about France", Answer: "France is a country in Europe.", AskedAt: time.Now()}}

	got := rewriteQuery(context.Background(), chat, "what about its capital?", history)
	if got != "What is the capital of France?" {
		t.Fatalf("expected think tags stripped, got %q", got)
	}
}

func TestRewriteQueryFallsBackOnLLMError(t *testing.T) {
	chat := &fakeChat{completeErr: errors.New("llm unavailable")}
	history := []Turn{{Query: "q1", Answer: "a1", AskedAt: time.Now()}}
	got := rewriteQuery(context.Background(), chat, "original question", history)
	if got != "original question" {
		t.Fatalf("expected fallback to original question on LLM error, got %q", got)
	}
}
