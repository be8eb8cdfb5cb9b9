package agent

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/wekui/ragcore/internal/llmclient"
)

// toolLoopChat always asks to call the "noop" tool while tools are
// offered, and returns a plain final answer once they aren't — letting
// tests drive the GENERATE/TOOL_EXEC/APPEND_MSG loop deterministically.
type toolLoopChat struct {
	completions int
	streamDelay time.Duration
}

func (c *toolLoopChat) Complete(_ context.Context, _ []llmclient.Message, tools []llmclient.ToolSchema, _ *llmclient.Options) (*llmclient.Response, error) {
	c.completions++
	if len(tools) > 0 {
		return &llmclient.Response{
			Content:   "calling a tool",
			ToolCalls: []llmclient.ToolCall{{ID: "call-1", Name: "noop", Arguments: "{}"}},
		}, nil
	}
	return &llmclient.Response{Content: "final answer"}, nil
}

func (c *toolLoopChat) Stream(ctx context.Context, _ []llmclient.Message, _ []llmclient.ToolSchema, _ *llmclient.Options) (<-chan llmclient.StreamEvent, error) {
	ch := make(chan llmclient.StreamEvent)
	go func() {
		defer close(ch)
		tokens := []string{"final ", "answer"}
		for _, tok := range tokens {
			select {
			case <-ctx.Done():
				return
			case ch <- llmclient.StreamEvent{Content: tok}:
			}
			if c.streamDelay > 0 {
				time.Sleep(c.streamDelay)
			}
		}
		select {
		case <-ctx.Done():
		case ch <- llmclient.StreamEvent{Done: true}:
		}
	}()
	return ch, nil
}

func (c *toolLoopChat) ModelName() string { return "fake" }
func (c *toolLoopChat) ModelID() string   { return "fake" }

type noopTool struct{}

func (noopTool) Schema() llmclient.ToolSchema              { return llmclient.ToolSchema{Name: "noop"} }
func (noopTool) Execute(_ context.Context, _ string) (string, error) { return `{}`, nil }

func drain(events <-chan Event) []Event {
	var out []Event
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

// TestSessionToolLoopCapsAtMax checks the MAX=3 tool-iteration cap of
// spec.md §4.5/§8: a model that always asks for tools must still reach
// STREAMING once the cap is hit, forced into a final tools-disabled call.
func TestSessionToolLoopCapsAtMax(t *testing.T) {
	chat := &toolLoopChat{}
	registry := NewRegistry(noopTool{})
	s := New("sess-1", chat, registry, Config{MaxToolIterations: 3})

	events := drain(s.Run(context.Background(), "please use the tool"))

	var toolStarts, toolEnds int
	var sawHistory bool
	for _, ev := range events {
		switch ev.Type {
		case EventToolStart:
			toolStarts++
		case EventToolEnd:
			toolEnds++
		case EventHistory:
			sawHistory = true
		case EventError:
			t.Fatalf("unexpected error event: %v", ev.Err)
		}
	}
	if toolStarts != 3 || toolEnds != 3 {
		t.Fatalf("expected exactly 3 tool iterations, got starts=%d ends=%d", toolStarts, toolEnds)
	}
	if !sawHistory {
		t.Fatalf("expected the turn to reach DONE with a history event")
	}
	if chat.completions != 4 {
		t.Fatalf("expected 4 Complete calls (3 tool-driven + 1 forced final), got %d", chat.completions)
	}
	if s.State() != StateDone {
		t.Fatalf("expected final state DONE, got %s", s.State())
	}
}

func TestSessionStreamsTokensInOrder(t *testing.T) {
	chat := &toolLoopChat{}
	s := New("sess-2", chat, NewRegistry(), Config{MaxToolIterations: 3})

	events := drain(s.Run(context.Background(), "plain question"))

	var tokens []string
	for _, ev := range events {
		if ev.Type == EventToken {
			tokens = append(tokens, ev.Token)
		}
	}
	if len(tokens) != 2 || tokens[0] != "final " || tokens[1] != "answer" {
		t.Fatalf("expected tokens in stream order, got %v", tokens)
	}
}

// TestSessionCancelMidStreamPersistsPartialText exercises
// SPEC_FULL.md's decision to keep partial assistant text in history
// after a cancelled turn rather than discard it. Events are drained
// concurrently from the moment Run starts (the channel is unbuffered,
// so nothing progresses otherwise); Cancel is called only once the
// first token has actually been observed, to avoid racing the
// cancellation against the turn's own startup.
func TestSessionCancelMidStreamPersistsPartialText(t *testing.T) {
	chat := &toolLoopChat{streamDelay: 50 * time.Millisecond}
	s := New("sess-3", chat, NewRegistry(), Config{MaxToolIterations: 3})

	events := s.Run(context.Background(), "plain question")

	var sawStopped, sawToken bool
	for ev := range events {
		switch ev.Type {
		case EventToken:
			if !sawToken {
				sawToken = true
				s.Cancel()
			}
		case EventStopped:
			sawStopped = true
		case EventError:
			t.Fatalf("unexpected error event: %v", ev.Err)
		}
	}
	if !sawToken {
		t.Fatalf("expected at least one token before cancellation")
	}
	if !sawStopped {
		t.Fatalf("expected a stopped event after cancellation")
	}
	if s.State() != StateCancelled {
		t.Fatalf("expected final state CANCELLED, got %s", s.State())
	}
	s.mu.Lock()
	last := s.history[len(s.history)-1]
	s.mu.Unlock()
	if last.Role != "assistant" || !strings.HasPrefix(last.Content, "final ") {
		t.Fatalf("expected partial assistant text kept in history, got %+v", last)
	}
}

func TestSessionChannelClosedExactlyOnce(t *testing.T) {
	chat := &toolLoopChat{}
	s := New("sess-4", chat, NewRegistry(), Config{MaxToolIterations: 3})

	events := s.Run(context.Background(), "question")
	for range events {
		// drain
	}
	// A second read from an already-closed channel must return the zero
	// Event and ok=false, never block or panic.
	_, ok := <-events
	if ok {
		t.Fatalf("expected channel to be closed after the turn completed")
	}
}
