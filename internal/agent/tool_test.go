package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/wekui/ragcore/internal/llmclient"
)

type echoTool struct{ name string }

func (t echoTool) Schema() llmclient.ToolSchema {
	return llmclient.ToolSchema{Name: t.name, Description: "echoes its input"}
}

func (t echoTool) Execute(_ context.Context, argumentsJSON string) (string, error) {
	return `{"echo":` + argumentsJSON + `}`, nil
}

type failingTool struct{ name string }

func (t failingTool) Schema() llmclient.ToolSchema {
	return llmclient.ToolSchema{Name: t.name}
}

func (t failingTool) Execute(_ context.Context, _ string) (string, error) {
	return "", errors.New("boom")
}

func TestRegistryExecuteKnownTool(t *testing.T) {
	r := NewRegistry(echoTool{name: "echo"})
	result := r.Execute(context.Background(), llmclient.ToolCall{Name: "echo", Arguments: `"hi"`})
	if result != `{"echo":"hi"}` {
		t.Fatalf("got %q", result)
	}
}

func TestRegistryExecuteUnknownToolReturnsErrorPayloadNotError(t *testing.T) {
	r := NewRegistry()
	result := r.Execute(context.Background(), llmclient.ToolCall{Name: "missing"})
	var payload map[string]string
	if err := json.Unmarshal([]byte(result), &payload); err != nil {
		t.Fatalf("expected valid JSON error payload, got %q", result)
	}
	if payload["error"] != "unknown_tool" {
		t.Fatalf("expected unknown_tool payload, got %v", payload)
	}
}

func TestRegistryExecuteFailingToolReturnsErrorPayloadNotError(t *testing.T) {
	r := NewRegistry(failingTool{name: "fails"})
	result := r.Execute(context.Background(), llmclient.ToolCall{Name: "fails"})
	var payload map[string]string
	if err := json.Unmarshal([]byte(result), &payload); err != nil {
		t.Fatalf("expected valid JSON error payload, got %q", result)
	}
	if payload["error"] != "tool_failed" {
		t.Fatalf("expected tool_failed payload, got %v", payload)
	}
}

func TestRegistrySchemasListsEveryTool(t *testing.T) {
	r := NewRegistry(echoTool{name: "a"}, echoTool{name: "b"})
	schemas := r.Schemas()
	if len(schemas) != 2 {
		t.Fatalf("expected 2 schemas, got %d", len(schemas))
	}
}
