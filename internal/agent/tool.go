package agent

import (
	"context"
	"encoding/json"

	"github.com/wekui/ragcore/internal/llmclient"
)

// Tool is one function the agent can call mid-turn. Arguments arrive as
// raw JSON (the model's own tool-call payload) and Execute returns the
// raw JSON result appended back to history as a tool message.
type Tool interface {
	Schema() llmclient.ToolSchema
	Execute(ctx context.Context, argumentsJSON string) (string, error)
}

// Registry holds the tools advertised to the model for a turn.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry builds a Registry from the given tools, indexed by name.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		r.tools[t.Schema().Name] = t
	}
	return r
}

// Schemas returns every registered tool's schema, in the shape Chat's
// Complete/Stream expect.
func (r *Registry) Schemas() []llmclient.ToolSchema {
	schemas := make([]llmclient.ToolSchema, 0, len(r.tools))
	for _, t := range r.tools {
		schemas = append(schemas, t.Schema())
	}
	return schemas
}

// Execute runs the named tool, returning a synthetic error payload
// rather than an error return when the tool is unknown or fails, so the
// history append spec.md §4.5 requires ("tool-call and tool-result
// messages are appended atomically as a pair") never leaves a call
// without a matching result.
func (r *Registry) Execute(ctx context.Context, call llmclient.ToolCall) string {
	tool, ok := r.tools[call.Name]
	if !ok {
		return errorPayload("unknown_tool")
	}
	result, err := tool.Execute(ctx, call.Arguments)
	if err != nil {
		return errorPayload("tool_failed")
	}
	return result
}

func errorPayload(kind string) string {
	b, _ := json.Marshal(map[string]string{"error": kind})
	return string(b)
}
