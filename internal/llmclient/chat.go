// Package llmclient adapts chat-completion providers (local Ollama,
// remote OpenAI-compatible APIs) behind a single Chat interface that
// additionally advertises tool schemas, grounded on the teacher's
// internal/models/chat package.
package llmclient

import (
	"context"
	"fmt"
	"strings"
)

// Options carries the sampling parameters a caller may set on a request.
type Options struct {
	Temperature float64
	TopP        float64
	MaxTokens   int
	Seed        int
}

// Message is one chat turn. ToolCallID and Name are set when Role is
// "tool", reporting a tool's result back to the model.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	Name       string
}

// ToolCall is a model-requested invocation of a registered tool.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // raw JSON
}

// ToolSchema describes one callable tool in JSON-schema form, the shape
// `sashabaranov/go-openai`'s ChatCompletionRequest.Tools already expects.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// Response is a completed, non-streamed chat turn.
type Response struct {
	Content   string
	ToolCalls []ToolCall
	Usage     Usage
}

// Usage reports token accounting for a completed call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// StreamEvent is one increment of a streamed chat turn.
type StreamEvent struct {
	Content   string
	ToolCalls []ToolCall
	Done      bool
	Err       error
}

// Chat is the contract the retrieval pipeline and the agent session use
// to talk to a chat-completion model, with or without tool schemas.
type Chat interface {
	Complete(ctx context.Context, messages []Message, tools []ToolSchema, opts *Options) (*Response, error)
	Stream(ctx context.Context, messages []Message, tools []ToolSchema, opts *Options) (<-chan StreamEvent, error)
	ModelName() string
	ModelID() string
}

// Source selects which provider backs a Chat.
type Source string

const (
	SourceLocal  Source = "local"
	SourceRemote Source = "remote"
)

// Config configures a single Chat instance.
type Config struct {
	Source    Source
	BaseURL   string
	ModelName string
	APIKey    string
	ModelID   string
}

// New builds a Chat for the given config.
func New(cfg Config) (Chat, error) {
	switch strings.ToLower(string(cfg.Source)) {
	case string(SourceLocal):
		return newOllamaChat(cfg)
	case string(SourceRemote):
		return newRemoteChat(cfg)
	default:
		return nil, fmt.Errorf("llmclient: unsupported chat source %q", cfg.Source)
	}
}
