package llmclient

import (
	"context"
	"fmt"

	ollamaapi "github.com/ollama/ollama/api"
	"github.com/wekui/ragcore/internal/logger"
	"github.com/wekui/ragcore/internal/ollamaservice"
)

// ollamaChat talks to a local Ollama daemon, grounded on the teacher's
// internal/models/chat/ollama.go. Local models in this corpus don't
// reliably advertise tool-calling, so tool schemas are accepted but
// ignored here, and a turn on this backend never returns tool calls.
type ollamaChat struct {
	modelName string
	modelID   string
	service   *ollamaservice.Service
}

func newOllamaChat(cfg Config) (Chat, error) {
	service, err := ollamaservice.New(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	return &ollamaChat{modelName: cfg.ModelName, modelID: cfg.ModelID, service: service}, nil
}

func (c *ollamaChat) convertMessages(messages []Message) []ollamaapi.Message {
	out := make([]ollamaapi.Message, len(messages))
	for i, m := range messages {
		out[i] = ollamaapi.Message{Role: m.Role, Content: m.Content}
	}
	return out
}

func (c *ollamaChat) buildRequest(messages []Message, opts *Options, stream bool) *ollamaapi.ChatRequest {
	req := &ollamaapi.ChatRequest{
		Model:    c.modelName,
		Messages: c.convertMessages(messages),
		Stream:   &stream,
		Options:  make(map[string]interface{}),
	}
	if opts != nil {
		if opts.Temperature > 0 {
			req.Options["temperature"] = opts.Temperature
		}
		if opts.TopP > 0 {
			req.Options["top_p"] = opts.TopP
		}
		if opts.MaxTokens > 0 {
			req.Options["num_predict"] = opts.MaxTokens
		}
	}
	return req
}

func (c *ollamaChat) Complete(ctx context.Context, messages []Message, tools []ToolSchema, opts *Options) (*Response, error) {
	if err := c.service.EnsureModelAvailable(ctx, c.modelName); err != nil {
		return nil, err
	}

	req := c.buildRequest(messages, opts, false)

	var content string
	var promptTokens, evalCount int
	err := c.service.Chat(ctx, req, func(resp ollamaapi.ChatResponse) error {
		content = resp.Message.Content
		if resp.EvalCount > 0 {
			promptTokens = resp.PromptEvalCount
			evalCount = resp.EvalCount
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("llmclient: ollama chat: %w", err)
	}

	return &Response{
		Content: content,
		Usage: Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: evalCount - promptTokens,
			TotalTokens:      evalCount,
		},
	}, nil
}

func (c *ollamaChat) Stream(ctx context.Context, messages []Message, tools []ToolSchema, opts *Options) (<-chan StreamEvent, error) {
	if err := c.service.EnsureModelAvailable(ctx, c.modelName); err != nil {
		return nil, err
	}

	req := c.buildRequest(messages, opts, true)
	events := make(chan StreamEvent)

	go func() {
		defer close(events)
		err := c.service.Chat(ctx, req, func(resp ollamaapi.ChatResponse) error {
			if resp.Message.Content != "" {
				select {
				case events <- StreamEvent{Content: resp.Message.Content}:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			if resp.Done {
				events <- StreamEvent{Done: true}
			}
			return nil
		})
		if err != nil {
			logger.GetLogger(ctx).Errorf("llmclient: ollama stream failed: %v", err)
			events <- StreamEvent{Done: true, Err: err}
		}
	}()

	return events, nil
}

func (c *ollamaChat) ModelName() string { return c.modelName }
func (c *ollamaChat) ModelID() string   { return c.modelID }
