package llmclient

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// remoteChat talks to an OpenAI-compatible completion API, grounded on
// the teacher's internal/models/chat/remote_api.go.
type remoteChat struct {
	modelName string
	modelID   string
	client    *openai.Client
}

func newRemoteChat(cfg Config) (Chat, error) {
	oaCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oaCfg.BaseURL = cfg.BaseURL
	}
	return &remoteChat{
		modelName: cfg.ModelName,
		modelID:   cfg.ModelID,
		client:    openai.NewClientWithConfig(oaCfg),
	}, nil
}

func convertMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		cm := openai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		}
		for _, tc := range m.ToolCalls {
			cm.ToolCalls = append(cm.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out[i] = cm
	}
	return out
}

func convertTools(tools []ToolSchema) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openai.Tool, len(tools))
	for i, t := range tools {
		out[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		}
	}
	return out
}

func (c *remoteChat) buildRequest(messages []Message, tools []ToolSchema, opts *Options, stream bool) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:    c.modelName,
		Messages: convertMessages(messages),
		Tools:    convertTools(tools),
		Stream:   stream,
	}
	if opts != nil {
		if opts.Temperature > 0 {
			req.Temperature = float32(opts.Temperature)
		}
		if opts.TopP > 0 {
			req.TopP = float32(opts.TopP)
		}
		if opts.MaxTokens > 0 {
			req.MaxTokens = opts.MaxTokens
		}
		if opts.Seed != 0 {
			seed := opts.Seed
			req.Seed = &seed
		}
	}
	return req
}

func toolCallsFromOpenAI(in []openai.ToolCall) []ToolCall {
	if len(in) == 0 {
		return nil
	}
	out := make([]ToolCall, len(in))
	for i, tc := range in {
		out[i] = ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments}
	}
	return out
}

func (c *remoteChat) Complete(ctx context.Context, messages []Message, tools []ToolSchema, opts *Options) (*Response, error) {
	req := c.buildRequest(messages, tools, opts, false)
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("llmclient: create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("llmclient: empty completion response")
	}
	choice := resp.Choices[0]
	return &Response{
		Content:   choice.Message.Content,
		ToolCalls: toolCallsFromOpenAI(choice.Message.ToolCalls),
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

func (c *remoteChat) Stream(ctx context.Context, messages []Message, tools []ToolSchema, opts *Options) (<-chan StreamEvent, error) {
	req := c.buildRequest(messages, tools, opts, true)
	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("llmclient: create chat completion stream: %w", err)
	}

	events := make(chan StreamEvent)
	go func() {
		defer close(events)
		defer stream.Close()

		for {
			chunk, err := stream.Recv()
			if err != nil {
				events <- StreamEvent{Done: true}
				return
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta
			select {
			case events <- StreamEvent{
				Content:   delta.Content,
				ToolCalls: toolCallsFromOpenAI(delta.ToolCalls),
			}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}

func (c *remoteChat) ModelName() string { return c.modelName }
func (c *remoteChat) ModelID() string   { return c.modelID }

// marshalArgs is a small helper tool implementations use to decode
// ToolCall.Arguments into a concrete struct.
func marshalArgs(args string, into interface{}) error {
	return json.Unmarshal([]byte(args), into)
}
