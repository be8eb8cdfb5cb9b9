package agent

import (
	"context"
	"sync"

	"github.com/wekui/ragcore/internal/llmclient"
	"github.com/wekui/ragcore/internal/logger"
)

// State is one of the AgentSession state machine's states, per
// spec.md §4.5.
type State string

const (
	StateAwaitInput State = "AWAIT_INPUT"
	StateGenerate   State = "GENERATE"
	StateToolExec   State = "TOOL_EXEC"
	StateAppendMsg  State = "APPEND_MSG"
	StateStreaming  State = "STREAMING"
	StateDone       State = "DONE"
	StateCancelled  State = "CANCELLED"
	StateFailed     State = "FAILED"
)

// Config bounds one turn's tool-calling loop.
type Config struct {
	MaxToolIterations int
	SystemPrompt      string
}

// Session drives one conversational turn per spec.md §4.5. mu guards
// state, history and cancel and is held only briefly around each access,
// not for the whole turn. Run does not serialize turns: a second Run
// started before the first has finished runs alongside it and replaces
// the cancel function that Cancel uses.
type Session struct {
	mu       sync.Mutex
	id       string
	chat     llmclient.Chat
	registry *Registry
	cfg      Config
	history  []Message

	cancel context.CancelFunc
	state  State
}

// New builds a Session in AWAIT_INPUT.
func New(id string, chat llmclient.Chat, registry *Registry, cfg Config) *Session {
	return &Session{id: id, chat: chat, registry: registry, cfg: cfg, state: StateAwaitInput}
}

// ID returns the session's identifier.
func (s *Session) ID() string { return s.id }

// State returns the session's current state. Safe to call concurrently
// with Run/Cancel.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Cancel aborts the in-flight turn, if any (the most recently started
// one). Safe to call at any point after AWAIT_INPUT, including from
// another goroutine while Run is executing.
func (s *Session) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Run executes one turn: GENERATE, looping through TOOL_EXEC/APPEND_MSG
// up to cfg.MaxToolIterations times, then STREAMING the final answer.
// Events are delivered on the returned channel, closed exactly once
// when the turn reaches a terminal state.
func (s *Session) Run(ctx context.Context, userMessage string) <-chan Event {
	events := make(chan Event)

	s.mu.Lock()
	turnCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.state = StateGenerate
	s.history = append(s.history, Message{Role: "user", Content: userMessage})
	snapshot := append([]Message(nil), s.history...)
	s.mu.Unlock()

	go s.run(turnCtx, events, snapshot)
	return events
}

func (s *Session) run(ctx context.Context, events chan<- Event, history []Message) {
	defer close(events)
	defer func() {
		s.mu.Lock()
		s.cancel = nil
		s.mu.Unlock()
	}()

	allowTools := true
	for iteration := 0; ; iteration++ {
		if iteration >= s.cfg.MaxToolIterations {
			allowTools = false
		}

		events <- Event{Type: EventNodeStart, Node: string(StateGenerate)}
		resp, toolCalls, err := s.generate(ctx, history, allowTools)
		events <- Event{Type: EventNodeEnd, Node: string(StateGenerate)}

		if err != nil {
			if ctx.Err() != nil {
				s.setState(StateCancelled)
				events <- Event{Type: EventStopped}
				return
			}
			s.setState(StateFailed)
			events <- Event{Type: EventError, Err: err}
			return
		}

		if len(toolCalls) == 0 || !allowTools {
			s.setState(StateStreaming)
			s.stream(ctx, events, history)
			return
		}

		s.setState(StateToolExec)
		history = append(history, Message{Role: "assistant", Content: resp})
		for _, call := range toolCalls {
			events <- Event{Type: EventToolStart, ToolName: call.Name, ToolArgs: call.Arguments, ToolID: call.ID}
			if ctx.Err() != nil {
				s.setState(StateCancelled)
				events <- Event{Type: EventStopped}
				return
			}
			result := s.registry.Execute(ctx, call)
			events <- Event{Type: EventToolEnd, ToolName: call.Name, ToolID: call.ID, ToolResult: result}
			history = append(history, Message{Role: "tool", Content: result, ToolCallID: call.ID, ToolName: call.Name})
		}
		s.setState(StateAppendMsg)

		s.mu.Lock()
		s.history = append([]Message(nil), history...)
		s.mu.Unlock()
	}
}

func (s *Session) generate(ctx context.Context, history []Message, allowTools bool) (string, []llmclient.ToolCall, error) {
	messages := toChatMessages(s.cfg.SystemPrompt, history)
	var tools []llmclient.ToolSchema
	if allowTools {
		tools = s.registry.Schemas()
	}
	resp, err := s.chat.Complete(ctx, messages, tools, nil)
	if err != nil {
		return "", nil, err
	}
	return resp.Content, resp.ToolCalls, nil
}

// stream delivers the final answer's tokens and appends the finished
// assistant turn to history. Cancellation mid-stream ends the channel
// with a single stopped event and keeps whatever partial assistant text
// was already produced, per SPEC_FULL.md's decision to persist a
// cancelled turn's partial text rather than discard it.
func (s *Session) stream(ctx context.Context, events chan<- Event, history []Message) {
	messages := toChatMessages(s.cfg.SystemPrompt, history)
	tokenStream, err := s.chat.Stream(ctx, messages, nil, nil)
	if err != nil {
		s.setState(StateFailed)
		events <- Event{Type: EventError, Err: err}
		return
	}

	var builder []byte
	cancelled := false
	for ev := range tokenStream {
		if ev.Err != nil {
			if ctx.Err() != nil {
				cancelled = true
				break
			}
			s.setState(StateFailed)
			events <- Event{Type: EventError, Err: ev.Err}
			return
		}
		if ev.Content != "" {
			builder = append(builder, ev.Content...)
			events <- Event{Type: EventToken, Token: ev.Content}
		}
		if ev.Done {
			break
		}
	}

	s.mu.Lock()
	s.history = append(history, Message{Role: "assistant", Content: string(builder)})
	finalHistory := append([]Message(nil), s.history...)
	s.mu.Unlock()

	if cancelled || ctx.Err() != nil {
		s.setState(StateCancelled)
		events <- Event{Type: EventStopped}
		return
	}

	s.setState(StateDone)
	events <- Event{Type: EventHistory, History: finalHistory}
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	logger.GetLogger(context.Background()).Debugf("agent: session %s transitioned to %s", s.id, state)
}

func toChatMessages(systemPrompt string, history []Message) []llmclient.Message {
	messages := make([]llmclient.Message, 0, len(history)+1)
	if systemPrompt != "" {
		messages = append(messages, llmclient.Message{Role: "system", Content: systemPrompt})
	}
	for _, m := range history {
		messages = append(messages, llmclient.Message{
			Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID, Name: m.ToolName,
		})
	}
	return messages
}
