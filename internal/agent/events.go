// Package agent drives one conversational turn as a bounded tool-calling
// loop and streams its output to a single subscriber, per spec.md §4.5.
// Grounded on the teacher's chat_pipline streaming plugins
// (chat_completion_stream.go, stream_filter.go): a goroutine owns the
// channel and is the only writer, closing it exactly once.
package agent

// EventType tags one streamed agent event, per spec.md §4.5's
// "structured payloads, not free text" contract.
type EventType string

const (
	EventToken     EventType = "token"
	EventToolStart EventType = "tool_start"
	EventToolEnd   EventType = "tool_end"
	EventNodeStart EventType = "node_start"
	EventNodeEnd   EventType = "node_end"
	EventStopped   EventType = "stopped"
	EventError     EventType = "error"
	EventHistory   EventType = "history"
)

// Event is one item on a Session's stream. Only the field matching Type
// is populated; the others are zero.
type Event struct {
	Type     EventType
	Token    string
	ToolName string
	ToolArgs string
	ToolID   string
	ToolResult string
	Node     string
	Err      error
	History  []Message
}

// Message is one turn of conversational history, the shape handed to
// the external ChatHistoryStore per spec.md §6 — the core never queries
// it by content, only appends and forwards.
type Message struct {
	Role       string
	Content    string
	ToolCallID string
	ToolName   string
}
