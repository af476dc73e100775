// Package chat implements local-inference chat sessions on top of a native
// engine backend: prefix-diff context reuse, window-overflow eviction, a
// streaming token-generation loop, and tool-call orchestration, all owned by
// a per-session actor goroutine.
package chat

import "encoding/json"

// Role identifies who authored a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry of the conversation. Plain messages carry Role and
// Content only. Assistant tool-call messages additionally carry ToolCalls;
// tool responses carry the responding tool's Name. Messages are append-only;
// the system message at index 0 is the only one ever replaced in place.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`

	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Name      string     `json:"name,omitempty"`
}

// ToolCall is one function invocation parsed from model output.
type ToolCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// SystemMessage builds the conversation's system message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage builds a user turn.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage builds a plain assistant turn.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// toolCallsMessage records the calls the model emitted. Content stays empty;
// some chat templates index into it, so the field must exist.
func toolCallsMessage(calls []ToolCall) Message {
	return Message{Role: RoleAssistant, ToolCalls: calls}
}

// toolResponseMessage records one tool's result under the tool's name.
func toolResponseMessage(name, content string) Message {
	return Message{Role: RoleTool, Name: name, Content: content}
}

// Output is one event of a generation stream: zero or more Token events
// carrying text fragments, then exactly one Done event carrying the
// aggregated final text.
type Output struct {
	Token string
	Final string
	Done  bool
}
