// Package conversation defines the message types exchanged with the LLM
// collaborator during one optimization run. A conversation is owned by a
// single run and discarded when the run ends; nothing here is persisted.
package conversation

import "encoding/json"

// Roles used in a conversation. The first message is always the system
// instructions, the second the user's optimization request; everything after
// is an assistant turn, a tool-result turn, or an injected feedback turn.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is a single turn in a conversation.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolCall is a tool invocation requested by the assistant. Each call is
// consumed at most once and must be answered by exactly one tool-result turn
// referencing its ID, in the order the calls were received.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall names the tool and carries its arguments as raw JSON, exactly
// as the model emitted them. Argument decoding happens at dispatch time so a
// malformed payload becomes a tool-level error, not a dropped turn.
type FunctionCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// System returns a system-instructions turn.
func System(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// User returns a user turn.
func User(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// ToolResult returns a tool-result turn paired to the given call ID.
func ToolResult(callID, toolName, content string) Message {
	return Message{Role: RoleTool, ToolCallID: callID, Name: toolName, Content: content}
}
