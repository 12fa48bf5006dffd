// Package llm defines the chat-completion port (interface).
package llm

import (
	"context"
	"encoding/json"

	"github.com/sqlpilot/sqlpilot/internal/domain/conversation"
)

// ToolDefinition describes one callable tool advertised to the model.
// Parameters is a JSON Schema object.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// Client is the port interface for an OpenAI-compatible chat model.
type Client interface {
	// Complete sends the conversation and tool catalog to the model and
	// returns the assistant's reply. Transport and provider errors are
	// returned as-is; they abort the run.
	Complete(ctx context.Context, messages []conversation.Message, tools []ToolDefinition) (*conversation.Message, error)
}
