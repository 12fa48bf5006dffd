package ws

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/sqlpilot/sqlpilot/internal/port/broadcast"
)

var _ broadcast.Broadcaster = (*Hub)(nil)

// Event type constants for WebSocket messages.
const (
	EventOptimizationStarted    = "optimization.started"
	EventOptimizationTool       = "optimization.tool"
	EventOptimizationChallenged = "optimization.challenged"
	EventOptimizationCompleted  = "optimization.completed"
	EventOptimizationFailed     = "optimization.failed"
)

// BroadcastEvent marshals a typed event payload and broadcasts it to all
// connected clients. Implements the broadcast port.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.Broadcast(ctx, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}
