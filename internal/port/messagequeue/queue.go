// Package messagequeue defines the message queue port (interface).
package messagequeue

import "context"

// Queue is the port interface for publishing lifecycle events.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Drain gracefully drains the connection before closing.
	Drain() error

	// Close shuts down the queue connection immediately.
	Close() error

	// IsConnected reports whether the queue is currently connected.
	IsConnected() bool
}

// Subject constants for optimization lifecycle events.
const (
	SubjectOptimizationStarted   = "optimizations.started"
	SubjectOptimizationCompleted = "optimizations.completed"
	SubjectOptimizationFailed    = "optimizations.failed"
)
