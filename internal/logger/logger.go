// Package logger provides structured logging setup for sqlpilot.
package logger

import (
	"log/slog"
	"os"
	"strings"

	"github.com/sqlpilot/sqlpilot/internal/config"
)

// New creates a *slog.Logger from the given Logging config. Output is JSON
// to stdout; when a service name is configured it is attached to every
// record.
func New(cfg config.Logging) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	})

	log := slog.New(handler)
	if cfg.Service != "" {
		log = log.With("service", cfg.Service)
	}
	return log
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
