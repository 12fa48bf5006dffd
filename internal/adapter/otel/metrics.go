// Package otel provides OpenTelemetry metric instruments and exporter setup.
package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "sqlpilot"

// Metrics holds all sqlpilot metric instruments.
type Metrics struct {
	OptimizationsStarted  metric.Int64Counter
	OptimizationsAccepted metric.Int64Counter
	OptimizationsFailed   metric.Int64Counter
	ToolCalls             metric.Int64Counter
	LLMRoundTrips         metric.Int64Counter
	RunDuration           metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.OptimizationsStarted, err = meter.Int64Counter("sqlpilot.optimizations.started",
		metric.WithDescription("Number of optimization runs started"))
	if err != nil {
		return nil, err
	}

	m.OptimizationsAccepted, err = meter.Int64Counter("sqlpilot.optimizations.accepted",
		metric.WithDescription("Number of runs ending in an accepted result"))
	if err != nil {
		return nil, err
	}

	m.OptimizationsFailed, err = meter.Int64Counter("sqlpilot.optimizations.failed",
		metric.WithDescription("Number of runs ending without an accepted result"))
	if err != nil {
		return nil, err
	}

	m.ToolCalls, err = meter.Int64Counter("sqlpilot.toolcalls",
		metric.WithDescription("Number of verification tool invocations"))
	if err != nil {
		return nil, err
	}

	m.LLMRoundTrips, err = meter.Int64Counter("sqlpilot.llm.roundtrips",
		metric.WithDescription("Number of LLM completions requested"))
	if err != nil {
		return nil, err
	}

	m.RunDuration, err = meter.Float64Histogram("sqlpilot.run.duration_seconds",
		metric.WithDescription("Optimization run duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
