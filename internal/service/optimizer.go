// Package service contains the application services: the agent orchestration
// loop driving LLM reasoning against the verification toolkit, and the
// feedback policy supervising its final answers.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/sqlpilot/sqlpilot/internal/adapter/otel"
	"github.com/sqlpilot/sqlpilot/internal/config"
	"github.com/sqlpilot/sqlpilot/internal/domain/conversation"
	"github.com/sqlpilot/sqlpilot/internal/domain/optimize"
	"github.com/sqlpilot/sqlpilot/internal/port/broadcast"
	"github.com/sqlpilot/sqlpilot/internal/port/cache"
	"github.com/sqlpilot/sqlpilot/internal/port/database"
	"github.com/sqlpilot/sqlpilot/internal/port/llm"
	"github.com/sqlpilot/sqlpilot/internal/port/messagequeue"
	"github.com/sqlpilot/sqlpilot/internal/safety"
	"github.com/sqlpilot/sqlpilot/internal/toolkit"
)

// OptimizerDeps bundles the collaborators of an Optimizer. DB, LLM, Guard,
// Feedback, and Logger are required; the rest are optional and skipped when
// nil.
type OptimizerDeps struct {
	DB          database.Database
	LLM         llm.Client
	Guard       *safety.Guard
	Feedback    *FeedbackController
	Cache       cache.Cache
	Queue       messagequeue.Queue
	Broadcaster broadcast.Broadcaster
	Metrics     *otel.Metrics
	Logger      *slog.Logger
}

// Optimizer runs one agent conversation per optimization request. Requests
// are fully independent; the only shared state is read-only configuration
// and the concurrency cap.
type Optimizer struct {
	deps          OptimizerDeps
	maxIterations int
	toolkitOpts   toolkit.Options
	sem           *semaphore.Weighted
}

// NewOptimizer builds an Optimizer from configuration and collaborators.
func NewOptimizer(cfg *config.Config, deps OptimizerDeps) *Optimizer {
	return &Optimizer{
		deps:          deps,
		maxIterations: cfg.Agent.MaxIterations,
		toolkitOpts: toolkit.Options{
			PerformanceRuns: cfg.Validation.PerformanceRuns,
			QueryTimeout:    cfg.Validation.QueryTimeout,
			Cache:           deps.Cache,
			CacheTTL:        cfg.Cache.TTL,
		},
		sem: semaphore.NewWeighted(cfg.Agent.MaxConcurrentRuns),
	}
}

// runEvent is the payload published to the queue and pushed to websocket
// clients at run boundaries.
type runEvent struct {
	RunID      string `json:"run_id"`
	SQL        string `json:"sql,omitempty"`
	Database   string `json:"database,omitempty"`
	Status     string `json:"status,omitempty"`
	Iterations int    `json:"iterations,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
}

// Optimize runs the full agent loop for one request. It returns an Outcome
// for agent-level terminations (accepted, parse error, budget exhausted) and
// an error only for infrastructure failures, which must not be disguised as
// a valid result. The database session acquired for the run is released on
// every exit path.
func (o *Optimizer) Optimize(ctx context.Context, req optimize.Request) (*optimize.Outcome, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := o.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire run slot: %w", err)
	}
	defer o.sem.Release(1)

	runID := uuid.NewString()
	start := time.Now()
	log := o.deps.Logger.With("run_id", runID)
	log.Info("optimization started", "database", req.Database)

	if o.deps.Metrics != nil {
		o.deps.Metrics.OptimizationsStarted.Add(ctx, 1)
	}
	o.publish(ctx, messagequeue.SubjectOptimizationStarted, runEvent{
		RunID:    runID,
		SQL:      req.SQL,
		Database: req.Database,
	})
	o.announce(ctx, "optimization.started", runEvent{RunID: runID, Database: req.Database})

	session, err := o.deps.DB.Acquire(ctx)
	if err != nil {
		o.finishFailed(ctx, log, runID, start, err)
		return nil, fmt.Errorf("acquire database session: %w", err)
	}
	defer session.Release()

	tk := toolkit.New(session, o.deps.Guard, log, o.toolkitOpts)

	outcome, err := o.converse(ctx, log, runID, req, tk)
	if err != nil {
		o.finishFailed(ctx, log, runID, start, err)
		return nil, err
	}

	duration := time.Since(start)
	if o.deps.Metrics != nil {
		o.deps.Metrics.RunDuration.Record(ctx, duration.Seconds())
		if outcome.Status == optimize.OutcomeAccepted {
			o.deps.Metrics.OptimizationsAccepted.Add(ctx, 1)
		} else {
			o.deps.Metrics.OptimizationsFailed.Add(ctx, 1)
		}
	}
	log.Info("optimization finished",
		"status", string(outcome.Status),
		"iterations", outcome.Iterations,
		"duration_ms", duration.Milliseconds())
	o.publish(ctx, messagequeue.SubjectOptimizationCompleted, runEvent{
		RunID:      runID,
		Status:     string(outcome.Status),
		Iterations: outcome.Iterations,
		DurationMS: duration.Milliseconds(),
	})
	o.announce(ctx, "optimization.completed", runEvent{
		RunID:      runID,
		Status:     string(outcome.Status),
		Iterations: outcome.Iterations,
	})
	return outcome, nil
}

// converse is the conversation state machine: model round-trip, then either
// sequential tool dispatch or final-answer evaluation, bounded by the
// iteration budget.
func (o *Optimizer) converse(ctx context.Context, log *slog.Logger, runID string, req optimize.Request, tk *toolkit.Toolkit) (*optimize.Outcome, error) {
	messages := []conversation.Message{
		conversation.System(systemPrompt),
		conversation.User(fmt.Sprintf("Please optimize this SQL for %s:\n\n%s", req.Database, req.SQL)),
	}
	catalog := tk.Catalog()

	for iteration := 1; iteration <= o.maxIterations; iteration++ {
		reply, err := o.deps.LLM.Complete(ctx, messages, catalog)
		if err != nil {
			return nil, fmt.Errorf("llm round trip %d: %w", iteration, err)
		}
		if o.deps.Metrics != nil {
			o.deps.Metrics.LLMRoundTrips.Add(ctx, 1)
		}
		messages = append(messages, *reply)

		if len(reply.ToolCalls) > 0 {
			// Sequential by design: later calls may depend on schema or
			// statistics revealed by earlier ones, and all calls share the
			// run's session.
			for _, call := range reply.ToolCalls {
				log.Info("tool call", "tool", call.Function.Name, "iteration", iteration)
				report := tk.Dispatch(ctx, call.Function.Name, call.Function.Arguments)
				if o.deps.Metrics != nil {
					o.deps.Metrics.ToolCalls.Add(ctx, 1)
				}
				messages = append(messages, conversation.ToolResult(call.ID, call.Function.Name, report.Text()))
				o.announce(ctx, "optimization.tool", map[string]any{
					"run_id": runID,
					"tool":   call.Function.Name,
					"failed": report.Failed(),
				})
			}
			continue
		}

		result, err := optimize.ParseResult(reply.Content)
		if err != nil {
			var perr *optimize.ParseError
			if !errors.As(err, &perr) {
				return nil, err
			}
			log.Warn("final answer unparseable", "iteration", iteration)
			return &optimize.Outcome{
				Status:     optimize.OutcomeParseError,
				RawContent: perr.Raw,
				Iterations: iteration,
			}, nil
		}

		decision := o.deps.Feedback.Evaluate(result)
		if decision.Accept {
			return &optimize.Outcome{
				Status:     optimize.OutcomeAccepted,
				Result:     result,
				Iterations: iteration,
			}, nil
		}

		log.Info("candidate challenged", "iteration", iteration)
		messages = append(messages, conversation.User(decision.Critique))
		o.announce(ctx, "optimization.challenged", runEvent{RunID: runID, Iterations: iteration})
	}

	lastTurn := ""
	if len(messages) > 0 {
		lastTurn = messages[len(messages)-1].Content
	}
	return &optimize.Outcome{
		Status:     optimize.OutcomeBudgetExhausted,
		LastTurn:   lastTurn,
		Iterations: o.maxIterations,
	}, nil
}

// finishFailed records metrics and events for an infrastructure failure.
func (o *Optimizer) finishFailed(ctx context.Context, log *slog.Logger, runID string, start time.Time, cause error) {
	if o.deps.Metrics != nil {
		o.deps.Metrics.OptimizationsFailed.Add(ctx, 1)
	}
	log.Error("optimization failed", "error", cause)
	o.publish(ctx, messagequeue.SubjectOptimizationFailed, runEvent{
		RunID:      runID,
		Error:      cause.Error(),
		DurationMS: time.Since(start).Milliseconds(),
	})
	o.announce(ctx, "optimization.failed", runEvent{RunID: runID, Error: cause.Error()})
}

// publish sends a lifecycle event to the queue when one is configured.
func (o *Optimizer) publish(ctx context.Context, subject string, event runEvent) {
	if o.deps.Queue == nil || !o.deps.Queue.IsConnected() {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := o.deps.Queue.Publish(ctx, subject, data); err != nil {
		o.deps.Logger.Warn("publish event failed", "subject", subject, "error", err)
	}
}

// announce pushes a progress event to websocket clients when a hub is
// configured.
func (o *Optimizer) announce(ctx context.Context, eventType string, payload any) {
	if o.deps.Broadcaster == nil {
		return
	}
	o.deps.Broadcaster.BroadcastEvent(ctx, eventType, payload)
}
