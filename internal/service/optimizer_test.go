package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/sqlpilot/sqlpilot/internal/config"
	"github.com/sqlpilot/sqlpilot/internal/domain/conversation"
	"github.com/sqlpilot/sqlpilot/internal/domain/optimize"
	"github.com/sqlpilot/sqlpilot/internal/port/database"
	"github.com/sqlpilot/sqlpilot/internal/port/llm"
	"github.com/sqlpilot/sqlpilot/internal/safety"
)

type stubSession struct {
	released bool
}

var _ database.Session = (*stubSession)(nil)

func (s *stubSession) Execute(context.Context, string) ([]database.Row, error) {
	return []database.Row{{"n": 1}}, nil
}

func (s *stubSession) Schema(_ context.Context, table string) (*database.TableSchema, error) {
	return &database.TableSchema{Table: table}, nil
}

func (s *stubSession) Statistics(_ context.Context, table string) (*database.TableStats, error) {
	return &database.TableStats{Table: table, RowEstimate: 1000}, nil
}

func (s *stubSession) Explain(_ context.Context, sql string) (*database.ExplainPlan, error) {
	return &database.ExplainPlan{SQL: sql, Plan: "Seq Scan"}, nil
}

func (s *stubSession) Version(context.Context) (string, error) { return "PostgreSQL 16.2", nil }

func (s *stubSession) Release() { s.released = true }

type stubDatabase struct {
	session    *stubSession
	acquireErr error
}

var _ database.Database = (*stubDatabase)(nil)

func (d *stubDatabase) Acquire(context.Context) (database.Session, error) {
	if d.acquireErr != nil {
		return nil, d.acquireErr
	}
	return d.session, nil
}

func (d *stubDatabase) Ping(context.Context) error { return nil }

func (d *stubDatabase) Close() {}

// scriptedLLM replays a fixed sequence of assistant replies and records the
// conversation it was shown on each round trip.
type scriptedLLM struct {
	replies     []conversation.Message
	transcripts [][]conversation.Message
	err         error
}

var _ llm.Client = (*scriptedLLM)(nil)

func (s *scriptedLLM) Complete(_ context.Context, messages []conversation.Message, _ []llm.ToolDefinition) (*conversation.Message, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.transcripts = append(s.transcripts, append([]conversation.Message(nil), messages...))
	if len(s.transcripts) > len(s.replies) {
		return nil, errors.New("script exhausted")
	}
	reply := s.replies[len(s.transcripts)-1]
	return &reply, nil
}

func assistantText(content string) conversation.Message {
	return conversation.Message{Role: conversation.RoleAssistant, Content: content}
}

func assistantToolCall(id, tool, args string) conversation.Message {
	return conversation.Message{
		Role: conversation.RoleAssistant,
		ToolCalls: []conversation.ToolCall{{
			ID:   id,
			Type: "function",
			Function: conversation.FunctionCall{
				Name:      tool,
				Arguments: json.RawMessage(args),
			},
		}},
	}
}

func finalAnswer(recommendation string, ratio float64) string {
	return `{
		"original_sql": "SELECT 1",
		"optimized_sql": "SELECT 1 optimized",
		"diagnosis": {"root_cause": "full scan", "bottlenecks": ["no index"]},
		"validation": {
			"semantic_check": {"status": "passed", "details": "digests match"},
			"performance_check": {"status": "passed", "original_time_ms": 100, "optimized_time_ms": 10, "improvement_ratio": ` + formatFloat(ratio) + `},
			"boundary_tests": {"status": "skipped", "tests_run": 0}
		},
		"confidence": "HIGH",
		"recommendation": "` + recommendation + `",
		"explanation": "rewrote the query"
	}`
}

func formatFloat(v float64) string {
	data, _ := json.Marshal(v)
	return string(data)
}

func newTestOptimizer(t *testing.T, client llm.Client, db *stubDatabase, maxIterations int) *Optimizer {
	t.Helper()
	guard, err := safety.New([]string{"DROP", "DELETE"}, 1000)
	if err != nil {
		t.Fatalf("new guard: %v", err)
	}
	cfg := config.Defaults()
	cfg.Agent.MaxIterations = maxIterations
	return NewOptimizer(&cfg, OptimizerDeps{
		DB:       db,
		LLM:      client,
		Guard:    guard,
		Feedback: NewFeedbackController(cfg.Agent.MinImprovementRatio),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestOptimizeToolRoundThenChallengeThenAccept(t *testing.T) {
	client := &scriptedLLM{replies: []conversation.Message{
		assistantToolCall("call_1", "get_table_schema", `{"table_name":"users"}`),
		assistantText("```json\n" + finalAnswer(optimize.RecommendManualReview, 1.05) + "\n```"),
		assistantText(finalAnswer(optimize.RecommendAutoApply, 50.0)),
	}}
	db := &stubDatabase{session: &stubSession{}}
	opt := newTestOptimizer(t, client, db, 15)

	outcome, err := opt.Optimize(context.Background(), optimize.Request{SQL: "SELECT 1", Database: "postgres"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Status != optimize.OutcomeAccepted {
		t.Fatalf("expected accepted, got %s", outcome.Status)
	}
	if len(client.transcripts) != 3 {
		t.Fatalf("expected exactly 3 round trips, got %d", len(client.transcripts))
	}

	// The tool call from round one must be answered by a paired tool turn
	// visible to round two.
	second := client.transcripts[1]
	last := second[len(second)-1]
	if last.Role != conversation.RoleTool || last.ToolCallID != "call_1" {
		t.Fatalf("expected tool-result turn paired to call_1, got role=%s id=%s", last.Role, last.ToolCallID)
	}

	// The third round trip must see the critique naming the measured ratio.
	third := client.transcripts[2]
	var critique string
	for _, m := range third {
		if m.Role == conversation.RoleUser && strings.Contains(m.Content, "System Feedback") {
			critique = m.Content
		}
	}
	if critique == "" {
		t.Fatal("expected a feedback user turn in the third round trip")
	}
	if !strings.Contains(critique, "1.05") {
		t.Fatalf("expected critique to mention the measured ratio, got %q", critique)
	}

	// The accepted result is the third answer.
	ratio, ok := outcome.Result.Validation.PerformanceCheck.ImprovementRatio.Value()
	if !ok || ratio != 50.0 {
		t.Fatalf("expected accepted ratio 50.0, got %v (present=%v)", ratio, ok)
	}
	if !db.session.released {
		t.Fatal("expected session released after run")
	}
}

func TestOptimizeFencedAndBareAnswersParseIdentically(t *testing.T) {
	bare := finalAnswer(optimize.RecommendAutoApply, 50.0)

	run := func(content string) *optimize.Outcome {
		client := &scriptedLLM{replies: []conversation.Message{assistantText(content)}}
		opt := newTestOptimizer(t, client, &stubDatabase{session: &stubSession{}}, 15)
		outcome, err := opt.Optimize(context.Background(), optimize.Request{SQL: "SELECT 1", Database: "postgres"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return outcome
	}

	fromBare := run(bare)
	fromFence := run("Final report below.\n```json\n" + bare + "\n```")
	if fromBare.Status != optimize.OutcomeAccepted || fromFence.Status != optimize.OutcomeAccepted {
		t.Fatalf("expected both accepted, got %s and %s", fromBare.Status, fromFence.Status)
	}
	if fromBare.Result.OptimizedSQL != fromFence.Result.OptimizedSQL {
		t.Fatalf("fenced and bare results differ: %q vs %q", fromBare.Result.OptimizedSQL, fromFence.Result.OptimizedSQL)
	}
}

func TestOptimizeMalformedFinalAnswerIsFatal(t *testing.T) {
	client := &scriptedLLM{replies: []conversation.Message{
		assistantText("I could not produce a structured answer."),
	}}
	db := &stubDatabase{session: &stubSession{}}
	opt := newTestOptimizer(t, client, db, 15)

	outcome, err := opt.Optimize(context.Background(), optimize.Request{SQL: "SELECT 1", Database: "postgres"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Status != optimize.OutcomeParseError {
		t.Fatalf("expected parse_error, got %s", outcome.Status)
	}
	if outcome.Iterations != 1 {
		t.Fatalf("parse error must not consume further budget, got %d iterations", outcome.Iterations)
	}
	if len(client.transcripts) != 1 {
		t.Fatalf("expected 1 round trip, got %d", len(client.transcripts))
	}
	if outcome.RawContent == "" {
		t.Fatal("expected raw content preserved for diagnostics")
	}
	if !db.session.released {
		t.Fatal("expected session released after parse error")
	}
}

func TestOptimizeBudgetExhausted(t *testing.T) {
	low := assistantText(finalAnswer(optimize.RecommendManualReview, 1.05))
	client := &scriptedLLM{replies: []conversation.Message{low, low}}
	db := &stubDatabase{session: &stubSession{}}
	opt := newTestOptimizer(t, client, db, 2)

	outcome, err := opt.Optimize(context.Background(), optimize.Request{SQL: "SELECT 1", Database: "postgres"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Status != optimize.OutcomeBudgetExhausted {
		t.Fatalf("expected budget_exhausted, got %s", outcome.Status)
	}
	if outcome.Iterations != 2 {
		t.Fatalf("expected 2 iterations, got %d", outcome.Iterations)
	}
	if outcome.LastTurn == "" {
		t.Fatal("expected last turn preserved for diagnostics")
	}
	if !db.session.released {
		t.Fatal("expected session released after exhaustion")
	}
}

func TestOptimizeLLMFailurePropagates(t *testing.T) {
	client := &scriptedLLM{err: errors.New("connection refused")}
	db := &stubDatabase{session: &stubSession{}}
	opt := newTestOptimizer(t, client, db, 15)

	outcome, err := opt.Optimize(context.Background(), optimize.Request{SQL: "SELECT 1", Database: "postgres"})
	if err == nil {
		t.Fatal("expected infrastructure error to propagate")
	}
	if outcome != nil {
		t.Fatalf("expected no outcome on infrastructure failure, got %+v", outcome)
	}
	if !db.session.released {
		t.Fatal("expected session released after failure")
	}
}

func TestOptimizeDatabaseAcquireFailurePropagates(t *testing.T) {
	client := &scriptedLLM{}
	db := &stubDatabase{acquireErr: errors.New("pool exhausted")}
	opt := newTestOptimizer(t, client, db, 15)

	if _, err := opt.Optimize(context.Background(), optimize.Request{SQL: "SELECT 1", Database: "postgres"}); err == nil {
		t.Fatal("expected acquire failure to propagate")
	}
}

func TestOptimizeValidatesRequest(t *testing.T) {
	opt := newTestOptimizer(t, &scriptedLLM{}, &stubDatabase{session: &stubSession{}}, 15)
	if _, err := opt.Optimize(context.Background(), optimize.Request{Database: "postgres"}); err == nil {
		t.Fatal("expected validation error for missing sql")
	}
}
