package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sqlpilot/sqlpilot/internal/domain/optimize"
	"github.com/sqlpilot/sqlpilot/internal/port/database"
)

type stubOptimizer struct {
	outcome *optimize.Outcome
	err     error
	gotReq  optimize.Request
}

func (s *stubOptimizer) Optimize(_ context.Context, req optimize.Request) (*optimize.Outcome, error) {
	s.gotReq = req
	return s.outcome, s.err
}

type stubSession struct{}

var _ database.Session = (*stubSession)(nil)

func (s *stubSession) Execute(context.Context, string) ([]database.Row, error) { return nil, nil }
func (s *stubSession) Schema(context.Context, string) (*database.TableSchema, error) {
	return nil, nil
}
func (s *stubSession) Statistics(context.Context, string) (*database.TableStats, error) {
	return nil, nil
}
func (s *stubSession) Explain(context.Context, string) (*database.ExplainPlan, error) {
	return nil, nil
}
func (s *stubSession) Version(context.Context) (string, error) { return "PostgreSQL 16.2", nil }
func (s *stubSession) Release()                                {}

type stubDB struct {
	acquireErr error
}

var _ database.Database = (*stubDB)(nil)

func (d *stubDB) Acquire(context.Context) (database.Session, error) {
	if d.acquireErr != nil {
		return nil, d.acquireErr
	}
	return &stubSession{}, nil
}
func (d *stubDB) Ping(context.Context) error { return nil }
func (d *stubDB) Close()                     {}

func testHandlers(opt optimizerService, db database.Database) *Handlers {
	return NewHandlers(opt, db, nil, "postgres", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func postOptimize(t *testing.T, h *Handlers, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/optimize", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Optimize(rec, req)
	return rec
}

func TestOptimizeAccepted(t *testing.T) {
	outcome := &optimize.Outcome{
		Status: optimize.OutcomeAccepted,
		Result: &optimize.Result{
			OriginalSQL:    "SELECT 1",
			OptimizedSQL:   "SELECT 1 optimized",
			Recommendation: optimize.RecommendAutoApply,
		},
		Iterations: 3,
	}
	h := testHandlers(&stubOptimizer{outcome: outcome}, &stubDB{})

	rec := postOptimize(t, h, `{"sql":"SELECT 1","database":"postgres"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp optimizeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success {
		t.Fatal("expected success=true")
	}
	if resp.Data.OptimizedSQL != "SELECT 1 optimized" {
		t.Fatalf("unexpected data: %+v", resp.Data)
	}
	if resp.Meta.Iterations != 3 || resp.Meta.Outcome != "accepted" {
		t.Fatalf("unexpected meta: %+v", resp.Meta)
	}
}

func TestOptimizeAgentFailureDowngraded(t *testing.T) {
	outcome := &optimize.Outcome{
		Status:     optimize.OutcomeParseError,
		RawContent: "gibberish",
		Iterations: 1,
	}
	h := testHandlers(&stubOptimizer{outcome: outcome}, &stubDB{})

	rec := postOptimize(t, h, `{"sql":"SELECT 1","database":"postgres"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp optimizeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Success {
		t.Fatal("expected success=false for parse error")
	}
	if resp.Data.Recommendation != optimize.RecommendReject {
		t.Fatalf("expected reject recommendation, got %q", resp.Data.Recommendation)
	}
	if resp.Data.Confidence != optimize.ConfidenceLow {
		t.Fatalf("expected LOW confidence, got %q", resp.Data.Confidence)
	}
	if resp.Data.OriginalSQL != "SELECT 1" {
		t.Fatalf("expected original sql echoed, got %q", resp.Data.OriginalSQL)
	}
}

func TestOptimizeRejectsUnsupportedDialect(t *testing.T) {
	h := testHandlers(&stubOptimizer{}, &stubDB{})
	rec := postOptimize(t, h, `{"sql":"SELECT 1","database":"oracle"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestOptimizeDefaultsDialect(t *testing.T) {
	opt := &stubOptimizer{outcome: &optimize.Outcome{
		Status: optimize.OutcomeAccepted,
		Result: &optimize.Result{},
	}}
	h := testHandlers(opt, &stubDB{})
	postOptimize(t, h, `{"sql":"SELECT 1"}`)
	if opt.gotReq.Database != "postgres" {
		t.Fatalf("expected dialect defaulted to postgres, got %q", opt.gotReq.Database)
	}
}

func TestOptimizeRequiresSQL(t *testing.T) {
	h := testHandlers(&stubOptimizer{}, &stubDB{})
	rec := postOptimize(t, h, `{"database":"postgres"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestOptimizeInfrastructureFailure(t *testing.T) {
	h := testHandlers(&stubOptimizer{err: errors.New("llm unreachable")}, &stubDB{})
	rec := postOptimize(t, h, `{"sql":"SELECT 1","database":"postgres"}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
}

func TestHealthHealthy(t *testing.T) {
	h := testHandlers(&stubOptimizer{}, &stubDB{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.Health(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "healthy" {
		t.Fatalf("expected healthy, got %q", resp.Status)
	}
	if !strings.Contains(resp.Components["database"], "PostgreSQL") {
		t.Fatalf("expected database version in components, got %q", resp.Components["database"])
	}
}

func TestHealthDegradedOnDatabaseFailure(t *testing.T) {
	h := testHandlers(&stubOptimizer{}, &stubDB{acquireErr: errors.New("connection refused")})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.Health(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "degraded" {
		t.Fatalf("expected degraded, got %q", resp.Status)
	}
}
