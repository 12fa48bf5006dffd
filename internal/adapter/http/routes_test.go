package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sqlpilot/sqlpilot/internal/adapter/ws"
	"github.com/sqlpilot/sqlpilot/internal/domain/optimize"
)

// recordingOptimizer notes whether the request context carried a deadline.
type recordingOptimizer struct {
	hadDeadline bool
}

func (r *recordingOptimizer) Optimize(ctx context.Context, _ optimize.Request) (*optimize.Outcome, error) {
	_, r.hadDeadline = ctx.Deadline()
	return &optimize.Outcome{
		Status: optimize.OutcomeAccepted,
		Result: &optimize.Result{},
	}, nil
}

func TestRequestTimeoutScopedToAPIRoutes(t *testing.T) {
	opt := &recordingOptimizer{}
	h := testHandlers(opt, &stubDB{})
	r := chi.NewRouter()
	MountRoutes(r, h, ws.NewHub(), "", 30*time.Second)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/optimize",
		strings.NewReader(`{"sql":"SELECT 1","database":"postgres"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !opt.hadDeadline {
		t.Fatal("expected API request context to carry the timeout deadline")
	}

	// The progress stream lives outside the timeout group so long runs are
	// not cut off mid-stream. A plain GET fails the upgrade handshake but
	// must still reach the handler.
	wsRec := httptest.NewRecorder()
	r.ServeHTTP(wsRec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	if wsRec.Code == http.StatusNotFound || wsRec.Code == http.StatusGatewayTimeout {
		t.Fatalf("expected /ws mounted outside the timeout group, got %d", wsRec.Code)
	}
}
