package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/sqlpilot/sqlpilot/internal/domain/optimize"
	"github.com/sqlpilot/sqlpilot/internal/port/database"
	"github.com/sqlpilot/sqlpilot/internal/resilience"
)

const maxBodyBytes = 1 << 20 // 1 MiB

// optimizerService is the slice of the optimizer the handlers need.
type optimizerService interface {
	Optimize(ctx context.Context, req optimize.Request) (*optimize.Outcome, error)
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	optimizer optimizerService
	db        database.Database
	breaker   *resilience.Breaker
	dialect   string
	log       *slog.Logger
}

// NewHandlers creates the handler set. dialect is the shadow database kind
// accepted in requests; breaker may be nil when the LLM client runs without
// one.
func NewHandlers(optimizer optimizerService, db database.Database, breaker *resilience.Breaker, dialect string, log *slog.Logger) *Handlers {
	return &Handlers{
		optimizer: optimizer,
		db:        db,
		breaker:   breaker,
		dialect:   dialect,
		log:       log,
	}
}

// optimizeResponse is the API envelope around an optimization outcome.
type optimizeResponse struct {
	Success bool             `json:"success"`
	Data    *optimize.Result `json:"data"`
	Meta    responseMeta     `json:"meta"`
}

type responseMeta struct {
	RequestID        string `json:"request_id"`
	ProcessingTimeMS int64  `json:"processing_time_ms"`
	Iterations       int    `json:"iterations"`
	Outcome          string `json:"outcome"`
}

// Optimize handles POST /api/v1/optimize. Agent-level failures (parse error,
// budget exhaustion) come back as an unsuccessful envelope with a reject
// recommendation rather than an HTTP error; infrastructure failures are 502.
func (h *Handlers) Optimize(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[optimize.Request](w, r, maxBodyBytes)
	if !ok {
		return
	}
	if req.SQL == "" {
		writeError(w, http.StatusBadRequest, "sql is required")
		return
	}
	if req.Database == "" {
		req.Database = h.dialect
	}
	if req.Database != h.dialect {
		writeError(w, http.StatusBadRequest, "only "+h.dialect+" is currently supported")
		return
	}

	start := time.Now()
	outcome, err := h.optimizer.Optimize(r.Context(), req)
	if err != nil {
		h.log.Error("optimization failed", "error", err)
		writeError(w, http.StatusBadGateway, "optimization failed: "+err.Error())
		return
	}

	meta := responseMeta{
		RequestID:        chimw.GetReqID(r.Context()),
		ProcessingTimeMS: time.Since(start).Milliseconds(),
		Iterations:       outcome.Iterations,
		Outcome:          string(outcome.Status),
	}

	if outcome.Status == optimize.OutcomeAccepted {
		writeJSON(w, http.StatusOK, optimizeResponse{
			Success: true,
			Data:    outcome.Result,
			Meta:    meta,
		})
		return
	}

	// Agent-level failure: surface a valid result shape the caller can act
	// on, clearly marked as a rejection.
	writeJSON(w, http.StatusOK, optimizeResponse{
		Success: false,
		Data:    downgradedResult(req.SQL, outcome),
		Meta:    meta,
	})
}

// downgradedResult converts a parse-error or budget-exhaustion outcome into
// a low-confidence reject result.
func downgradedResult(sql string, outcome *optimize.Outcome) *optimize.Result {
	explanation := "Optimization failed: "
	switch outcome.Status {
	case optimize.OutcomeParseError:
		explanation += "the agent's final answer was not well-formed"
	case optimize.OutcomeBudgetExhausted:
		explanation += "iteration budget exhausted without an accepted result"
	default:
		explanation += string(outcome.Status)
	}
	return &optimize.Result{
		OriginalSQL: sql,
		Diagnosis: optimize.Diagnosis{
			RootCause:   "unknown",
			Bottlenecks: []string{},
		},
		Confidence:     optimize.ConfidenceLow,
		Recommendation: optimize.RecommendReject,
		Explanation:    explanation,
	}
}

// healthResponse reports component status for GET /health.
type healthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
}

// Health handles GET /health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	components := make(map[string]string)
	healthy := true

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	session, err := h.db.Acquire(ctx)
	if err != nil {
		components["database"] = "failed (" + err.Error() + ")"
		healthy = false
	} else {
		version, verr := session.Version(ctx)
		session.Release()
		if verr != nil {
			components["database"] = "failed (" + verr.Error() + ")"
			healthy = false
		} else {
			components["database"] = "ok (" + version + ")"
		}
	}

	if h.breaker != nil {
		state := h.breaker.State()
		components["llm"] = "breaker " + state.String()
		if state == resilience.StateOpen {
			healthy = false
		}
	} else {
		components["llm"] = "ok (initialized)"
	}

	status := "healthy"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, healthResponse{Status: status, Components: components})
}
