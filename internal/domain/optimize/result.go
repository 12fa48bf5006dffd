// Package optimize defines the domain model for one SQL optimization run:
// the structured result the agent must produce, the terminal outcome variants
// of the orchestration loop, and the parser for the agent's final answer.
package optimize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Confidence levels the agent may declare.
const (
	ConfidenceHigh   = "HIGH"
	ConfidenceMedium = "MEDIUM"
	ConfidenceLow    = "LOW"
)

// Recommendations the agent may make for the rewritten statement.
const (
	RecommendAutoApply    = "auto_apply"
	RecommendManualReview = "manual_review"
	RecommendReject       = "reject"
)

// Result is the terminal artifact of an accepted optimization run.
// Immutable once returned.
type Result struct {
	OriginalSQL    string     `json:"original_sql"`
	OptimizedSQL   string     `json:"optimized_sql"`
	Diagnosis      Diagnosis  `json:"diagnosis"`
	Validation     Validation `json:"validation"`
	Confidence     string     `json:"confidence"`
	Recommendation string     `json:"recommendation"`
	Explanation    string     `json:"explanation"`
}

// Diagnosis describes why the original statement is slow.
type Diagnosis struct {
	RootCause   string   `json:"root_cause"`
	Bottlenecks []string `json:"bottlenecks"`
}

// Validation aggregates the verification evidence the agent gathered.
type Validation struct {
	SemanticCheck    SemanticCheck    `json:"semantic_check"`
	PerformanceCheck PerformanceCheck `json:"performance_check"`
	BoundaryTests    BoundaryTests    `json:"boundary_tests"`
}

// SemanticCheck reports the equivalence verification outcome.
type SemanticCheck struct {
	Status  string `json:"status"`
	Details string `json:"details"`
}

// PerformanceCheck reports measured timings and the claimed speedup.
type PerformanceCheck struct {
	Status           string    `json:"status"`
	OriginalTimeMS   FlexFloat `json:"original_time_ms"`
	OptimizedTimeMS  FlexFloat `json:"optimized_time_ms"`
	ImprovementRatio FlexFloat `json:"improvement_ratio"`
}

// BoundaryTests reports edge-case test coverage.
type BoundaryTests struct {
	Status   string `json:"status"`
	TestsRun int    `json:"tests_run"`
}

// FlexFloat is a float field tolerant of the model emitting the value as a
// JSON string, null, or omitting it. A missing or non-numeric value decodes
// to "absent" rather than failing the whole result; the feedback policy
// treats absent as "no basis to challenge".
type FlexFloat struct {
	value   float64
	present bool
}

// Float returns a FlexFloat holding v. Used by tests and builders.
func Float(v float64) FlexFloat {
	return FlexFloat{value: v, present: true}
}

// Value returns the numeric value and whether one is present.
func (f FlexFloat) Value() (float64, bool) {
	return f.value, f.present
}

// UnmarshalJSON accepts a JSON number or a numeric string; anything else
// leaves the field absent. null must be checked first: unmarshaling null
// into a float64 is a no-op that would otherwise read as a present 0.
func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*f = FlexFloat{}
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = FlexFloat{value: n, present: true}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			*f = FlexFloat{value: n, present: true}
			return nil
		}
	}
	*f = FlexFloat{}
	return nil
}

// MarshalJSON emits the number, or null when absent.
func (f FlexFloat) MarshalJSON() ([]byte, error) {
	if !f.present {
		return []byte("null"), nil
	}
	return json.Marshal(f.value)
}

// OutcomeStatus labels the terminal state of an orchestration run.
type OutcomeStatus string

const (
	// OutcomeAccepted means the agent produced a result the feedback
	// controller accepted.
	OutcomeAccepted OutcomeStatus = "accepted"

	// OutcomeParseError means the agent's final answer was not well-formed
	// structured content. Fatal for the run; not retried.
	OutcomeParseError OutcomeStatus = "parse_error"

	// OutcomeBudgetExhausted means the iteration budget ran out with no
	// accepted result.
	OutcomeBudgetExhausted OutcomeStatus = "budget_exhausted"
)

// Outcome is what the orchestrator returns to its caller. Exactly one of the
// three shapes per run: an accepted Result, a parse failure carrying the raw
// reply text, or a budget failure carrying the last conversation turn.
type Outcome struct {
	Status     OutcomeStatus `json:"status"`
	Result     *Result       `json:"result,omitempty"`
	RawContent string        `json:"raw_content,omitempty"`
	LastTurn   string        `json:"last_turn,omitempty"`
	Iterations int           `json:"iterations"`
}

// Request is the optimization request accepted by the API.
type Request struct {
	SQL      string            `json:"sql"`
	Database string            `json:"database"`
	Options  map[string]string `json:"options,omitempty"`
}

// Validate checks required fields on a Request.
func (r *Request) Validate() error {
	if r.SQL == "" {
		return fmt.Errorf("sql is required")
	}
	if r.Database == "" {
		return fmt.Errorf("database is required")
	}
	return nil
}
