package service

import (
	"fmt"

	"github.com/sqlpilot/sqlpilot/internal/domain/optimize"
)

// Decision is the feedback controller's verdict on a candidate final answer.
// When Accept is false, Critique carries the user turn to append before the
// next iteration.
type Decision struct {
	Accept   bool
	Critique string
}

// FeedbackController decides whether a candidate result is good enough or
// the agent must try again. Pure; no side effects.
type FeedbackController struct {
	minRatio float64
}

// NewFeedbackController returns a controller that challenges results whose
// measured improvement ratio is below minRatio.
func NewFeedbackController(minRatio float64) *FeedbackController {
	if minRatio <= 0 {
		minRatio = 1.10
	}
	return &FeedbackController{minRatio: minRatio}
}

// Evaluate applies the acceptance policy.
//
// A "reject" recommendation is always accepted: the agent has explicitly
// declared no further optimization possible. Otherwise a present, numeric
// ratio below the threshold triggers a retry with a critique; a missing
// ratio is no basis to challenge and is accepted. A retry is only ever
// issued for the claims-benefit-but-barely-any case, which keeps marginal
// rewrites from being rubber-stamped without inviting endless challenges.
func (f *FeedbackController) Evaluate(res *optimize.Result) Decision {
	if res.Recommendation == optimize.RecommendReject {
		return Decision{Accept: true}
	}

	ratio, ok := res.Validation.PerformanceCheck.ImprovementRatio.Value()
	if !ok {
		return Decision{Accept: true}
	}
	if ratio >= f.minRatio {
		return Decision{Accept: true}
	}

	critique := fmt.Sprintf(
		"System Feedback: the measured improvement ratio %.2f is insufficient (required at least %.2f). "+
			"Try a materially different optimization approach, or change your recommendation to \"reject\" "+
			"with a justification if no further improvement is possible.",
		ratio, f.minRatio)
	return Decision{Critique: critique}
}
