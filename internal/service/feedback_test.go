package service

import (
	"strings"
	"testing"

	"github.com/sqlpilot/sqlpilot/internal/domain/optimize"
)

func candidateResult(recommendation string, ratio optimize.FlexFloat) *optimize.Result {
	res := &optimize.Result{
		OriginalSQL:    "SELECT 1",
		OptimizedSQL:   "SELECT 1",
		Recommendation: recommendation,
	}
	res.Validation.PerformanceCheck.ImprovementRatio = ratio
	return res
}

func TestEvaluateRejectAlwaysAccepted(t *testing.T) {
	fc := NewFeedbackController(1.10)

	// reject is respected regardless of the measured ratio
	for _, ratio := range []optimize.FlexFloat{optimize.Float(1.01), optimize.Float(50.0), {}} {
		d := fc.Evaluate(candidateResult(optimize.RecommendReject, ratio))
		if !d.Accept {
			t.Fatalf("expected accept for reject recommendation, got critique %q", d.Critique)
		}
	}
}

func TestEvaluateLowRatioRetries(t *testing.T) {
	fc := NewFeedbackController(1.10)
	d := fc.Evaluate(candidateResult(optimize.RecommendManualReview, optimize.Float(1.05)))
	if d.Accept {
		t.Fatal("expected retry for ratio 1.05")
	}
	if !strings.Contains(d.Critique, "1.05") {
		t.Fatalf("expected critique to state the measured ratio, got %q", d.Critique)
	}
	if !strings.Contains(d.Critique, "insufficient") {
		t.Fatalf("expected critique to call the ratio insufficient, got %q", d.Critique)
	}
}

func TestEvaluateHighRatioAccepted(t *testing.T) {
	fc := NewFeedbackController(1.10)
	d := fc.Evaluate(candidateResult(optimize.RecommendAutoApply, optimize.Float(50.0)))
	if !d.Accept {
		t.Fatalf("expected accept for ratio 50.0, got critique %q", d.Critique)
	}
}

func TestEvaluateMissingRatioAccepted(t *testing.T) {
	fc := NewFeedbackController(1.10)
	d := fc.Evaluate(candidateResult(optimize.RecommendManualReview, optimize.FlexFloat{}))
	if !d.Accept {
		t.Fatalf("expected accept for missing ratio, got critique %q", d.Critique)
	}
}

func TestEvaluateNullRatioAccepted(t *testing.T) {
	// A null ratio in the decoded answer means "no basis to challenge"; it
	// must not be mistaken for a measured 0 and retried into exhaustion.
	res, err := optimize.ParseResult(`{
		"recommendation": "manual_review",
		"validation": {"performance_check": {"status": "skipped", "improvement_ratio": null}}
	}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fc := NewFeedbackController(1.10)
	if d := fc.Evaluate(res); !d.Accept {
		t.Fatalf("expected accept for null ratio, got critique %q", d.Critique)
	}
}

func TestEvaluateThresholdBoundary(t *testing.T) {
	fc := NewFeedbackController(1.10)
	if d := fc.Evaluate(candidateResult(optimize.RecommendManualReview, optimize.Float(1.10))); !d.Accept {
		t.Fatalf("expected accept at exactly the threshold, got critique %q", d.Critique)
	}
	if d := fc.Evaluate(candidateResult(optimize.RecommendManualReview, optimize.Float(1.0999))); d.Accept {
		t.Fatal("expected retry just below the threshold")
	}
}
