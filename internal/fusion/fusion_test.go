package fusion

import (
	"math"
	"testing"

	"fraudguard/internal/model"
)

func f(v float64) *float64 { return &v }

func TestNoSignals(t *testing.T) {
	e := New()
	res := e.FuseScores(nil, nil, nil)
	if res.FinalScore != 0 || res.RiskLevel != model.RiskLow {
		t.Fatalf("got score %v level %s", res.FinalScore, res.RiskLevel)
	}
	if len(res.Explanations) != 1 || res.Explanations[0] != "no signals available" {
		t.Fatalf("explanations = %v", res.Explanations)
	}
}

func TestTouchOnlyIsUnbounded(t *testing.T) {
	e := New()
	res := e.FuseScores(f(0.8), nil, nil)
	// 0.5*0.8*10 / 0.5 = 8.0
	if math.Abs(res.FinalScore-8.0) > 1e-9 {
		t.Fatalf("final score = %v, want 8.0", res.FinalScore)
	}
	if res.RiskLevel != model.RiskHigh {
		t.Fatalf("risk level = %s, want HIGH", res.RiskLevel)
	}
}

func TestTripleLowScores(t *testing.T) {
	e := New()
	res := e.FuseScores(f(0.1), f(0.1), f(0.1))
	if math.Abs(res.FinalScore-1.0) > 1e-9 {
		t.Fatalf("final score = %v, want 1.0", res.FinalScore)
	}
	if res.RiskLevel != model.RiskLow {
		t.Fatalf("risk level = %s, want LOW", res.RiskLevel)
	}
}

func TestRiskThresholdBoundaries(t *testing.T) {
	if got := riskLevel(0.40); got != model.RiskLow {
		t.Fatalf("0.40 -> %s, want LOW", got)
	}
	if got := riskLevel(0.41); got != model.RiskMedium {
		t.Fatalf("0.41 -> %s, want MEDIUM", got)
	}
	if got := riskLevel(0.70); got != model.RiskMedium {
		t.Fatalf("0.70 -> %s, want MEDIUM", got)
	}
	if got := riskLevel(0.71); got != model.RiskHigh {
		t.Fatalf("0.71 -> %s, want HIGH", got)
	}
}

func TestStrategyExplanations(t *testing.T) {
	e := New()
	res := e.FuseScores(f(0.1), nil, nil)
	if !contains(res.Explanations, "touch-only fusion") {
		t.Fatalf("explanations = %v", res.Explanations)
	}
	res = e.FuseScores(f(0.1), f(0.1), nil)
	if !contains(res.Explanations, "touch+typing dual fusion") {
		t.Fatalf("explanations = %v", res.Explanations)
	}
	res = e.FuseScores(f(0.1), f(0.1), f(0.1))
	if !contains(res.Explanations, "touch+typing+usage triple fusion") {
		t.Fatalf("explanations = %v", res.Explanations)
	}
	res = e.FuseScores(nil, f(0.1), f(0.1))
	if !contains(res.Explanations, "typing+usage dual fusion") {
		t.Fatalf("explanations = %v", res.Explanations)
	}
}

func TestPerAgentQualitativeExplanations(t *testing.T) {
	e := New()
	res := e.FuseScores(f(0.8), f(0.5), f(0.1))
	want := []string{"touch high anomaly", "typing moderate anomaly", "usage normal"}
	for _, w := range want {
		if !contains(res.Explanations, w) {
			t.Fatalf("missing %q in %v", w, res.Explanations)
		}
	}
}

func TestWeightNormalization(t *testing.T) {
	e := NewWithWeights(5, 3, 2)
	tw, yw, uw := e.Weights()
	if math.Abs(tw-0.5) > 1e-9 || math.Abs(yw-0.3) > 1e-9 || math.Abs(uw-0.2) > 1e-9 {
		t.Fatalf("weights = %v %v %v", tw, yw, uw)
	}
}

func TestResponseActions(t *testing.T) {
	if ResponseAction(model.RiskLow) != "Continue normal operation" {
		t.Fatalf("low action mismatch")
	}
	if ResponseAction(model.RiskMedium) != "Request biometric verification" {
		t.Fatalf("medium action mismatch")
	}
	if ResponseAction(model.RiskHigh) != "Lock account and alert security team" {
		t.Fatalf("high action mismatch")
	}
}

func contains(list []string, target string) bool {
	for _, s := range list {
		if s == target {
			return true
		}
	}
	return false
}
