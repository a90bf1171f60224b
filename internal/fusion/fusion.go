// Package fusion combines per-agent anomaly scores into one risk verdict.
package fusion

import (
	"fmt"
	"strings"
	"time"

	"fraudguard/internal/model"
)

// Default agent weights; always renormalized to sum to 1 at construction.
const (
	DefaultTouchWeight  = 0.5
	DefaultTypingWeight = 0.3
	DefaultUsageWeight  = 0.2
)

// Risk thresholds applied to the final score as computed (which is not
// bounded to [0,1], see FuseScores).
const (
	lowThreshold  = 0.40
	highThreshold = 0.70
)

// Engine is stateless across calls: FuseScores is a pure function of its
// inputs and the configured weights.
type Engine struct {
	touchWeight  float64
	typingWeight float64
	usageWeight  float64
	clock        func() time.Time
}

func New() *Engine {
	return NewWithWeights(DefaultTouchWeight, DefaultTypingWeight, DefaultUsageWeight)
}

func NewWithWeights(touch, typing, usage float64) *Engine {
	e := &Engine{touchWeight: touch, typingWeight: typing, usageWeight: usage, clock: time.Now}
	e.normalizeWeights()
	return e
}

func (e *Engine) SetClock(clock func() time.Time) { e.clock = clock }

func (e *Engine) Weights() (touch, typing, usage float64) {
	return e.touchWeight, e.typingWeight, e.usageWeight
}

func (e *Engine) normalizeWeights() {
	total := e.touchWeight + e.typingWeight + e.usageWeight
	if total > 0 {
		e.touchWeight /= total
		e.typingWeight /= total
		e.usageWeight /= total
	}
}

// FuseScores merges up to three [0,1] agent scores; nil inputs are absent
// agents. Each present score contributes weight*score*10 and the sum is
// divided by the total present weight, so the final score is NOT bounded to
// [0,1]. The risk thresholds are calibrated against this scale; do not
// remove the x10 factor without retuning them.
func (e *Engine) FuseScores(touchScore, typingScore, usageScore *float64) model.FusionResult {
	ts := e.clock().UnixMilli()
	explanations := make([]string, 0, 5)

	if touchScore == nil && typingScore == nil && usageScore == nil {
		return model.FusionResult{
			FinalScore:   0,
			RiskLevel:    model.RiskLow,
			Explanations: []string{"no signals available"},
			TimestampMs:  ts,
		}
	}

	finalScore := 0.0
	totalWeight := 0.0

	if touchScore != nil {
		finalScore += e.touchWeight * *touchScore * 10
		totalWeight += e.touchWeight
		explanations = append(explanations, scoreExplanation("touch", *touchScore))
	}
	if typingScore != nil {
		finalScore += e.typingWeight * *typingScore * 10
		totalWeight += e.typingWeight
		explanations = append(explanations, scoreExplanation("typing", *typingScore))
	}
	if usageScore != nil {
		finalScore += e.usageWeight * *usageScore * 10
		totalWeight += e.usageWeight
		explanations = append(explanations, scoreExplanation("usage", *usageScore))
	}

	if totalWeight > 0 {
		finalScore /= totalWeight
	}

	explanations = append(explanations, strategyExplanation(touchScore, typingScore, usageScore))

	level := riskLevel(finalScore)
	explanations = append(explanations, riskExplanation(level))

	return model.FusionResult{
		FinalScore:   finalScore,
		RiskLevel:    level,
		Explanations: explanations,
		TimestampMs:  ts,
	}
}

func scoreExplanation(agent string, score float64) string {
	switch {
	case score > 0.7:
		return agent + " high anomaly"
	case score > 0.4:
		return agent + " moderate anomaly"
	default:
		return agent + " normal"
	}
}

func strategyExplanation(touchScore, typingScore, usageScore *float64) string {
	var parts []string
	if touchScore != nil {
		parts = append(parts, "touch")
	}
	if typingScore != nil {
		parts = append(parts, "typing")
	}
	if usageScore != nil {
		parts = append(parts, "usage")
	}
	name := strings.Join(parts, "+")
	switch len(parts) {
	case 1:
		return name + "-only fusion"
	case 2:
		return name + " dual fusion"
	default:
		return name + " triple fusion"
	}
}

func riskLevel(score float64) model.RiskLevel {
	switch {
	case score <= lowThreshold:
		return model.RiskLow
	case score <= highThreshold:
		return model.RiskMedium
	default:
		return model.RiskHigh
	}
}

func riskExplanation(level model.RiskLevel) string {
	switch level {
	case model.RiskLow:
		return "risk score within normal range"
	case model.RiskMedium:
		return "elevated risk requires verification"
	default:
		return "high risk requires immediate action"
	}
}

// ResponseAction maps a risk level to the response policy string surfaced by
// the engine and API.
func ResponseAction(level model.RiskLevel) string {
	switch level {
	case model.RiskLow:
		return "Continue normal operation"
	case model.RiskMedium:
		return "Request biometric verification"
	case model.RiskHigh:
		return "Lock account and alert security team"
	default:
		return fmt.Sprintf("Unknown risk level %q", level)
	}
}
