// Package agent implements the three behavioral anomaly scorers. Each agent
// owns its windows and baselines exclusively, guards them with a mutex, and
// encodes every degraded condition in its result rather than an error.
package agent

import (
	"time"

	"fraudguard/internal/model"
)

// Shared result explanations.
const (
	ExplainNotActive        = "agent not active"
	ExplainInsufficientData = "insufficient data for analysis"
)

// stateVersion tags persisted baseline snapshots. Applied snapshots are
// trusted; the tag exists for forward compatibility, not validation.
const stateVersion = 1

// minScoreSamples is the floor of observations below which a score request
// returns neutral even outside warmup (relevant after ApplyState restores a
// post-warmup baseline with a low counter).
const minScoreSamples = 5

// Agent is the lifecycle contract shared by the touch, typing and usage
// scorers.
type Agent interface {
	Start()
	Stop()
	GetResult() model.AgentResult
	ResetBaseline()
	IsActive() bool
	Name() string
}

func nowMs(clock func() time.Time) int64 {
	return clock().UnixMilli()
}
