package model

// Stream identifies which behavioral analyzer an event belongs to.
type Stream string

const (
	StreamTouch Stream = "touch"
	StreamKey   Stream = "key"
	StreamUsage Stream = "usage"
)

// Touch event kinds.
const (
	TouchDown = "down"
	TouchMove = "move"
	TouchUp   = "up"
)

// Usage event kinds.
const (
	UsageAppOpened = "app_opened"
	UsageAppClosed = "app_closed"
	UsageAppSwitch = "app_switch"
	UsageScreenOff = "screen_off"
)

// RawEvent is one low-level interaction event as it arrives from an event
// source. Events are transient: they are consumed by the agents and never
// persisted. Which fields are meaningful depends on Stream.
type RawEvent struct {
	Stream      Stream `json:"stream"`
	Kind        string `json:"kind,omitempty"`
	TimestampMs int64  `json:"ts_ms,omitempty"`

	// Touch fields.
	PointerID int     `json:"pointer_id,omitempty"`
	X         float32 `json:"x,omitempty"`
	Y         float32 `json:"y,omitempty"`
	Pressure  float32 `json:"pressure,omitempty"`
	Size      float32 `json:"size,omitempty"`

	// Key fields.
	KeyDown bool `json:"key_down,omitempty"`
	KeyCode int  `json:"key_code,omitempty"`

	// Usage fields.
	AppID   string `json:"app_id,omitempty"`
	FromApp string `json:"from_app,omitempty"`
	ToApp   string `json:"to_app,omitempty"`
}

// AgentResult is one agent's score snapshot. Score is always in [0,1];
// explanations are ordered by detection order.
type AgentResult struct {
	Score        float64  `json:"score"`
	Explanations []string `json:"explanations"`
	TimestampMs  int64    `json:"timestamp_ms"`
}

// NewAgentResult clamps the score to [0,1].
func NewAgentResult(score float64, explanations []string, timestampMs int64) AgentResult {
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return AgentResult{Score: score, Explanations: explanations, TimestampMs: timestampMs}
}

type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// FusionResult is the combined verdict across agents. FinalScore is not
// bounded to [0,1]; the risk thresholds apply to it as computed.
type FusionResult struct {
	FinalScore   float64   `json:"final_score"`
	RiskLevel    RiskLevel `json:"risk_level"`
	Explanations []string  `json:"explanations"`
	TimestampMs  int64     `json:"timestamp_ms"`
}

// Snapshot bundles the per-agent results that fed one fusion verdict.
type Snapshot struct {
	Touch  AgentResult  `json:"touch"`
	Typing AgentResult  `json:"typing"`
	Usage  AgentResult  `json:"usage"`
	Fusion FusionResult `json:"fusion"`
}
