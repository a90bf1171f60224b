package agent

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"fraudguard/internal/model"
	"fraudguard/internal/stats"
	"fraudguard/internal/window"
)

const typingAgentName = "TypingAgent"

// Key codes treated as corrections for the backspace-rate signal.
const (
	keyCodeBackspace = 8
	keyCodeDelete    = 67
)

// Inter-keydown gaps below this suggest injected rather than typed input.
const pasteBurstMs = 10

// TypingConfig tunes the keystroke scorer. Zero values fall back to
// defaults.
type TypingConfig struct {
	WindowSize       int `json:"window_size" yaml:"window_size"`
	WarmupKeystrokes int `json:"warmup_keystrokes" yaml:"warmup_keystrokes"`
}

const (
	defaultTypingWindow = 50
	defaultTypingWarmup = 100

	// rawEventWindow caps the raw key-event window the backspace rate is
	// computed over, independent of the dwell/flight window size.
	rawEventWindow = 100
)

const (
	typingWeightDwell     = 0.3
	typingWeightFlight    = 0.3
	typingWeightBackspace = 0.2
	typingWeightPaste     = 0.2
)

type keySample struct {
	tsMs    int64
	down    bool
	keyCode int
}

// TypingAgent scores keystroke dynamics: dwell (hold) times, flight
// (inter-keydown) times, correction rate and paste-like bursts. Key codes
// are kept only inside the bounded raw-event window; no text is derived.
type TypingAgent struct {
	mu     sync.Mutex
	logger *slog.Logger
	clock  func() time.Time

	warmupThreshold int
	events          *window.Bounded[keySample]
	dwellTimes      *window.Bounded[float64]
	flightTimes     *window.Bounded[float64]

	dwell  *stats.Ewma
	flight *stats.Ewma
	// baselineBackspaceRate only changes through ApplyState; the live
	// comparison is recent rate against twice this value.
	baselineBackspaceRate float64

	active          bool
	totalKeystrokes int
	inWarmup        bool
	lastKeyDownMs   int64
	lastKeyCode     int

	recentDwellMean     float64
	recentDwellVar      float64
	recentFlightMean    float64
	recentFlightVar     float64
	recentBackspaceRate float64
	pasteDetected       bool
}

func NewTyping(cfg TypingConfig, logger *slog.Logger) *TypingAgent {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = defaultTypingWindow
	}
	if cfg.WarmupKeystrokes <= 0 {
		cfg.WarmupKeystrokes = defaultTypingWarmup
	}
	return &TypingAgent{
		logger:          logger,
		clock:           time.Now,
		warmupThreshold: cfg.WarmupKeystrokes,
		events:          window.NewBounded[keySample](rawEventWindow),
		dwellTimes:      window.NewBounded[float64](cfg.WindowSize),
		flightTimes:     window.NewBounded[float64](cfg.WindowSize),
		dwell:           stats.NewEwma(stats.DefaultAlpha),
		flight:          stats.NewEwma(stats.DefaultAlpha),
		inWarmup:        true,
		lastKeyDownMs:   -1,
		lastKeyCode:     -1,
	}
}

func (a *TypingAgent) SetClock(clock func() time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.clock = clock
}

func (a *TypingAgent) Name() string { return typingAgentName }

func (a *TypingAgent) IsActive() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

func (a *TypingAgent) Start() {
	a.mu.Lock()
	a.active = true
	a.mu.Unlock()
	if a.logger != nil {
		a.logger.Info("agent started monitoring", "agent", typingAgentName)
	}
}

func (a *TypingAgent) Stop() {
	a.mu.Lock()
	a.active = false
	a.events.Clear()
	a.dwellTimes.Clear()
	a.flightTimes.Clear()
	a.mu.Unlock()
	if a.logger != nil {
		a.logger.Info("agent stopped monitoring", "agent", typingAgentName)
	}
}

// OnKeyEvent ingests one key transition. keyCode identifies the key without
// carrying text; pressure is optional and currently unused in scoring.
func (a *TypingAgent) OnKeyEvent(isKeyDown bool, keyCode int, pressure float32) {
	a.keyEventAt(nowMs(a.clock), isKeyDown, keyCode)
}

// Process dispatches a tagged raw event, honoring its timestamp when present.
func (a *TypingAgent) Process(ev model.RawEvent) {
	ts := ev.TimestampMs
	if ts == 0 {
		ts = nowMs(a.clock)
	}
	a.keyEventAt(ts, ev.KeyDown, ev.KeyCode)
}

func (a *TypingAgent) keyEventAt(ts int64, isKeyDown bool, keyCode int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.active {
		return
	}

	a.events.Push(keySample{tsMs: ts, down: isKeyDown, keyCode: keyCode})

	if isKeyDown {
		// Flight time and the paste flag both derive from the gap since
		// the previous key down, read before the bookkeeping advances.
		a.pasteDetected = false
		if a.lastKeyDownMs > 0 {
			flight := float64(ts - a.lastKeyDownMs)
			a.addFlight(flight)
			a.pasteDetected = flight < pasteBurstMs
		}
		a.lastKeyDownMs = ts
		a.lastKeyCode = keyCode
		a.totalKeystrokes++
	} else {
		a.pasteDetected = false
		if a.lastKeyDownMs > 0 && keyCode == a.lastKeyCode {
			a.addDwell(float64(ts - a.lastKeyDownMs))
		}
	}

	a.updateRecent()

	if a.inWarmup && a.totalKeystrokes >= a.warmupThreshold {
		a.inWarmup = false
		if a.logger != nil {
			a.logger.Info("agent completed warmup phase", "agent", typingAgentName, "keystrokes", a.totalKeystrokes)
		}
	}
}

func (a *TypingAgent) addDwell(dwellMs float64) {
	a.dwellTimes.Push(dwellMs)
	if !a.inWarmup {
		a.dwell.Update(dwellMs)
	}
}

func (a *TypingAgent) addFlight(flightMs float64) {
	a.flightTimes.Push(flightMs)
	if !a.inWarmup {
		a.flight.Update(flightMs)
	}
}

func (a *TypingAgent) updateRecent() {
	if a.dwellTimes.Len() > 0 {
		values := a.dwellTimes.Values()
		a.recentDwellMean = stats.Mean(values)
		a.recentDwellVar = stats.Variance(values, a.recentDwellMean)
	}
	if a.flightTimes.Len() > 0 {
		values := a.flightTimes.Values()
		a.recentFlightMean = stats.Mean(values)
		a.recentFlightVar = stats.Variance(values, a.recentFlightMean)
	}

	if a.events.Len() > 0 {
		corrections := 0
		for s := range a.events.All() {
			if s.down && (s.keyCode == keyCodeBackspace || s.keyCode == keyCodeDelete) {
				corrections++
			}
		}
		a.recentBackspaceRate = float64(corrections) / float64(a.events.Len())
	} else {
		a.recentBackspaceRate = 0
	}
}

func (a *TypingAgent) GetResult() model.AgentResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	ts := nowMs(a.clock)
	if !a.active {
		return model.NewAgentResult(0, []string{ExplainNotActive}, ts)
	}
	if a.inWarmup || a.totalKeystrokes < minScoreSamples {
		return model.NewAgentResult(0, []string{ExplainInsufficientData}, ts)
	}
	score := a.anomalyScore()
	return model.NewAgentResult(score, a.explain(score), ts)
}

func (a *TypingAgent) anomalyScore() float64 {
	total := 0.0

	if v := a.dwell.Variance(); v > 0 && a.dwellTimes.Len() > 0 {
		z := stats.ZScore(a.recentDwellMean, a.dwell.Mean(), v)
		total += typingWeightDwell * math.Min(1.0, z/3.0)
	}
	if v := a.flight.Variance(); v > 0 && a.flightTimes.Len() > 0 {
		z := stats.ZScore(a.recentFlightMean, a.flight.Mean(), v)
		total += typingWeightFlight * math.Min(1.0, z/3.0)
	}
	if a.recentBackspaceRate > a.baselineBackspaceRate*2 {
		total += typingWeightBackspace * math.Min(1.0, a.recentBackspaceRate/0.3)
	}
	if a.pasteDetected {
		total += typingWeightPaste
	}

	return total
}

func (a *TypingAgent) explain(score float64) []string {
	var out []string
	switch {
	case score < 0.3:
		out = append(out, "normal typing rhythm")
	case score < 0.6:
		out = append(out, "moderate typing anomalies detected")
		if v := a.dwell.Variance(); v > 0 &&
			math.Abs(a.recentDwellMean-a.dwell.Mean()) > math.Sqrt(v) {
			out = append(out, "irregular key hold times")
		}
		if v := a.flight.Variance(); v > 0 &&
			math.Abs(a.recentFlightMean-a.flight.Mean()) > math.Sqrt(v) {
			out = append(out, "unusual inter-key timing")
		}
		if a.recentBackspaceRate > a.baselineBackspaceRate*1.5 {
			out = append(out, "elevated correction rate")
		}
	default:
		out = append(out, "significant typing behavior anomalies")
		if a.pasteDetected {
			out = append(out, "rapid input detected")
		}
		if a.recentBackspaceRate > 0.2 {
			out = append(out, "high error rate")
		}
		if v := a.dwell.Variance(); v > 0 &&
			math.Abs(a.recentDwellMean-a.dwell.Mean()) > 2*math.Sqrt(v) {
			out = append(out, "highly irregular key timing")
		}
	}
	return out
}

func (a *TypingAgent) ResetBaseline() {
	a.mu.Lock()
	a.dwell.Reset()
	a.flight.Reset()
	a.baselineBackspaceRate = 0
	a.totalKeystrokes = 0
	a.inWarmup = true
	a.lastKeyDownMs = -1
	a.lastKeyCode = -1
	a.events.Clear()
	a.dwellTimes.Clear()
	a.flightTimes.Clear()
	a.recentDwellMean = 0
	a.recentDwellVar = 0
	a.recentFlightMean = 0
	a.recentFlightVar = 0
	a.recentBackspaceRate = 0
	a.pasteDetected = false
	a.mu.Unlock()
	if a.logger != nil {
		a.logger.Info("agent baseline reset", "agent", typingAgentName)
	}
}

// TypingState is the opaque persisted baseline snapshot.
type TypingState struct {
	Version           int     `json:"version"`
	DwellMean         float64 `json:"dwell_mean"`
	DwellVar          float64 `json:"dwell_var"`
	FlightMean        float64 `json:"flight_mean"`
	FlightVar         float64 `json:"flight_var"`
	BackspaceBaseline float64 `json:"backspace_baseline"`
	TotalKeystrokes   int     `json:"total_keystrokes"`
	InWarmup          bool    `json:"in_warmup"`
}

func (a *TypingAgent) GetState() TypingState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return TypingState{
		Version:           stateVersion,
		DwellMean:         a.dwell.Mean(),
		DwellVar:          a.dwell.Variance(),
		FlightMean:        a.flight.Mean(),
		FlightVar:         a.flight.Variance(),
		BackspaceBaseline: a.baselineBackspaceRate,
		TotalKeystrokes:   a.totalKeystrokes,
		InWarmup:          a.inWarmup,
	}
}

func (a *TypingAgent) ApplyState(s *TypingState) {
	if s == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dwell.Set(s.DwellMean, s.DwellVar)
	a.flight.Set(s.FlightMean, s.FlightVar)
	a.baselineBackspaceRate = s.BackspaceBaseline
	a.totalKeystrokes = s.TotalKeystrokes
	a.inWarmup = s.InWarmup
}
