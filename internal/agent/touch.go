package agent

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"fraudguard/internal/gesture"
	"fraudguard/internal/model"
	"fraudguard/internal/stats"
	"fraudguard/internal/window"
)

const touchAgentName = "TouchAgent"

// TouchConfig tunes the touch scorer. Zero values fall back to defaults.
type TouchConfig struct {
	WindowSize     int `json:"window_size" yaml:"window_size"`
	WarmupGestures int `json:"warmup_gestures" yaml:"warmup_gestures"`
}

const (
	defaultTouchWindow = 50
	defaultTouchWarmup = 5
)

// Touch scoring weights. They total 1.0; the weighted sum is deliberately not
// renormalized when components are inapplicable, so fewer applicable
// components yield a proportionally lower score.
const (
	touchWeightVelocity      = 0.25
	touchWeightPathDeviation = 0.20
	touchWeightTapDuration   = 0.15
	touchWeightJitter        = 0.15
	touchWeightPressure      = 0.15
	touchWeightBotPattern    = 0.10
)

// TouchAgent scores touch gesture dynamics against an adaptive baseline.
// Raw coordinates live only inside the segmenter's active paths; completed
// gestures are reduced to feature vectors before anything retains them.
type TouchAgent struct {
	mu     sync.Mutex
	logger *slog.Logger
	clock  func() time.Time

	warmupThreshold int
	seg             *gesture.Segmenter
	gestures        *window.Bounded[gesture.Gesture]

	velocity      *stats.Ewma
	peakVelocity  *stats.Ewma
	pathDeviation *stats.Ewma
	jitter        *stats.Ewma
	pressure      *stats.Ewma
	tapDuration   *stats.Ewma

	active        bool
	totalGestures int
	inWarmup      bool

	recentVelocity      float64
	recentPeakVelocity  float64
	recentPathDeviation float64
	recentJitter        float64
	recentPressure      float64
	recentTapDuration   float64

	observers []func(gesture.FeatureVector)
}

func NewTouch(cfg TouchConfig, logger *slog.Logger) *TouchAgent {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = defaultTouchWindow
	}
	if cfg.WarmupGestures <= 0 {
		cfg.WarmupGestures = defaultTouchWarmup
	}
	return &TouchAgent{
		logger:          logger,
		clock:           time.Now,
		warmupThreshold: cfg.WarmupGestures,
		seg:             gesture.NewSegmenter(),
		gestures:        window.NewBounded[gesture.Gesture](cfg.WindowSize),
		velocity:        stats.NewEwma(stats.DefaultAlpha),
		peakVelocity:    stats.NewEwma(stats.DefaultAlpha),
		pathDeviation:   stats.NewEwma(stats.DefaultAlpha),
		jitter:          stats.NewEwma(stats.DefaultAlpha),
		pressure:        stats.NewEwma(stats.DefaultAlpha),
		tapDuration:     stats.NewEwma(stats.DefaultAlpha),
		inWarmup:        true,
	}
}

// SetClock overrides the time source, used by tests and replay ingest.
func (a *TouchAgent) SetClock(clock func() time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.clock = clock
}

// AddFeatureObserver registers a callback invoked with the feature vector of
// every completed gesture.
func (a *TouchAgent) AddFeatureObserver(fn func(gesture.FeatureVector)) {
	if fn == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.observers = append(a.observers, fn)
}

func (a *TouchAgent) Name() string { return touchAgentName }

func (a *TouchAgent) IsActive() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

func (a *TouchAgent) Start() {
	a.mu.Lock()
	a.active = true
	a.mu.Unlock()
	if a.logger != nil {
		a.logger.Info("agent started monitoring", "agent", touchAgentName)
	}
}

// Stop deactivates the agent and drops transient gesture state. Learned
// baselines survive a stop/start cycle.
func (a *TouchAgent) Stop() {
	a.mu.Lock()
	a.active = false
	a.seg.Clear()
	a.gestures.Clear()
	a.mu.Unlock()
	if a.logger != nil {
		a.logger.Info("agent stopped monitoring", "agent", touchAgentName)
	}
}

func (a *TouchAgent) OnTouchDown(pointerID int, x, y, pressure, size float32) {
	a.touchDownAt(nowMs(a.clock), pointerID, x, y, pressure, size)
}

func (a *TouchAgent) OnTouchMove(pointerID int, x, y, pressure, size float32) {
	a.touchMoveAt(nowMs(a.clock), pointerID, x, y, pressure, size)
}

func (a *TouchAgent) OnTouchUp(pointerID int, x, y, pressure, size float32) {
	a.touchUpAt(nowMs(a.clock), pointerID, x, y, pressure, size)
}

// Process dispatches a tagged raw event onto the down/move/up handlers. The
// event timestamp is honored when present so replayed streams score
// deterministically.
func (a *TouchAgent) Process(ev model.RawEvent) {
	ts := ev.TimestampMs
	if ts == 0 {
		ts = nowMs(a.clock)
	}
	switch ev.Kind {
	case model.TouchDown:
		a.touchDownAt(ts, ev.PointerID, ev.X, ev.Y, ev.Pressure, ev.Size)
	case model.TouchMove:
		a.touchMoveAt(ts, ev.PointerID, ev.X, ev.Y, ev.Pressure, ev.Size)
	case model.TouchUp:
		a.touchUpAt(ts, ev.PointerID, ev.X, ev.Y, ev.Pressure, ev.Size)
	}
}

func (a *TouchAgent) touchDownAt(ts int64, pointerID int, x, y, pressure, size float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.active {
		return
	}
	a.seg.Down(pointerID, gesture.Point{TimestampMs: ts, X: x, Y: y, Pressure: pressure, Size: size})
}

func (a *TouchAgent) touchMoveAt(ts int64, pointerID int, x, y, pressure, size float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.active {
		return
	}
	a.seg.Move(pointerID, gesture.Point{TimestampMs: ts, X: x, Y: y, Pressure: pressure, Size: size})
}

func (a *TouchAgent) touchUpAt(ts int64, pointerID int, x, y, pressure, size float32) {
	a.mu.Lock()
	g, ok := a.seg.Up(pointerID, gesture.Point{TimestampMs: ts, X: x, Y: y, Pressure: pressure, Size: size})
	if !ok || !a.active {
		a.mu.Unlock()
		return
	}
	a.completeGesture(g)
	observers := a.observers
	a.mu.Unlock()

	if len(observers) > 0 {
		fv := gesture.Features(g)
		for _, fn := range observers {
			fn(fv)
		}
	}
}

// completeGesture is called with the mutex held.
func (a *TouchAgent) completeGesture(g gesture.Gesture) {
	a.gestures.Push(g)
	a.totalGestures++

	if !a.inWarmup {
		a.velocity.Update(g.AvgVelocity)
		a.peakVelocity.Update(g.PeakVelocity)
		a.pathDeviation.Update(g.PathDeviation)
		a.jitter.Update(g.Jitter)
		a.pressure.Update(g.AvgPressure)
		if g.Type == gesture.TypeTap {
			a.tapDuration.Update(float64(g.DurationMs()))
		}
	}

	a.updateRecent()

	if a.inWarmup && a.totalGestures >= a.warmupThreshold {
		a.inWarmup = false
		if a.logger != nil {
			a.logger.Info("agent completed warmup phase", "agent", touchAgentName, "gestures", a.totalGestures)
		}
	}
}

func (a *TouchAgent) updateRecent() {
	if a.gestures.Len() == 0 {
		return
	}
	var velocity, peak, deviation, jit, pressure, tapDur float64
	taps := 0
	for g := range a.gestures.All() {
		velocity += g.AvgVelocity
		peak += g.PeakVelocity
		deviation += g.PathDeviation
		jit += g.Jitter
		pressure += g.AvgPressure
		if g.Type == gesture.TypeTap {
			tapDur += float64(g.DurationMs())
			taps++
		}
	}
	n := float64(a.gestures.Len())
	a.recentVelocity = velocity / n
	a.recentPeakVelocity = peak / n
	a.recentPathDeviation = deviation / n
	a.recentJitter = jit / n
	a.recentPressure = pressure / n
	if taps > 0 {
		a.recentTapDuration = tapDur / float64(taps)
	} else {
		a.recentTapDuration = 0
	}
}

func (a *TouchAgent) GetResult() model.AgentResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	ts := nowMs(a.clock)
	if !a.active {
		return model.NewAgentResult(0, []string{ExplainNotActive}, ts)
	}
	if a.inWarmup || a.totalGestures < minScoreSamples {
		return model.NewAgentResult(0, []string{ExplainInsufficientData}, ts)
	}
	score := a.anomalyScore()
	return model.NewAgentResult(score, a.explain(score), ts)
}

func (a *TouchAgent) anomalyScore() float64 {
	total := 0.0

	if v := a.velocity.Variance(); v > 0 {
		z := stats.ZScore(a.recentVelocity, a.velocity.Mean(), v)
		total += touchWeightVelocity * math.Min(1.0, z/3.0)
	}
	if v := a.pathDeviation.Variance(); v > 0 {
		z := stats.ZScore(a.recentPathDeviation, a.pathDeviation.Mean(), v)
		total += touchWeightPathDeviation * math.Min(1.0, z/3.0)
	}
	if v := a.tapDuration.Variance(); v > 0 && a.recentTapDuration > 0 {
		z := stats.ZScore(a.recentTapDuration, a.tapDuration.Mean(), v)
		total += touchWeightTapDuration * math.Min(1.0, z/3.0)
	}
	if v := a.jitter.Variance(); v > 0 {
		z := stats.ZScore(a.recentJitter, a.jitter.Mean(), v)
		total += touchWeightJitter * math.Min(1.0, z/3.0)
	}
	if v := a.pressure.Variance(); v > 0 {
		z := stats.ZScore(a.recentPressure, a.pressure.Mean(), v)
		total += touchWeightPressure * math.Min(1.0, z/3.0)
	}
	total += touchWeightBotPattern * a.botPatternScore()

	return total
}

// botPatternScore looks for scripted input: near-perfect linear swipes,
// implausibly fast gestures, and near-identical gesture timing.
func (a *TouchAgent) botPatternScore() float64 {
	n := a.gestures.Len()
	if n < 5 {
		return 0
	}
	score := 0.0

	linear := 0
	fast := 0
	var durationSum float64
	for g := range a.gestures.All() {
		if g.Type == gesture.TypeSwipe && g.PathDeviation < 1.0 {
			linear++
		}
		if g.PeakVelocity > 5.0 {
			fast++
		}
		durationSum += float64(g.DurationMs())
	}
	if float64(linear) > float64(n)*0.8 {
		score += 0.5
	}
	if float64(fast) > float64(n)*0.6 {
		score += 0.3
	}
	if n >= 3 {
		avg := durationSum / float64(n)
		similar := 0
		for g := range a.gestures.All() {
			if math.Abs(float64(g.DurationMs())-avg) < 10 {
				similar++
			}
		}
		if float64(similar) > float64(n)*0.9 {
			score += 0.2
		}
	}
	return math.Min(1.0, score)
}

func (a *TouchAgent) explain(score float64) []string {
	var out []string
	switch {
	case score < 0.3:
		out = append(out, "normal touch behavior patterns")
	case score < 0.6:
		out = append(out, "moderate touch behavior anomalies detected")
		if v := a.velocity.Variance(); v > 0 &&
			math.Abs(a.recentVelocity-a.velocity.Mean()) > math.Sqrt(v) {
			out = append(out, "unusual gesture velocity patterns")
		}
		if v := a.pathDeviation.Variance(); v > 0 &&
			math.Abs(a.recentPathDeviation-a.pathDeviation.Mean()) > math.Sqrt(v) {
			out = append(out, "irregular swipe curvature")
		}
		if v := a.jitter.Variance(); v > 0 &&
			math.Abs(a.recentJitter-a.jitter.Mean()) > math.Sqrt(v) {
			out = append(out, "elevated touch instability")
		}
	default:
		out = append(out, "significant touch behavior anomalies")
		if a.botPatternScore() > 0.3 {
			out = append(out, "robotic touch patterns detected")
		}
		if v := a.velocity.Variance(); v > 0 &&
			math.Abs(a.recentVelocity-a.velocity.Mean()) > 2*math.Sqrt(v) {
			out = append(out, "highly irregular gesture dynamics")
		}
		if a.recentPathDeviation < 1.0 {
			out = append(out, "suspiciously linear touch paths")
		}
	}
	return out
}

func (a *TouchAgent) ResetBaseline() {
	a.mu.Lock()
	a.velocity.Reset()
	a.peakVelocity.Reset()
	a.pathDeviation.Reset()
	a.jitter.Reset()
	a.pressure.Reset()
	a.tapDuration.Reset()
	a.totalGestures = 0
	a.inWarmup = true
	a.seg.Clear()
	a.gestures.Clear()
	a.recentVelocity = 0
	a.recentPeakVelocity = 0
	a.recentPathDeviation = 0
	a.recentJitter = 0
	a.recentPressure = 0
	a.recentTapDuration = 0
	a.mu.Unlock()
	if a.logger != nil {
		a.logger.Info("agent baseline reset", "agent", touchAgentName)
	}
}

// TouchState is the opaque persisted baseline snapshot. Applied state is
// trusted; no validation happens beyond the nil check.
type TouchState struct {
	Version           int     `json:"version"`
	AvgVelocityMean   float64 `json:"avg_velocity_mean"`
	AvgVelocityVar    float64 `json:"avg_velocity_var"`
	PeakVelocityMean  float64 `json:"peak_velocity_mean"`
	PeakVelocityVar   float64 `json:"peak_velocity_var"`
	PathDeviationMean float64 `json:"path_deviation_mean"`
	PathDeviationVar  float64 `json:"path_deviation_var"`
	TapDurationMean   float64 `json:"tap_duration_mean"`
	TapDurationVar    float64 `json:"tap_duration_var"`
	JitterMean        float64 `json:"jitter_mean"`
	JitterVar         float64 `json:"jitter_var"`
	PressureMean      float64 `json:"pressure_mean"`
	PressureVar       float64 `json:"pressure_var"`
	TotalGestures     int     `json:"total_gestures"`
	InWarmup          bool    `json:"in_warmup"`
}

func (a *TouchAgent) GetState() TouchState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return TouchState{
		Version:           stateVersion,
		AvgVelocityMean:   a.velocity.Mean(),
		AvgVelocityVar:    a.velocity.Variance(),
		PeakVelocityMean:  a.peakVelocity.Mean(),
		PeakVelocityVar:   a.peakVelocity.Variance(),
		PathDeviationMean: a.pathDeviation.Mean(),
		PathDeviationVar:  a.pathDeviation.Variance(),
		TapDurationMean:   a.tapDuration.Mean(),
		TapDurationVar:    a.tapDuration.Variance(),
		JitterMean:        a.jitter.Mean(),
		JitterVar:         a.jitter.Variance(),
		PressureMean:      a.pressure.Mean(),
		PressureVar:       a.pressure.Variance(),
		TotalGestures:     a.totalGestures,
		InWarmup:          a.inWarmup,
	}
}

func (a *TouchAgent) ApplyState(s *TouchState) {
	if s == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.velocity.Set(s.AvgVelocityMean, s.AvgVelocityVar)
	a.peakVelocity.Set(s.PeakVelocityMean, s.PeakVelocityVar)
	a.pathDeviation.Set(s.PathDeviationMean, s.PathDeviationVar)
	a.tapDuration.Set(s.TapDurationMean, s.TapDurationVar)
	a.jitter.Set(s.JitterMean, s.JitterVar)
	a.pressure.Set(s.PressureMean, s.PressureVar)
	a.totalGestures = s.TotalGestures
	a.inWarmup = s.InWarmup
}
