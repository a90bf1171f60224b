package agent

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"fraudguard/internal/model"
	"fraudguard/internal/normalize"
	"fraudguard/internal/stats"
	"fraudguard/internal/window"
)

const usageAgentName = "UsageAgent"

// UsageConfig tunes the app-usage scorer. Zero values fall back to defaults.
// HashAppIDs irreversibly hashes app identifiers before any tracking.
type UsageConfig struct {
	WarmupSessions int   `json:"warmup_sessions" yaml:"warmup_sessions"`
	RateWindowMs   int64 `json:"rate_window_ms" yaml:"rate_window_ms"`
	DurationWindow int   `json:"duration_window" yaml:"duration_window"`
	HashAppIDs     bool  `json:"hash_app_ids" yaml:"hash_app_ids"`
}

const (
	defaultUsageWarmup     = 20
	defaultRateWindowMs    = 120_000
	defaultDurationWindow  = 100
	minScoreSessions       = 2
	usageWeightLaunchRate  = 0.3
	usageWeightSwitchRate  = 0.3
	usageWeightSessionTime = 0.3
	usageWeightNewApp      = 0.1
)

type session struct {
	app     string
	startMs int64
}

// UsageAgent scores app-usage rhythm: launch and switch rates over a rolling
// time horizon and session durations. Baselines advance only when a session
// closes, so the rate baselines sample the instantaneous rates at
// session-close moments.
type UsageAgent struct {
	mu     sync.Mutex
	logger *slog.Logger
	clock  func() time.Time

	warmupThreshold int
	hashAppIDs      bool

	launches  *window.Rate
	switches  *window.Rate
	durations *window.Bounded[float64]

	launchRate  *stats.Ewma
	switchRate  *stats.Ewma
	sessionTime *stats.Ewma

	knownApps       map[string]struct{}
	recentAppCounts map[string]int
	current         *session

	active        bool
	totalSessions int
	inWarmup      bool

	recentLaunchRate  float64
	recentSwitchRate  float64
	recentSessionMean float64
	recentSessionVar  float64
	recentNewAppUsed  bool
}

func NewUsage(cfg UsageConfig, logger *slog.Logger) *UsageAgent {
	if cfg.WarmupSessions <= 0 {
		cfg.WarmupSessions = defaultUsageWarmup
	}
	if cfg.RateWindowMs <= 0 {
		cfg.RateWindowMs = defaultRateWindowMs
	}
	if cfg.DurationWindow <= 0 {
		cfg.DurationWindow = defaultDurationWindow
	}
	return &UsageAgent{
		logger:          logger,
		clock:           time.Now,
		warmupThreshold: cfg.WarmupSessions,
		hashAppIDs:      cfg.HashAppIDs,
		launches:        window.NewRate(cfg.RateWindowMs),
		switches:        window.NewRate(cfg.RateWindowMs),
		durations:       window.NewBounded[float64](cfg.DurationWindow),
		launchRate:      stats.NewEwma(stats.DefaultAlpha),
		switchRate:      stats.NewEwma(stats.DefaultAlpha),
		sessionTime:     stats.NewEwma(stats.DefaultAlpha),
		knownApps:       make(map[string]struct{}),
		recentAppCounts: make(map[string]int),
		inWarmup:        true,
	}
}

func (a *UsageAgent) SetClock(clock func() time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.clock = clock
}

func (a *UsageAgent) Name() string { return usageAgentName }

func (a *UsageAgent) IsActive() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

func (a *UsageAgent) Start() {
	a.mu.Lock()
	a.active = true
	a.mu.Unlock()
	if a.logger != nil {
		a.logger.Info("agent started monitoring", "agent", usageAgentName)
	}
}

func (a *UsageAgent) Stop() {
	a.mu.Lock()
	a.active = false
	a.launches.Clear()
	a.switches.Clear()
	a.durations.Clear()
	a.recentAppCounts = make(map[string]int)
	a.current = nil
	a.mu.Unlock()
	if a.logger != nil {
		a.logger.Info("agent stopped monitoring", "agent", usageAgentName)
	}
}

func (a *UsageAgent) OnAppOpened(appID string) {
	a.appOpenedAt(nowMs(a.clock), appID)
}

func (a *UsageAgent) OnAppClosed(appID string) {
	a.appClosedAt(nowMs(a.clock), appID)
}

func (a *UsageAgent) OnAppSwitch(fromApp, toApp string) {
	a.appSwitchAt(nowMs(a.clock), fromApp, toApp)
}

func (a *UsageAgent) OnScreenOff() {
	a.screenOffAt(nowMs(a.clock))
}

// Process dispatches a tagged raw event, honoring its timestamp when present.
func (a *UsageAgent) Process(ev model.RawEvent) {
	ts := ev.TimestampMs
	if ts == 0 {
		ts = nowMs(a.clock)
	}
	switch ev.Kind {
	case model.UsageAppOpened:
		a.appOpenedAt(ts, ev.AppID)
	case model.UsageAppClosed:
		a.appClosedAt(ts, ev.AppID)
	case model.UsageAppSwitch:
		a.appSwitchAt(ts, ev.FromApp, ev.ToApp)
	case model.UsageScreenOff:
		a.screenOffAt(ts)
	}
}

func (a *UsageAgent) appOpenedAt(ts int64, appID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.active {
		return
	}
	id := normalize.AppID(appID, a.hashAppIDs)
	a.launches.Add(ts)
	a.launches.Evict(ts)
	a.current = &session{app: id, startMs: ts}
	a.markAppSeen(id)
	a.updateRecent(ts)
}

func (a *UsageAgent) appClosedAt(ts int64, appID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.active {
		return
	}
	id := normalize.AppID(appID, a.hashAppIDs)
	if a.current != nil && a.current.app == id {
		a.closeSession(ts)
	}
	a.updateRecent(ts)
}

func (a *UsageAgent) appSwitchAt(ts int64, fromApp, toApp string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.active {
		return
	}
	a.switches.Add(ts)
	a.switches.Evict(ts)
	fromID := normalize.AppID(fromApp, a.hashAppIDs)
	if a.current != nil && a.current.app == fromID {
		a.closeSession(ts)
	}
	toID := normalize.AppID(toApp, a.hashAppIDs)
	a.current = &session{app: toID, startMs: ts}
	a.markAppSeen(toID)
	a.updateRecent(ts)
}

func (a *UsageAgent) screenOffAt(ts int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.active {
		return
	}
	if a.current != nil {
		a.closeSession(ts)
		a.updateRecent(ts)
	}
}

// closeSession is called with the mutex held and a.current non-nil.
func (a *UsageAgent) closeSession(ts int64) {
	dur := float64(ts - a.current.startMs)
	if dur < 0 {
		dur = 0
	}
	a.durations.Push(dur)
	a.recentAppCounts[a.current.app]++
	a.totalSessions++
	if a.inWarmup && a.totalSessions >= a.warmupThreshold {
		a.inWarmup = false
		if a.logger != nil {
			a.logger.Info("agent completed warmup phase", "agent", usageAgentName, "sessions", a.totalSessions)
		}
	}
	// Baselines roll forward on session close only: the rate baselines
	// sample the current rolling rates, the duration baseline takes the
	// closed duration.
	if !a.inWarmup {
		a.launchRate.Update(a.recentLaunchRate)
		a.switchRate.Update(a.recentSwitchRate)
		a.sessionTime.Update(dur)
	}
	a.current = nil
}

func (a *UsageAgent) updateRecent(ts int64) {
	a.recentLaunchRate = a.launches.PerMinute(ts)
	a.recentSwitchRate = a.switches.PerMinute(ts)
	if a.durations.Len() > 0 {
		values := a.durations.Values()
		a.recentSessionMean = stats.Mean(values)
		a.recentSessionVar = stats.Variance(values, a.recentSessionMean)
	}
}

func (a *UsageAgent) markAppSeen(app string) {
	if _, ok := a.knownApps[app]; !ok {
		// A new app during warmup is expected, not anomalous.
		a.recentNewAppUsed = !a.inWarmup
		a.knownApps[app] = struct{}{}
	} else {
		a.recentNewAppUsed = false
	}
}

func (a *UsageAgent) GetResult() model.AgentResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	ts := nowMs(a.clock)
	if !a.active {
		return model.NewAgentResult(0, []string{ExplainNotActive}, ts)
	}
	if a.inWarmup || a.totalSessions < minScoreSessions {
		return model.NewAgentResult(0, []string{ExplainInsufficientData}, ts)
	}
	score := a.anomalyScore()
	return model.NewAgentResult(score, a.explain(score), ts)
}

// anomalyScore renormalizes by the sum of the weights that actually applied,
// unlike the touch and typing scorers. The asymmetry is intentional.
func (a *UsageAgent) anomalyScore() float64 {
	total := 0.0
	weightSum := 0.0

	// Rates are count-like and assumed Poisson, so sqrt(mean) stands in
	// for the stddev.
	if m := a.launchRate.Mean(); m > 0 {
		z := math.Abs(a.recentLaunchRate-m) / math.Max(stats.Epsilon, math.Sqrt(m))
		total += usageWeightLaunchRate * math.Min(1.0, z/3.0)
		weightSum += usageWeightLaunchRate
	}
	if m := a.switchRate.Mean(); m > 0 {
		z := math.Abs(a.recentSwitchRate-m) / math.Max(stats.Epsilon, math.Sqrt(m))
		total += usageWeightSwitchRate * math.Min(1.0, z/3.0)
		weightSum += usageWeightSwitchRate
	}
	if v := a.sessionTime.Variance(); v > 0 {
		z := stats.ZScore(a.recentSessionMean, a.sessionTime.Mean(), v)
		total += usageWeightSessionTime * math.Min(1.0, z/3.0)
		weightSum += usageWeightSessionTime
	}
	if a.recentNewAppUsed {
		total += usageWeightNewApp
	}
	weightSum += usageWeightNewApp

	if weightSum <= 0 {
		return 0
	}
	return math.Min(1.0, total/weightSum)
}

func (a *UsageAgent) explain(score float64) []string {
	var out []string
	switch {
	case score < 0.3:
		out = append(out, "normal usage behavior")
	case score < 0.6:
		out = append(out, "moderate usage anomalies detected")
		if m := a.launchRate.Mean(); m > 0 &&
			math.Abs(a.recentLaunchRate-m) > math.Sqrt(math.Max(stats.Epsilon, m)) {
			out = append(out, "unusual app launch rate")
		}
		if m := a.switchRate.Mean(); m > 0 &&
			math.Abs(a.recentSwitchRate-m) > math.Sqrt(math.Max(stats.Epsilon, m)) {
			out = append(out, "frequent app switching")
		}
		if v := a.sessionTime.Variance(); v > 0 &&
			math.Abs(a.recentSessionMean-a.sessionTime.Mean()) > math.Sqrt(v) {
			out = append(out, "atypical session durations")
		}
		if a.recentNewAppUsed {
			out = append(out, "previously unseen app used")
		}
	default:
		out = append(out, "significant usage behavior anomalies")
		if a.recentSwitchRate > a.switchRate.Mean()*2 {
			out = append(out, "rapid task switching bursts")
		}
		if a.recentSessionMean < a.sessionTime.Mean()*0.3 {
			out = append(out, "very short sessions")
		}
		if a.recentNewAppUsed {
			out = append(out, "new/unrecognized app detected")
		}
	}
	return out
}

func (a *UsageAgent) ResetBaseline() {
	a.mu.Lock()
	a.launchRate.Reset()
	a.switchRate.Reset()
	a.sessionTime.Reset()
	a.totalSessions = 0
	a.inWarmup = true
	a.launches.Clear()
	a.switches.Clear()
	a.durations.Clear()
	a.recentAppCounts = make(map[string]int)
	a.knownApps = make(map[string]struct{})
	a.current = nil
	a.recentLaunchRate = 0
	a.recentSwitchRate = 0
	a.recentSessionMean = 0
	a.recentSessionVar = 0
	a.recentNewAppUsed = false
	a.mu.Unlock()
	if a.logger != nil {
		a.logger.Info("agent baseline reset", "agent", usageAgentName)
	}
}

// UsageState is the opaque persisted baseline snapshot.
type UsageState struct {
	Version         int     `json:"version"`
	LaunchRateMean  float64 `json:"launch_rate_mean"`
	SwitchRateMean  float64 `json:"switch_rate_mean"`
	SessionTimeMean float64 `json:"session_time_mean"`
	SessionTimeVar  float64 `json:"session_time_var"`
	TotalSessions   int     `json:"total_sessions"`
	InWarmup        bool    `json:"in_warmup"`
}

func (a *UsageAgent) GetState() UsageState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return UsageState{
		Version:         stateVersion,
		LaunchRateMean:  a.launchRate.Mean(),
		SwitchRateMean:  a.switchRate.Mean(),
		SessionTimeMean: a.sessionTime.Mean(),
		SessionTimeVar:  a.sessionTime.Variance(),
		TotalSessions:   a.totalSessions,
		InWarmup:        a.inWarmup,
	}
}

func (a *UsageAgent) ApplyState(s *UsageState) {
	if s == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.launchRate.Set(s.LaunchRateMean, 0)
	a.switchRate.Set(s.SwitchRateMean, 0)
	a.sessionTime.Set(s.SessionTimeMean, s.SessionTimeVar)
	a.totalSessions = s.TotalSessions
	a.inWarmup = s.InWarmup
}
