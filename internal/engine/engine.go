package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"fraudguard/internal/agent"
	"fraudguard/internal/config"
	"fraudguard/internal/fusion"
	"fraudguard/internal/model"
	"fraudguard/internal/results"
	"fraudguard/internal/storage"
)

// Engine routes raw interaction events to the behavioral agents and
// periodically fuses their scores into one risk verdict.
type Engine struct {
	logger  *slog.Logger
	results *results.Store
	store   storage.Store
	cfg     atomic.Value

	touch  *agent.TouchAgent
	typing *agent.TypingAgent
	usage  *agent.UsageAgent
	fuser  *fusion.Engine

	mu       sync.Mutex
	started  time.Time
	cooldown *Cooldown
	deDupe   *DedupeCache
}

func NewEngine(cfg *config.Config, logger *slog.Logger, resultsStore *results.Store, store storage.Store) *Engine {
	e := &Engine{
		logger:   logger,
		results:  resultsStore,
		store:    store,
		started:  time.Now().UTC(),
		cooldown: NewCooldown(),
		deDupe:   NewDedupeCache(),
	}
	e.cfg.Store(cfg)
	if cfg.Agents.Touch.Enabled {
		e.touch = agent.NewTouch(agent.TouchConfig{
			WindowSize:     cfg.Agents.Touch.WindowSize,
			WarmupGestures: cfg.Agents.Touch.WarmupGestures,
		}, logger)
	}
	if cfg.Agents.Typing.Enabled {
		e.typing = agent.NewTyping(agent.TypingConfig{
			WindowSize:       cfg.Agents.Typing.WindowSize,
			WarmupKeystrokes: cfg.Agents.Typing.WarmupKeystrokes,
		}, logger)
	}
	if cfg.Agents.Usage.Enabled {
		e.usage = agent.NewUsage(agent.UsageConfig{
			WarmupSessions: cfg.Agents.Usage.WarmupSessions,
			RateWindowMs:   cfg.Agents.Usage.RateWindowMs,
			DurationWindow: cfg.Agents.Usage.DurationWindow,
			HashAppIDs:     cfg.Agents.Usage.HashAppIDs,
		}, logger)
	}
	e.fuser = fusion.NewWithWeights(cfg.Fusion.TouchWeight, cfg.Fusion.TypingWeight, cfg.Fusion.UsageWeight)
	return e
}

func (e *Engine) UpdateConfig(cfg *config.Config) {
	e.cfg.Store(cfg)
}

func (e *Engine) config() *config.Config {
	if v := e.cfg.Load(); v != nil {
		return v.(*config.Config)
	}
	return config.DefaultConfig()
}

// Touch exposes the touch agent for feature-observer wiring. Nil when the
// agent is disabled.
func (e *Engine) Touch() *agent.TouchAgent { return e.touch }

func (e *Engine) Results() *results.Store { return e.results }

func (e *Engine) Uptime() time.Duration { return time.Since(e.started) }

// Start launches the event consumer and the fusion ticker. Agents begin
// collecting immediately.
func (e *Engine) Start(ctx context.Context, in <-chan model.RawEvent) {
	for _, a := range e.agents() {
		a.Start()
	}
	go func() {
		for {
			select {
			case ev := <-in:
				e.ProcessEvent(ev)
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		interval := e.config().Engine.FusionInterval
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				e.Fuse()
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (e *Engine) Stop() {
	for _, a := range e.agents() {
		a.Stop()
	}
}

func (e *Engine) agents() []agent.Agent {
	out := make([]agent.Agent, 0, 3)
	if e.touch != nil {
		out = append(out, e.touch)
	}
	if e.typing != nil {
		out = append(out, e.typing)
	}
	if e.usage != nil {
		out = append(out, e.usage)
	}
	return out
}

// ProcessEvent dispatches one raw event to its agent. Replays inside the
// dedupe window are dropped. Events without a timestamp are stamped with
// arrival time and never deduped: only an event carrying its own timestamp
// can be a replay.
func (e *Engine) ProcessEvent(ev model.RawEvent) {
	cfg := e.config()
	if ev.TimestampMs == 0 {
		ev.TimestampMs = time.Now().UTC().UnixMilli()
	} else if ttl := cfg.Engine.DedupeWindow; ttl > 0 {
		if e.deDupe.Seen(eventKey(ev), time.Now().UTC(), ttl) {
			return
		}
	}
	switch ev.Stream {
	case model.StreamTouch:
		if e.touch != nil {
			e.touch.Process(ev)
		}
	case model.StreamKey:
		if e.typing != nil {
			e.typing.Process(ev)
		}
	case model.StreamUsage:
		if e.usage != nil {
			e.usage.Process(ev)
		}
	default:
		if e.logger != nil {
			e.logger.Warn("event for unknown stream dropped", "stream", ev.Stream)
		}
	}
}

// Fuse collects the current per-agent results and produces one fused
// verdict. Agents that are not running contribute no signal.
func (e *Engine) Fuse() model.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	var snap model.Snapshot
	var touchScore, typingScore, usageScore *float64
	if e.touch != nil {
		snap.Touch = e.touch.GetResult()
		e.results.UpdateAgent(e.touch.Name(), snap.Touch)
		if e.touch.IsActive() {
			touchScore = &snap.Touch.Score
		}
	}
	if e.typing != nil {
		snap.Typing = e.typing.GetResult()
		e.results.UpdateAgent(e.typing.Name(), snap.Typing)
		if e.typing.IsActive() {
			typingScore = &snap.Typing.Score
		}
	}
	if e.usage != nil {
		snap.Usage = e.usage.GetResult()
		e.results.UpdateAgent(e.usage.Name(), snap.Usage)
		if e.usage.IsActive() {
			usageScore = &snap.Usage.Score
		}
	}

	snap.Fusion = e.fuser.FuseScores(touchScore, typingScore, usageScore)
	e.results.AddFusion(snap.Fusion)

	cfg := e.config()
	if snap.Fusion.RiskLevel == model.RiskHigh &&
		e.cooldown.Allow("risk_high", cfg.Engine.AlertCooldown) {
		if e.logger != nil {
			e.logger.Warn("high risk detected",
				"score", snap.Fusion.FinalScore,
				"action", fusion.ResponseAction(snap.Fusion.RiskLevel),
				"explanations", snap.Fusion.Explanations,
			)
		}
	}
	if e.store != nil {
		if err := e.store.SaveFusion(context.Background(), snap.Fusion); err != nil && e.logger != nil {
			e.logger.Warn("fusion persist failed", "err", err)
		}
	}
	return snap
}

// Snapshot is Fuse without side channels, for the API.
func (e *Engine) Snapshot() model.Snapshot {
	return e.Fuse()
}

// Reset wipes all learned baselines and transient caches.
func (e *Engine) Reset() {
	for _, a := range e.agents() {
		a.ResetBaseline()
	}
	e.mu.Lock()
	e.cooldown = NewCooldown()
	e.deDupe = NewDedupeCache()
	e.mu.Unlock()
	e.results.Clear()
	if e.logger != nil {
		e.logger.Info("engine reset, all baselines cleared")
	}
}

// ExportStates returns every active agent's learned baseline keyed by agent
// name, for inspection or out-of-band backup.
func (e *Engine) ExportStates() map[string]any {
	out := make(map[string]any)
	if e.touch != nil {
		out[e.touch.Name()] = e.touch.GetState()
	}
	if e.typing != nil {
		out[e.typing.Name()] = e.typing.GetState()
	}
	if e.usage != nil {
		out[e.usage.Name()] = e.usage.GetState()
	}
	return out
}

// SaveStates persists every agent's learned baseline.
func (e *Engine) SaveStates(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	if e.touch != nil {
		st := e.touch.GetState()
		data, err := json.Marshal(st)
		if err != nil {
			return err
		}
		if err := e.store.SaveState(ctx, e.touch.Name(), data); err != nil {
			return err
		}
	}
	if e.typing != nil {
		st := e.typing.GetState()
		data, err := json.Marshal(st)
		if err != nil {
			return err
		}
		if err := e.store.SaveState(ctx, e.typing.Name(), data); err != nil {
			return err
		}
	}
	if e.usage != nil {
		st := e.usage.GetState()
		data, err := json.Marshal(st)
		if err != nil {
			return err
		}
		if err := e.store.SaveState(ctx, e.usage.Name(), data); err != nil {
			return err
		}
	}
	return nil
}

// RestoreStates loads persisted baselines. Missing rows leave the agent in
// warmup.
func (e *Engine) RestoreStates(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	if e.touch != nil {
		data, err := e.store.LoadState(ctx, e.touch.Name())
		if err != nil {
			return err
		}
		if len(data) > 0 {
			var st agent.TouchState
			if err := json.Unmarshal(data, &st); err != nil {
				return err
			}
			e.touch.ApplyState(&st)
		}
	}
	if e.typing != nil {
		data, err := e.store.LoadState(ctx, e.typing.Name())
		if err != nil {
			return err
		}
		if len(data) > 0 {
			var st agent.TypingState
			if err := json.Unmarshal(data, &st); err != nil {
				return err
			}
			e.typing.ApplyState(&st)
		}
	}
	if e.usage != nil {
		data, err := e.store.LoadState(ctx, e.usage.Name())
		if err != nil {
			return err
		}
		if len(data) > 0 {
			var st agent.UsageState
			if err := json.Unmarshal(data, &st); err != nil {
				return err
			}
			e.usage.ApplyState(&st)
		}
	}
	return nil
}

func eventKey(ev model.RawEvent) string {
	data, _ := json.Marshal(ev)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:16])
}
