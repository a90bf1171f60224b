package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel string        `json:"log_level" yaml:"log_level"`
	Ingest   IngestConfig  `json:"ingest" yaml:"ingest"`
	Agents   AgentsConfig  `json:"agents" yaml:"agents"`
	Fusion   FusionConfig  `json:"fusion" yaml:"fusion"`
	Engine   EngineConfig  `json:"engine" yaml:"engine"`
	Bridge   BridgeConfig  `json:"bridge" yaml:"bridge"`
	Export   ExportConfig  `json:"export" yaml:"export"`
	API      APIConfig     `json:"api" yaml:"api"`
	Storage  StorageConfig `json:"storage" yaml:"storage"`
	Results  ResultsConfig `json:"results" yaml:"results"`
}

type IngestConfig struct {
	ChannelBuffer int             `json:"channel_buffer" yaml:"channel_buffer"`
	REST          RESTConfig      `json:"rest" yaml:"rest"`
	TCPStream     TCPStreamConfig `json:"tcp_stream" yaml:"tcp_stream"`
	FileTail      FileTailConfig  `json:"file_tail" yaml:"file_tail"`
	Kafka         KafkaConfig     `json:"kafka" yaml:"kafka"`
}

type RESTConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type TCPStreamConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type FileTailConfig struct {
	Enabled    bool     `json:"enabled" yaml:"enabled"`
	StartAtEnd bool     `json:"start_at_end" yaml:"start_at_end"`
	Files      []string `json:"files" yaml:"files"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id"`
}

type AgentsConfig struct {
	Touch  TouchAgentConfig  `json:"touch" yaml:"touch"`
	Typing TypingAgentConfig `json:"typing" yaml:"typing"`
	Usage  UsageAgentConfig  `json:"usage" yaml:"usage"`
}

type TouchAgentConfig struct {
	Enabled        bool `json:"enabled" yaml:"enabled"`
	WindowSize     int  `json:"window_size" yaml:"window_size"`
	WarmupGestures int  `json:"warmup_gestures" yaml:"warmup_gestures"`
}

type TypingAgentConfig struct {
	Enabled          bool `json:"enabled" yaml:"enabled"`
	WindowSize       int  `json:"window_size" yaml:"window_size"`
	WarmupKeystrokes int  `json:"warmup_keystrokes" yaml:"warmup_keystrokes"`
}

type UsageAgentConfig struct {
	Enabled        bool  `json:"enabled" yaml:"enabled"`
	WarmupSessions int   `json:"warmup_sessions" yaml:"warmup_sessions"`
	RateWindowMs   int64 `json:"rate_window_ms" yaml:"rate_window_ms"`
	DurationWindow int   `json:"duration_window" yaml:"duration_window"`
	HashAppIDs     bool  `json:"hash_app_ids" yaml:"hash_app_ids"`
}

type FusionConfig struct {
	TouchWeight  float64 `json:"touch_weight" yaml:"touch_weight"`
	TypingWeight float64 `json:"typing_weight" yaml:"typing_weight"`
	UsageWeight  float64 `json:"usage_weight" yaml:"usage_weight"`
}

type EngineConfig struct {
	FusionInterval time.Duration `json:"fusion_interval" yaml:"fusion_interval"`
	AlertCooldown  time.Duration `json:"alert_cooldown" yaml:"alert_cooldown"`
	DedupeWindow   time.Duration `json:"dedupe_window" yaml:"dedupe_window"`
	PersistOnStop  bool          `json:"persist_on_stop" yaml:"persist_on_stop"`
}

type BridgeConfig struct {
	Enabled bool          `json:"enabled" yaml:"enabled"`
	Command string        `json:"command" yaml:"command"`
	Args    []string      `json:"args" yaml:"args"`
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

type ExportConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type StorageConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Driver  string `json:"driver" yaml:"driver"`
	DSN     string `json:"dsn" yaml:"dsn"`
}

type ResultsConfig struct {
	HistoryLimit int `json:"history_limit" yaml:"history_limit"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Ingest: IngestConfig{
			ChannelBuffer: 10000,
			REST:          RESTConfig{Enabled: true, Addr: ":8080"},
			TCPStream:     TCPStreamConfig{Enabled: false, Addr: ":9000"},
			FileTail:      FileTailConfig{Enabled: false, StartAtEnd: true},
			Kafka:         KafkaConfig{Enabled: false},
		},
		Agents: AgentsConfig{
			Touch:  TouchAgentConfig{Enabled: true, WindowSize: 50, WarmupGestures: 5},
			Typing: TypingAgentConfig{Enabled: true, WindowSize: 50, WarmupKeystrokes: 100},
			Usage:  UsageAgentConfig{Enabled: true, WarmupSessions: 20, RateWindowMs: 120000, DurationWindow: 100},
		},
		Fusion: FusionConfig{TouchWeight: 0.5, TypingWeight: 0.3, UsageWeight: 0.2},
		Engine: EngineConfig{
			FusionInterval: 5 * time.Second,
			AlertCooldown:  30 * time.Second,
			DedupeWindow:   1 * time.Second,
			PersistOnStop:  true,
		},
		Bridge:  BridgeConfig{Enabled: false, Timeout: 5 * time.Second},
		Export:  ExportConfig{Enabled: false, Path: "gesture_features.csv"},
		API:     APIConfig{Enabled: true, Addr: ":8081"},
		Storage: StorageConfig{Enabled: false, Driver: "sqlite", DSN: "file:fraudguard.db?_pragma=busy_timeout(5000)"},
		Results: ResultsConfig{HistoryLimit: 1000},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	if cfg.Ingest.ChannelBuffer <= 0 {
		cfg.Ingest.ChannelBuffer = 10000
	}
	if cfg.Agents.Touch.WindowSize <= 0 {
		cfg.Agents.Touch.WindowSize = 50
	}
	if cfg.Agents.Touch.WarmupGestures <= 0 {
		cfg.Agents.Touch.WarmupGestures = 5
	}
	if cfg.Agents.Typing.WindowSize <= 0 {
		cfg.Agents.Typing.WindowSize = 50
	}
	if cfg.Agents.Typing.WarmupKeystrokes <= 0 {
		cfg.Agents.Typing.WarmupKeystrokes = 100
	}
	if cfg.Agents.Usage.WarmupSessions <= 0 {
		cfg.Agents.Usage.WarmupSessions = 20
	}
	if cfg.Agents.Usage.RateWindowMs <= 0 {
		cfg.Agents.Usage.RateWindowMs = 120000
	}
	if cfg.Agents.Usage.DurationWindow <= 0 {
		cfg.Agents.Usage.DurationWindow = 100
	}
	if cfg.Engine.FusionInterval <= 0 {
		cfg.Engine.FusionInterval = 5 * time.Second
	}
	if cfg.Bridge.Timeout <= 0 {
		cfg.Bridge.Timeout = 5 * time.Second
	}
	if cfg.Results.HistoryLimit <= 0 {
		cfg.Results.HistoryLimit = 1000
	}
}

func Validate(cfg *Config) error {
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	if cfg.Ingest.REST.Enabled && cfg.Ingest.REST.Addr == "" {
		return errors.New("ingest.rest.addr required when ingest.rest.enabled is true")
	}
	if cfg.Ingest.TCPStream.Enabled && cfg.Ingest.TCPStream.Addr == "" {
		return errors.New("ingest.tcp_stream.addr required when ingest.tcp_stream.enabled is true")
	}
	if cfg.Ingest.FileTail.Enabled && len(cfg.Ingest.FileTail.Files) == 0 {
		return errors.New("ingest.file_tail.files required when ingest.file_tail.enabled is true")
	}
	if cfg.Ingest.Kafka.Enabled {
		if len(cfg.Ingest.Kafka.Brokers) == 0 || cfg.Ingest.Kafka.Topic == "" || cfg.Ingest.Kafka.GroupID == "" {
			return errors.New("ingest.kafka requires brokers, topic, group_id")
		}
	}
	if cfg.Bridge.Enabled && cfg.Bridge.Command == "" {
		return errors.New("bridge.command required when bridge.enabled is true")
	}
	if cfg.Export.Enabled && cfg.Export.Path == "" {
		return errors.New("export.path required when export.enabled is true")
	}
	if cfg.Storage.Enabled {
		if cfg.Storage.Driver != "sqlite" && cfg.Storage.Driver != "postgres" {
			return fmt.Errorf("storage.driver must be sqlite or postgres, got %q", cfg.Storage.Driver)
		}
		if cfg.Storage.DSN == "" {
			return errors.New("storage.dsn required when storage.enabled is true")
		}
	}
	for name, w := range map[string]float64{
		"fusion.touch_weight":  cfg.Fusion.TouchWeight,
		"fusion.typing_weight": cfg.Fusion.TypingWeight,
		"fusion.usage_weight":  cfg.Fusion.UsageWeight,
	} {
		if w < 0 {
			return fmt.Errorf("%s must be >= 0", name)
		}
	}
	if cfg.Fusion.TouchWeight+cfg.Fusion.TypingWeight+cfg.Fusion.UsageWeight <= 0 {
		return errors.New("fusion weights must not all be zero")
	}
	return nil
}

type Manager struct {
	path    string
	cfg     atomic.Value
	modTime time.Time
}

func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	info, err := os.Stat(path)
	if err == nil {
		m.modTime = info.ModTime()
	}
	return m, nil
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return cfg, nil
}

func (m *Manager) Update(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if err := Save(m.path, cfg); err != nil {
		return err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return nil
}

func (m *Manager) NeedsReload() (bool, error) {
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	return info.ModTime().After(m.modTime), nil
}

func (m *Manager) Watch(interval time.Duration, onReload func(*Config), onError func(error), stop <-chan struct{}) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			needs, err := m.NeedsReload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if !needs {
				continue
			}
			cfg, err := m.Reload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onReload != nil {
				onReload(cfg)
			}
		case <-stop:
			return
		}
	}
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
