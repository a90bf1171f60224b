package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"fraudguard/internal/config"
	"fraudguard/internal/model"
	"fraudguard/internal/results"
)

// EngineControl is the slice of the engine the API needs.
type EngineControl interface {
	Snapshot() model.Snapshot
	Reset()
	ExportStates() map[string]any
	SaveStates(ctx context.Context) error
	UpdateConfig(cfg *config.Config)
}

type Server struct {
	cfg     *config.Manager
	results *results.Store
	engine  EngineControl
	logger  *slog.Logger
	version string
}

type statusResponse struct {
	Status     string       `json:"status"`
	Time       string       `json:"time"`
	Version    string       `json:"version"`
	ConfigPath string       `json:"config_path"`
	Ingest     ingestStatus `json:"ingest"`
	API        apiStatus    `json:"api"`
	Agents     agentsStatus `json:"agents"`
}

type ingestStatus struct {
	REST      bool `json:"rest"`
	TCPStream bool `json:"tcp_stream"`
	FileTail  bool `json:"file_tail"`
	Kafka     bool `json:"kafka"`
}

type apiStatus struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

type agentsStatus struct {
	Touch  bool `json:"touch"`
	Typing bool `json:"typing"`
	Usage  bool `json:"usage"`
}

func Start(ctx context.Context, cfg *config.Manager, resultsStore *results.Store, engine EngineControl, logger *slog.Logger, version string) *http.Server {
	if cfg == nil {
		return nil
	}
	current := cfg.Get().API
	if !current.Enabled {
		if logger != nil {
			logger.Info("api disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("api enabled", "addr", current.Addr)
	}
	server := &Server{
		cfg:     cfg,
		results: resultsStore,
		engine:  engine,
		logger:  logger,
		version: version,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/status", server.handleStatus)
	mux.HandleFunc("/results", server.handleResults)
	mux.HandleFunc("/fusion", server.handleFusion)
	mux.HandleFunc("/fusion/history", server.handleFusionHistory)
	mux.HandleFunc("/state", server.handleState)
	mux.HandleFunc("/admin/reset", server.handleReset)
	mux.HandleFunc("/admin/save", server.handleSave)
	mux.HandleFunc("/admin/clear", server.handleClear)

	httpServer := &http.Server{Addr: current.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cfg := s.cfg.Get()
	resp := statusResponse{
		Status:     "ok",
		Time:       time.Now().UTC().Format(time.RFC3339Nano),
		Version:    s.version,
		ConfigPath: s.cfg.Path(),
		Ingest: ingestStatus{
			REST:      cfg.Ingest.REST.Enabled,
			TCPStream: cfg.Ingest.TCPStream.Enabled,
			FileTail:  cfg.Ingest.FileTail.Enabled,
			Kafka:     cfg.Ingest.Kafka.Enabled,
		},
		API: apiStatus{Enabled: cfg.API.Enabled, Addr: cfg.API.Addr},
		Agents: agentsStatus{
			Touch:  cfg.Agents.Touch.Enabled,
			Typing: cfg.Agents.Typing.Enabled,
			Usage:  cfg.Agents.Usage.Enabled,
		},
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleResults returns the latest per-agent scores.
func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	agents := s.results.Agents()
	writeJSON(w, http.StatusOK, map[string]any{
		"agents": agents,
		"count":  len(agents),
	})
}

// handleFusion computes a fresh fused verdict on demand.
func (s *Server) handleFusion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.engine == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

func (s *Server) handleFusionHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	var list []model.FusionResult
	if v := r.URL.Query().Get("since_ms"); v != "" {
		ts, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		list = s.results.Since(ts)
	} else {
		list = s.results.History(limit)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"fusions": list,
		"count":   len(list),
	})
}

// handleState exports the learned baselines of every active agent.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.engine == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.ExportStates())
}

// handleReset wipes all learned baselines. Deliberately POST-only.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.engine == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	s.engine.Reset()
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// handleSave persists agent baselines immediately instead of waiting for
// shutdown.
func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.engine == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	if err := s.engine.SaveStates(r.Context()); err != nil {
		if s.logger != nil {
			s.logger.Error("state save failed", "err", err)
		}
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// handleClear empties the results store without touching baselines.
func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.results != nil {
		s.results.Clear()
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
