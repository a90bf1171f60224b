package results

import (
	"sync"

	"fraudguard/internal/model"
)

// Store keeps the latest per-agent result and a bounded fusion history for
// the API and for post-incident review.
type Store struct {
	mu      sync.RWMutex
	byAgent map[string]model.AgentResult
	history []model.FusionResult
	limit   int
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 1000
	}
	return &Store{
		byAgent: make(map[string]model.AgentResult),
		limit:   limit,
	}
}

func (s *Store) UpdateAgent(name string, res model.AgentResult) {
	if name == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byAgent[name] = res
}

func (s *Store) Agent(name string) (model.AgentResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res, ok := s.byAgent[name]
	return res, ok
}

func (s *Store) Agents() map[string]model.AgentResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]model.AgentResult, len(s.byAgent))
	for name, res := range s.byAgent {
		out[name] = res
	}
	return out
}

func (s *Store) AddFusion(res model.FusionResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history) < s.limit {
		s.history = append(s.history, res)
		return
	}
	copy(s.history, s.history[1:])
	s.history[len(s.history)-1] = res
}

// Latest returns the most recent fusion result, if any.
func (s *Store) Latest() (model.FusionResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.history) == 0 {
		return model.FusionResult{}, false
	}
	return s.history[len(s.history)-1], true
}

// History returns up to limit most recent fusion results, oldest first.
func (s *Store) History(limit int) []model.FusionResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}
	out := make([]model.FusionResult, 0, limit)
	for i := len(s.history) - limit; i < len(s.history); i++ {
		out = append(out, s.history[i])
	}
	return out
}

// Since returns fusion results at or after tsMs, oldest first.
func (s *Store) Since(tsMs int64) []model.FusionResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.FusionResult, 0)
	for _, r := range s.history {
		if r.TimestampMs >= tsMs {
			out = append(out, r)
		}
	}
	return out
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byAgent = make(map[string]model.AgentResult)
	s.history = nil
}
