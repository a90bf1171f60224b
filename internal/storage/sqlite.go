package storage

import (
	"context"
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"

	"fraudguard/internal/model"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:fraudguard.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &sqliteStore{baseStore{db: db}}, nil
}

func (s *sqliteStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS agent_state (
			agent TEXT PRIMARY KEY,
			updated TEXT NOT NULL,
			state_json TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS fusion_results (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			ts_ms INTEGER NOT NULL,
			score REAL NOT NULL,
			risk_level TEXT NOT NULL,
			explanations_json TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fusion_ts ON fusion_results(ts_ms)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqliteStore) SaveState(ctx context.Context, agent string, state []byte) error {
	if s.db == nil || agent == "" || len(state) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agent_state (agent, updated, state_json) VALUES (?, ?, ?)
		ON CONFLICT(agent) DO UPDATE SET updated = excluded.updated, state_json = excluded.state_json`,
		agent,
		nowUTC(),
		string(state),
	)
	return err
}

func (s *sqliteStore) LoadState(ctx context.Context, agent string) ([]byte, error) {
	if s.db == nil || agent == "" {
		return nil, nil
	}
	var state string
	err := s.db.QueryRowContext(ctx,
		`SELECT state_json FROM agent_state WHERE agent = ?`, agent).Scan(&state)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(state), nil
}

func (s *sqliteStore) SaveFusion(ctx context.Context, res model.FusionResult) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fusion_results (ts, ts_ms, score, risk_level, explanations_json)
		VALUES (?, ?, ?, ?, ?)`,
		nowUTC(),
		res.TimestampMs,
		res.FinalScore,
		string(res.RiskLevel),
		encodeJSON(res.Explanations),
	)
	return err
}

func (s *sqliteStore) RecentFusions(ctx context.Context, limit int) ([]model.FusionResult, error) {
	if s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts_ms, score, risk_level, explanations_json
		FROM fusion_results ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return scanFusions(rows)
}
