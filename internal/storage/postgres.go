package storage

import (
	"context"
	"database/sql"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"fraudguard/internal/model"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/fraudguard?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{db: db}}, nil
}

func (s *postgresStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS agent_state (
			agent TEXT PRIMARY KEY,
			updated TIMESTAMPTZ NOT NULL,
			state_json JSONB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS fusion_results (
			id BIGSERIAL PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL,
			ts_ms BIGINT NOT NULL,
			score DOUBLE PRECISION NOT NULL,
			risk_level TEXT NOT NULL,
			explanations_json JSONB NOT NULL
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

func (s *postgresStore) SaveState(ctx context.Context, agent string, state []byte) error {
	if s.db == nil || agent == "" || len(state) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agent_state (agent, updated, state_json) VALUES ($1, $2, $3)
		ON CONFLICT(agent) DO UPDATE SET updated = excluded.updated, state_json = excluded.state_json`,
		agent,
		nowUTC(),
		string(state),
	)
	return err
}

func (s *postgresStore) LoadState(ctx context.Context, agent string) ([]byte, error) {
	if s.db == nil || agent == "" {
		return nil, nil
	}
	var state string
	err := s.db.QueryRowContext(ctx,
		`SELECT state_json FROM agent_state WHERE agent = $1`, agent).Scan(&state)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(state), nil
}

func (s *postgresStore) SaveFusion(ctx context.Context, res model.FusionResult) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fusion_results (ts, ts_ms, score, risk_level, explanations_json)
		VALUES ($1, $2, $3, $4, $5)`,
		nowUTC(),
		res.TimestampMs,
		res.FinalScore,
		string(res.RiskLevel),
		encodeJSON(res.Explanations),
	)
	return err
}

func (s *postgresStore) RecentFusions(ctx context.Context, limit int) ([]model.FusionResult, error) {
	if s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts_ms, score, risk_level, explanations_json
		FROM fusion_results ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return scanFusions(rows)
}
