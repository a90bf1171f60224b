package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"fraudguard/internal/config"
	"fraudguard/internal/model"
)

// Store persists agent baselines across restarts and records fusion verdicts
// for audit. Implementations are driver-specific, the SQL shape is shared.
type Store interface {
	Init(ctx context.Context) error
	Close() error
	SaveState(ctx context.Context, agent string, state []byte) error
	LoadState(ctx context.Context, agent string) ([]byte, error)
	SaveFusion(ctx context.Context, res model.FusionResult) error
	RecentFusions(ctx context.Context, limit int) ([]model.FusionResult, error)
}

// NewStore returns nil without error when storage is disabled.
func NewStore(cfg config.StorageConfig) (Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	default:
		return nil, errors.New("unsupported storage driver")
	}
}

type baseStore struct {
	db *sql.DB
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func encodeJSON(value any) string {
	data, _ := json.Marshal(value)
	return string(data)
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

func scanFusions(rows *sql.Rows) ([]model.FusionResult, error) {
	defer rows.Close()
	var out []model.FusionResult
	for rows.Next() {
		var r model.FusionResult
		var level string
		var explanations string
		if err := rows.Scan(&r.TimestampMs, &r.FinalScore, &level, &explanations); err != nil {
			return nil, err
		}
		r.RiskLevel = model.RiskLevel(level)
		if err := json.Unmarshal([]byte(explanations), &r.Explanations); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
