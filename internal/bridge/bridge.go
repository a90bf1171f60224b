package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os/exec"
	"time"

	"fraudguard/internal/config"
	"fraudguard/internal/gesture"
)

// Bridge hands gesture feature vectors to an external scoring process, one
// invocation per request. The process reads one JSON object on stdin and
// writes one JSON verdict on stdout.
type Bridge struct {
	command string
	args    []string
	timeout time.Duration
	logger  *slog.Logger
}

// Verdict is the external scorer's reply.
type Verdict struct {
	Score     float64 `json:"score"`
	MSE       float64 `json:"mse"`
	Threshold float64 `json:"threshold"`
	Anomaly   bool    `json:"anomaly"`
}

// New returns nil when the bridge is disabled.
func New(cfg config.BridgeConfig, logger *slog.Logger) *Bridge {
	if !cfg.Enabled || cfg.Command == "" {
		return nil
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Bridge{
		command: cfg.Command,
		args:    cfg.Args,
		timeout: timeout,
		logger:  logger,
	}
}

// Score invokes the external model on one feature vector. The context bounds
// the whole invocation on top of the configured timeout.
func (b *Bridge) Score(ctx context.Context, fv gesture.FeatureVector) (Verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	input, err := json.Marshal(fv)
	if err != nil {
		return Verdict{}, err
	}

	cmd := exec.CommandContext(ctx, b.command, b.args...)
	cmd.Stdin = bytes.NewReader(input)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return Verdict{}, ctx.Err()
		}
		if b.logger != nil && stderr.Len() > 0 {
			b.logger.Warn("bridge scorer stderr", "output", stderr.String())
		}
		return Verdict{}, err
	}

	var v Verdict
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &v); err != nil {
		return Verdict{}, errors.New("bridge scorer returned invalid json")
	}
	return v, nil
}
