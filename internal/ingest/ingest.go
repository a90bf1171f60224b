package ingest

import (
	"context"
	"log/slog"
	"time"

	"fraudguard/internal/model"
)

// SendNonBlocking forwards an event without ever stalling a source. A full
// channel drops the event and logs once per drop.
func SendNonBlocking(ctx context.Context, out chan<- model.RawEvent, ev model.RawEvent, logger *slog.Logger) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	default:
		if logger != nil {
			logger.Warn("event channel full, dropping event", "stream", ev.Stream, "ts_ms", ev.TimestampMs)
		}
		return false
	}
}

func BackoffSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = 200 * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
