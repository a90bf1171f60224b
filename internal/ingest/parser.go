package ingest

import (
	"encoding/json"
	"errors"
	"strings"

	"fraudguard/internal/model"
)

// Parser decodes one JSON line into a raw interaction event. Producers are
// not always strict about the envelope, so the stream tag is inferred from
// the payload when missing.
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

var errEmptyLine = errors.New("empty line")

// ParseLine returns (nil, nil) for blank lines so callers can skip them
// without logging.
func (p *Parser) ParseLine(line string) (*model.RawEvent, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return nil, nil
	}
	if trimmed[0] != '{' {
		return nil, errors.New("not a json event")
	}
	var ev model.RawEvent
	if err := json.Unmarshal([]byte(trimmed), &ev); err != nil {
		return nil, err
	}
	if ev.Stream == "" {
		ev.Stream = inferStream(&ev)
	}
	switch ev.Stream {
	case model.StreamTouch, model.StreamKey, model.StreamUsage:
	default:
		return nil, errors.New("unknown event stream")
	}
	if ev.Stream == model.StreamUsage && ev.Kind == "" {
		return nil, errors.New("usage event missing kind")
	}
	return &ev, nil
}

func inferStream(ev *model.RawEvent) model.Stream {
	switch {
	case ev.KeyCode != 0:
		return model.StreamKey
	case ev.AppID != "" || ev.ToApp != "" || ev.Kind == model.UsageScreenOff:
		return model.StreamUsage
	case ev.Kind == model.TouchDown || ev.Kind == model.TouchMove || ev.Kind == model.TouchUp:
		return model.StreamTouch
	}
	return ""
}
