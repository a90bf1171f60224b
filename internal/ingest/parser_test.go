package ingest

import (
	"testing"

	"fraudguard/internal/model"
)

func TestParseTouchEvent(t *testing.T) {
	p := NewParser()
	line := `{"stream":"touch","kind":"down","ts_ms":1000,"pointer_id":0,"x":120.5,"y":300.2,"pressure":0.6,"size":22}`
	ev, err := p.ParseLine(line)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if ev.Stream != model.StreamTouch || ev.Kind != model.TouchDown {
		t.Fatalf("stream/kind: %s/%s", ev.Stream, ev.Kind)
	}
	if ev.TimestampMs != 1000 || ev.X != 120.5 {
		t.Fatalf("fields mismatch: %+v", ev)
	}
}

func TestParseKeyEventWithInferredStream(t *testing.T) {
	p := NewParser()
	line := `{"ts_ms":500,"key_down":true,"key_code":67}`
	ev, err := p.ParseLine(line)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if ev.Stream != model.StreamKey {
		t.Fatalf("stream not inferred: %s", ev.Stream)
	}
	if !ev.KeyDown || ev.KeyCode != 67 {
		t.Fatalf("fields mismatch: %+v", ev)
	}
}

func TestParseUsageEvent(t *testing.T) {
	p := NewParser()
	line := `{"stream":"usage","kind":"app_switch","ts_ms":9000,"from_app":"com.example.mail","to_app":"com.example.browser"}`
	ev, err := p.ParseLine(line)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if ev.Kind != model.UsageAppSwitch || ev.FromApp != "com.example.mail" {
		t.Fatalf("fields mismatch: %+v", ev)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	p := NewParser()
	if ev, _ := p.ParseLine("   "); ev != nil {
		t.Fatalf("blank line must yield nil event")
	}
	if _, err := p.ParseLine("not json at all"); err == nil {
		t.Fatalf("expected error for non-json line")
	}
	if _, err := p.ParseLine(`{"stream":"gps","ts_ms":1}`); err == nil {
		t.Fatalf("expected error for unknown stream")
	}
	if _, err := p.ParseLine(`{"stream":"usage","ts_ms":1}`); err == nil {
		t.Fatalf("expected error for usage event without kind")
	}
}
