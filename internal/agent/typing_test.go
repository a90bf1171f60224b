package agent

import (
	"math"
	"testing"
	"time"

	"fraudguard/internal/model"
)

func newTypingForTest(warmup int) *TypingAgent {
	a := NewTyping(TypingConfig{WarmupKeystrokes: warmup}, nil)
	a.SetClock(func() time.Time { return time.UnixMilli(0) })
	a.Start()
	return a
}

// pressKey feeds a down/up pair: the key goes down at ts and up after dwellMs.
func pressKey(a *TypingAgent, ts int64, keyCode int, dwellMs int64) {
	a.Process(model.RawEvent{Stream: model.StreamKey, TimestampMs: ts, KeyDown: true, KeyCode: keyCode})
	a.Process(model.RawEvent{Stream: model.StreamKey, TimestampMs: ts + dwellMs, KeyDown: false, KeyCode: keyCode})
}

func TestTypingNotActive(t *testing.T) {
	a := NewTyping(TypingConfig{}, nil)
	res := a.GetResult()
	if res.Score != 0 || res.Explanations[0] != ExplainNotActive {
		t.Fatalf("got %+v", res)
	}
}

func TestTypingRawEventWindowIndependentOfDwellWindow(t *testing.T) {
	a := NewTyping(TypingConfig{WindowSize: 10, WarmupKeystrokes: 5}, nil)
	a.SetClock(func() time.Time { return time.UnixMilli(0) })
	a.Start()
	// 15 presses push 30 raw samples; the backspace-rate horizon must keep
	// all of them even though the dwell/flight windows hold only 10.
	for i := 0; i < 15; i++ {
		pressKey(a, int64(i+1)*300, 65+i%5, 70)
	}
	if got := a.events.Len(); got != 30 {
		t.Fatalf("raw event window holds %d samples, want 30", got)
	}
	if got := a.dwellTimes.Len(); got != 10 {
		t.Fatalf("dwell window holds %d samples, want 10", got)
	}
}

func TestTypingWarmupSuppressesScore(t *testing.T) {
	a := newTypingForTest(10)
	for i := 0; i < 6; i++ {
		pressKey(a, int64(i+1)*300, 65+i, 90)
	}
	res := a.GetResult()
	if res.Score != 0 || res.Explanations[0] != ExplainInsufficientData {
		t.Fatalf("expected warmup suppression, got %+v", res)
	}
}

func TestTypingScoresAfterWarmup(t *testing.T) {
	a := newTypingForTest(10)
	for i := 0; i < 20; i++ {
		pressKey(a, int64(i+1)*250, 65+i%8, 80+int64(i%4)*10)
	}
	if a.inWarmup {
		t.Fatalf("agent should have left warmup")
	}
	res := a.GetResult()
	if res.Score < 0 || res.Score > 1 {
		t.Fatalf("score out of range: %v", res.Score)
	}
	if len(res.Explanations) == 0 {
		t.Fatalf("expected explanations")
	}
}

func TestDwellRequiresMatchingKey(t *testing.T) {
	a := newTypingForTest(100)
	a.Process(model.RawEvent{Stream: model.StreamKey, TimestampMs: 100, KeyDown: true, KeyCode: 65})
	a.Process(model.RawEvent{Stream: model.StreamKey, TimestampMs: 190, KeyDown: false, KeyCode: 66})
	if a.dwellTimes.Len() != 0 {
		t.Fatalf("up for a different key must not record a dwell time")
	}
	a.Process(model.RawEvent{Stream: model.StreamKey, TimestampMs: 200, KeyDown: true, KeyCode: 67})
	a.Process(model.RawEvent{Stream: model.StreamKey, TimestampMs: 280, KeyDown: false, KeyCode: 67})
	if a.dwellTimes.Len() != 1 {
		t.Fatalf("matching up must record a dwell time")
	}
}

func TestFlightBetweenConsecutiveDowns(t *testing.T) {
	a := newTypingForTest(100)
	a.Process(model.RawEvent{Stream: model.StreamKey, TimestampMs: 100, KeyDown: true, KeyCode: 65})
	a.Process(model.RawEvent{Stream: model.StreamKey, TimestampMs: 180, KeyDown: true, KeyCode: 66})
	if a.flightTimes.Len() != 1 {
		t.Fatalf("flight times = %d, want 1", a.flightTimes.Len())
	}
	if got := a.flightTimes.Values()[0]; got != 80 {
		t.Fatalf("flight = %v, want 80", got)
	}
}

func TestPasteBurstDetection(t *testing.T) {
	a := newTypingForTest(5)
	for i := 0; i < 8; i++ {
		pressKey(a, int64(i+1)*300, 65+i, 90)
	}
	if a.pasteDetected {
		t.Fatalf("normal typing cadence must not flag paste")
	}
	// A key down 5ms after the previous one looks like injected text.
	last := int64(9 * 300)
	a.Process(model.RawEvent{Stream: model.StreamKey, TimestampMs: last, KeyDown: true, KeyCode: 80})
	a.Process(model.RawEvent{Stream: model.StreamKey, TimestampMs: last + 5, KeyDown: true, KeyCode: 81})
	if !a.pasteDetected {
		t.Fatalf("burst input must set the paste flag")
	}
	a.pasteDetected = false
	base := a.anomalyScore()
	a.pasteDetected = true
	if diff := a.anomalyScore() - base; math.Abs(diff-typingWeightPaste) > 1e-9 {
		t.Fatalf("paste contribution = %v, want %v", diff, typingWeightPaste)
	}
	// Any further event clears the flag.
	a.Process(model.RawEvent{Stream: model.StreamKey, TimestampMs: last + 200, KeyDown: false, KeyCode: 81})
	if a.pasteDetected {
		t.Fatalf("paste flag must clear on the next event")
	}
}

func TestBackspaceRateTracked(t *testing.T) {
	a := newTypingForTest(5)
	for i := 0; i < 6; i++ {
		pressKey(a, int64(i+1)*300, 65+i, 90)
	}
	if a.recentBackspaceRate != 0 {
		t.Fatalf("backspace rate = %v, want 0", a.recentBackspaceRate)
	}
	for i := 0; i < 4; i++ {
		pressKey(a, 2000+int64(i)*300, keyCodeBackspace, 70)
	}
	if a.recentBackspaceRate <= 0 {
		t.Fatalf("backspace rate should be nonzero after corrections")
	}
	// With a zero learned baseline any corrections count as elevated.
	a.pasteDetected = false
	withBackspace := a.anomalyScore()
	a.recentBackspaceRate = 0
	if withBackspace <= a.anomalyScore() {
		t.Fatalf("corrections must raise the score above the clean baseline")
	}
}

func TestTypingResetBaselineReentersWarmup(t *testing.T) {
	a := newTypingForTest(5)
	for i := 0; i < 10; i++ {
		pressKey(a, int64(i+1)*300, 65+i%6, 85)
	}
	a.ResetBaseline()
	res := a.GetResult()
	if res.Score != 0 || res.Explanations[0] != ExplainInsufficientData {
		t.Fatalf("reset must re-enter warmup, got %+v", res)
	}
	st := a.GetState()
	if st.DwellMean != 0 || st.TotalKeystrokes != 0 || !st.InWarmup {
		t.Fatalf("reset must zero baselines: %+v", st)
	}
}

func TestTypingStateRoundTrip(t *testing.T) {
	a := newTypingForTest(5)
	for i := 0; i < 12; i++ {
		pressKey(a, int64(i+1)*280, 65+i%5, 75+int64(i%3)*15)
	}
	st := a.GetState()
	if st.InWarmup {
		t.Fatalf("agent should have left warmup")
	}
	b := NewTyping(TypingConfig{}, nil)
	b.ApplyState(&st)
	if b.GetState() != st {
		t.Fatalf("state round trip mismatch")
	}
	b.ApplyState(nil)
	if b.GetState() != st {
		t.Fatalf("nil state must be a no-op")
	}
}

func TestTypingStopDropsTransientState(t *testing.T) {
	a := newTypingForTest(5)
	for i := 0; i < 10; i++ {
		pressKey(a, int64(i+1)*300, 65+i%4, 90)
	}
	st := a.GetState()
	a.Stop()
	if a.dwellTimes.Len() != 0 || a.flightTimes.Len() != 0 {
		t.Fatalf("stop must clear the timing windows")
	}
	if a.GetState() != st {
		t.Fatalf("stop must keep learned baselines")
	}
}
