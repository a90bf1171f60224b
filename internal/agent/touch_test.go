package agent

import (
	"testing"
	"time"

	"fraudguard/internal/gesture"
	"fraudguard/internal/model"
)

func newTouchForTest() *TouchAgent {
	a := NewTouch(TouchConfig{}, nil)
	// Events carry explicit timestamps; a zero clock keeps the ts==0
	// fallback consistent with them.
	a.SetClock(func() time.Time { return time.UnixMilli(0) })
	a.Start()
	return a
}

// feedSwipe drives one down/move/up run through the raw-event dispatch.
// curve displaces the midpoint perpendicular to the path.
func feedSwipe(a *TouchAgent, pointerID int, ts int64, x0, y0, x1, y1, curve float32, durMs int64) {
	a.Process(model.RawEvent{Stream: model.StreamTouch, Kind: model.TouchDown,
		TimestampMs: ts, PointerID: pointerID, X: x0, Y: y0, Pressure: 0.5, Size: 20})
	a.Process(model.RawEvent{Stream: model.StreamTouch, Kind: model.TouchMove,
		TimestampMs: ts + durMs/2, PointerID: pointerID, X: (x0 + x1) / 2, Y: (y0+y1)/2 + curve, Pressure: 0.6, Size: 20})
	a.Process(model.RawEvent{Stream: model.StreamTouch, Kind: model.TouchUp,
		TimestampMs: ts + durMs, PointerID: pointerID, X: x1, Y: y1, Pressure: 0.4, Size: 20})
}

func feedTap(a *TouchAgent, pointerID int, ts int64, x, y float32, durMs int64) {
	a.Process(model.RawEvent{Stream: model.StreamTouch, Kind: model.TouchDown,
		TimestampMs: ts, PointerID: pointerID, X: x, Y: y, Pressure: 0.5, Size: 18})
	a.Process(model.RawEvent{Stream: model.StreamTouch, Kind: model.TouchUp,
		TimestampMs: ts + durMs, PointerID: pointerID, X: x + 2, Y: y + 1, Pressure: 0.4, Size: 18})
}

func TestTouchNotActive(t *testing.T) {
	a := NewTouch(TouchConfig{}, nil)
	res := a.GetResult()
	if res.Score != 0 || len(res.Explanations) != 1 || res.Explanations[0] != ExplainNotActive {
		t.Fatalf("got %+v", res)
	}
}

func TestTouchWarmupSuppressesScore(t *testing.T) {
	a := newTouchForTest()
	for i := 0; i < 4; i++ {
		feedTap(a, 0, int64(i*1000), 100, 100, 80)
	}
	res := a.GetResult()
	if res.Score != 0 || res.Explanations[0] != ExplainInsufficientData {
		t.Fatalf("expected warmup suppression, got %+v", res)
	}
}

func TestTouchScoresAfterWarmup(t *testing.T) {
	a := newTouchForTest()
	for i := 0; i < 12; i++ {
		feedSwipe(a, 0, int64(i*1000), 100, 100, 300, 120, float32(3+i%4), 250+int64(i%5)*30)
	}
	res := a.GetResult()
	if res.Score < 0 || res.Score > 1 {
		t.Fatalf("score out of range: %v", res.Score)
	}
	if len(res.Explanations) == 0 {
		t.Fatalf("expected explanations")
	}
}

func TestTouchResultIdempotent(t *testing.T) {
	a := newTouchForTest()
	for i := 0; i < 10; i++ {
		feedSwipe(a, 0, int64(i*1000), 100, 100, 300, 120, float32(2+i%3), 280)
	}
	first := a.GetResult()
	second := a.GetResult()
	if first.Score != second.Score {
		t.Fatalf("scores differ: %v vs %v", first.Score, second.Score)
	}
	if len(first.Explanations) != len(second.Explanations) {
		t.Fatalf("explanations differ: %v vs %v", first.Explanations, second.Explanations)
	}
	for i := range first.Explanations {
		if first.Explanations[i] != second.Explanations[i] {
			t.Fatalf("explanations differ at %d", i)
		}
	}
}

func TestBotPatternLinearSwipes(t *testing.T) {
	a := newTouchForTest()
	// Perfectly linear, fast, identically timed swipes.
	for i := 0; i < 8; i++ {
		feedSwipe(a, 0, int64(i*1000), 100, 100, 400, 100, 0, 50)
	}
	bot := a.botPatternScore()
	if bot < 0.5 {
		t.Fatalf("bot score = %v, want >= 0.5 for all-linear swipes", bot)
	}
}

func TestBotPatternSuppressedByCurvedGestures(t *testing.T) {
	a := newTouchForTest()
	for i := 0; i < 8; i++ {
		curve := float32(0)
		if i%2 == 0 {
			curve = 40 // half the swipes are clearly curved
		}
		feedSwipe(a, 0, int64(i*1000), 100, 100, 400, 100, curve, 200+int64(i)*40)
	}
	bot := a.botPatternScore()
	if bot >= 0.5 {
		t.Fatalf("bot score = %v, linearity bonus should be suppressed", bot)
	}
}

func TestTouchResetBaselineReentersWarmup(t *testing.T) {
	a := newTouchForTest()
	for i := 0; i < 10; i++ {
		feedSwipe(a, 0, int64(i*1000), 100, 100, 300, 120, float32(i%5), 300)
	}
	if res := a.GetResult(); res.Explanations[0] == ExplainInsufficientData {
		t.Fatalf("agent should be scoring before reset")
	}
	a.ResetBaseline()
	res := a.GetResult()
	if res.Score != 0 || res.Explanations[0] != ExplainInsufficientData {
		t.Fatalf("reset must re-enter warmup, got %+v", res)
	}
	if a.gestures.Len() != 0 {
		t.Fatalf("reset must clear the gesture window")
	}
	st := a.GetState()
	if st.AvgVelocityMean != 0 || st.TotalGestures != 0 || !st.InWarmup {
		t.Fatalf("reset must zero baselines: %+v", st)
	}
}

func TestTouchStateRoundTrip(t *testing.T) {
	a := newTouchForTest()
	for i := 0; i < 10; i++ {
		feedSwipe(a, 0, int64(i*1000), 100, 100, 300, 120, float32(1+i%4), 260+int64(i%3)*40)
	}
	st := a.GetState()
	if st.InWarmup {
		t.Fatalf("agent should have left warmup")
	}

	b := NewTouch(TouchConfig{}, nil)
	b.ApplyState(&st)
	got := b.GetState()
	if got != st {
		t.Fatalf("state round trip mismatch:\n%+v\n%+v", st, got)
	}
	// nil state is accepted and ignored.
	b.ApplyState(nil)
	if b.GetState() != st {
		t.Fatalf("nil state must be a no-op")
	}
}

func TestTouchStopDropsTransientState(t *testing.T) {
	a := newTouchForTest()
	for i := 0; i < 10; i++ {
		feedTap(a, 0, int64(i*1000), 100, 100, 90)
	}
	st := a.GetState()
	a.Stop()
	if a.gestures.Len() != 0 {
		t.Fatalf("stop must clear the gesture window")
	}
	if a.GetState() != st {
		t.Fatalf("stop must keep learned baselines")
	}
	if res := a.GetResult(); res.Explanations[0] != ExplainNotActive {
		t.Fatalf("stopped agent must report not active")
	}
}

func TestTouchFeatureObserver(t *testing.T) {
	a := newTouchForTest()
	var got []gesture.FeatureVector
	a.AddFeatureObserver(func(fv gesture.FeatureVector) { got = append(got, fv) })
	feedSwipe(a, 0, 0, 100, 100, 300, 100, 0, 200)
	if len(got) != 1 {
		t.Fatalf("observer calls = %d, want 1", len(got))
	}
	if got[0].GestureType != "SWIPE" || got[0].DurationMs != 200 {
		t.Fatalf("feature vector = %+v", got[0])
	}
}

func TestTouchInactiveIgnoresEvents(t *testing.T) {
	a := NewTouch(TouchConfig{}, nil)
	feedTap(a, 0, 0, 50, 50, 80)
	if a.totalGestures != 0 {
		t.Fatalf("inactive agent must drop events")
	}
}
