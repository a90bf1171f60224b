package gesture

import (
	"math"
	"testing"
)

func TestShortPathDropped(t *testing.T) {
	s := NewSegmenter()
	s.Down(0, Point{TimestampMs: 0, X: 10, Y: 10})
	if _, ok := s.Up(0, Point{TimestampMs: 50, X: 10, Y: 10}); !ok {
		t.Fatalf("two-sample path should complete")
	}
	// Up without a prior Down yields nothing.
	if _, ok := s.Up(0, Point{TimestampMs: 60}); ok {
		t.Fatalf("up without down should not complete a gesture")
	}
}

func TestTapClassification(t *testing.T) {
	s := NewSegmenter()
	s.Down(0, Point{TimestampMs: 0, X: 0, Y: 0, Pressure: 0.5})
	g, ok := s.Up(0, Point{TimestampMs: 100, X: 5, Y: 5, Pressure: 0.4})
	if !ok {
		t.Fatalf("expected completed gesture")
	}
	if g.Type != TypeTap {
		t.Fatalf("type = %s, want TAP", g.Type)
	}
	if g.DurationMs() != 100 {
		t.Fatalf("duration = %d, want 100", g.DurationMs())
	}
}

func TestSwipeClassification(t *testing.T) {
	s := NewSegmenter()
	s.Down(0, Point{TimestampMs: 0, X: 0, Y: 0})
	s.Move(0, Point{TimestampMs: 150, X: 100, Y: 0})
	g, ok := s.Up(0, Point{TimestampMs: 300, X: 200, Y: 0})
	if !ok {
		t.Fatalf("expected completed gesture")
	}
	if g.Type != TypeSwipe {
		t.Fatalf("type = %s, want SWIPE", g.Type)
	}
	if math.Abs(g.TotalDistance-200) > 1e-9 {
		t.Fatalf("distance = %v, want 200", g.TotalDistance)
	}
	// 200 units over 300ms.
	if math.Abs(g.AvgVelocity-200.0/300.0) > 1e-9 {
		t.Fatalf("avg velocity = %v", g.AvgVelocity)
	}
}

func TestLongSlowTapBecomesSwipe(t *testing.T) {
	s := NewSegmenter()
	s.Down(0, Point{TimestampMs: 0, X: 0, Y: 0})
	g, _ := s.Up(0, Point{TimestampMs: 600, X: 2, Y: 2})
	if g.Type != TypeSwipe {
		t.Fatalf("duration over 500ms must classify as SWIPE, got %s", g.Type)
	}
}

func TestPathDeviationStraightLine(t *testing.T) {
	s := NewSegmenter()
	s.Down(0, Point{TimestampMs: 0, X: 0, Y: 0})
	for i := 1; i < 10; i++ {
		s.Move(0, Point{TimestampMs: int64(i * 20), X: float32(i * 20), Y: 0})
	}
	g, _ := s.Up(0, Point{TimestampMs: 200, X: 200, Y: 0})
	if g.PathDeviation != 0 {
		t.Fatalf("straight path deviation = %v, want 0", g.PathDeviation)
	}
	if g.Jitter != 0 {
		t.Fatalf("straight path jitter = %v, want 0", g.Jitter)
	}
	if g.DirectionChanges != 0 {
		t.Fatalf("straight path direction changes = %d, want 0", g.DirectionChanges)
	}
}

func TestPathDeviationArc(t *testing.T) {
	s := NewSegmenter()
	s.Down(0, Point{TimestampMs: 0, X: 0, Y: 0})
	s.Move(0, Point{TimestampMs: 50, X: 50, Y: 30})
	g, _ := s.Up(0, Point{TimestampMs: 100, X: 100, Y: 0})
	// Single interior point 30 units above the chord.
	if math.Abs(g.PathDeviation-30) > 1e-9 {
		t.Fatalf("path deviation = %v, want 30", g.PathDeviation)
	}
	// One interior sample: stddev of a single deviation is zero.
	if g.Jitter != 0 {
		t.Fatalf("jitter = %v, want 0", g.Jitter)
	}
}

func TestDirectionChanges(t *testing.T) {
	s := NewSegmenter()
	s.Down(0, Point{TimestampMs: 0, X: 0, Y: 0})
	s.Move(0, Point{TimestampMs: 20, X: 10, Y: 0})
	s.Move(0, Point{TimestampMs: 40, X: 10, Y: 10}) // 90 degree turn
	g, _ := s.Up(0, Point{TimestampMs: 60, X: 20, Y: 10})
	if g.DirectionChanges != 2 {
		t.Fatalf("direction changes = %d, want 2", g.DirectionChanges)
	}
}

func TestPeakVelocitySkipsZeroDeltas(t *testing.T) {
	s := NewSegmenter()
	s.Down(0, Point{TimestampMs: 0, X: 0, Y: 0})
	s.Move(0, Point{TimestampMs: 0, X: 50, Y: 0}) // same timestamp
	g, _ := s.Up(0, Point{TimestampMs: 100, X: 100, Y: 0})
	if math.Abs(g.PeakVelocity-0.5) > 1e-9 {
		t.Fatalf("peak velocity = %v, want 0.5", g.PeakVelocity)
	}
}

func TestMultiPointerPathsIndependent(t *testing.T) {
	s := NewSegmenter()
	s.Down(0, Point{TimestampMs: 0, X: 0, Y: 0})
	s.Down(1, Point{TimestampMs: 0, X: 500, Y: 500})
	if s.ActivePointers() != 2 {
		t.Fatalf("active pointers = %d, want 2", s.ActivePointers())
	}
	g0, ok := s.Up(0, Point{TimestampMs: 80, X: 3, Y: 3})
	if !ok || g0.Type != TypeTap {
		t.Fatalf("pointer 0 should finish a tap")
	}
	if s.ActivePointers() != 1 {
		t.Fatalf("pointer 1 must stay active")
	}
	g1, ok := s.Up(1, Point{TimestampMs: 400, X: 700, Y: 500})
	if !ok || g1.Type != TypeSwipe {
		t.Fatalf("pointer 1 should finish a swipe")
	}
}

func TestFeatureVectorRoundTrip(t *testing.T) {
	s := NewSegmenter()
	s.Down(0, Point{TimestampMs: 0, X: 0, Y: 0, Pressure: 0.4})
	s.Move(0, Point{TimestampMs: 50, X: 60, Y: 5, Pressure: 0.6})
	g, _ := s.Up(0, Point{TimestampMs: 120, X: 150, Y: 0, Pressure: 0.5})
	fv := Features(g)
	if fv.GestureType != "SWIPE" || fv.DurationMs != 120 {
		t.Fatalf("unexpected feature vector: %+v", fv)
	}
	if len(fv.CSVRow()) != len(CSVHeader()) {
		t.Fatalf("csv row/header length mismatch")
	}
	if fv.Named()["peak_pressure"].(float64) != 0.6 {
		t.Fatalf("named map peak pressure = %v", fv.Named()["peak_pressure"])
	}
}
