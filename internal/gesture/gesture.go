package gesture

import "math"

// Classification thresholds: anything within this displacement and duration
// of its first contact counts as a tap.
const (
	TapMovementThreshold = 30.0
	TapDurationMs        = 500
)

type Type string

const (
	TypeTap   Type = "TAP"
	TypeSwipe Type = "SWIPE"
	// TypeMultiTouch is reserved for future classification.
	TypeMultiTouch Type = "MULTI_TOUCH"
)

// Point is one raw touch sample. Points exist only while a gesture is being
// assembled; completed gestures carry derived features, never the path.
type Point struct {
	TimestampMs int64
	X           float32
	Y           float32
	Pressure    float32
	Size        float32
}

// Gesture is one complete touch interaction, reduced to its feature vector.
type Gesture struct {
	PointerID int
	StartMs   int64
	EndMs     int64
	Type      Type

	TotalDistance    float64
	AvgVelocity      float64
	PeakVelocity     float64
	AvgPressure      float64
	PeakPressure     float64
	PathDeviation    float64
	DirectionChanges int
	Jitter           float64
}

func (g Gesture) DurationMs() int64 { return g.EndMs - g.StartMs }

// Segmenter groups raw pointer events into completed gestures. Each pointer
// id accumulates its own active path from DOWN to UP.
type Segmenter struct {
	active map[int][]Point
}

func NewSegmenter() *Segmenter {
	return &Segmenter{active: make(map[int][]Point)}
}

// Down opens a new path for the pointer, discarding any unfinished one.
func (s *Segmenter) Down(pointerID int, p Point) {
	s.active[pointerID] = []Point{p}
}

// Move extends the pointer's active path. Moves without a preceding Down are
// dropped.
func (s *Segmenter) Move(pointerID int, p Point) {
	if path, ok := s.active[pointerID]; ok {
		s.active[pointerID] = append(path, p)
	}
}

// Up closes the pointer's path and returns the completed gesture. Paths with
// fewer than two samples are dropped, not an error.
func (s *Segmenter) Up(pointerID int, p Point) (Gesture, bool) {
	path, ok := s.active[pointerID]
	if !ok {
		return Gesture{}, false
	}
	delete(s.active, pointerID)
	path = append(path, p)
	if len(path) < 2 {
		return Gesture{}, false
	}
	return fromPath(pointerID, path), true
}

// ActivePointers reports how many paths are currently open.
func (s *Segmenter) ActivePointers() int { return len(s.active) }

func (s *Segmenter) Clear() {
	s.active = make(map[int][]Point)
}

func classify(path []Point) Type {
	start := path[0]
	end := path[len(path)-1]
	displacement := math.Hypot(float64(end.X-start.X), float64(end.Y-start.Y))
	duration := end.TimestampMs - start.TimestampMs
	if displacement <= TapMovementThreshold && duration <= TapDurationMs {
		return TypeTap
	}
	return TypeSwipe
}

func fromPath(pointerID int, path []Point) Gesture {
	g := Gesture{
		PointerID: pointerID,
		StartMs:   path[0].TimestampMs,
		EndMs:     path[len(path)-1].TimestampMs,
		Type:      classify(path),
	}
	g.TotalDistance = totalDistance(path)
	if d := g.EndMs - g.StartMs; d > 0 {
		g.AvgVelocity = g.TotalDistance / float64(d)
	}
	g.PeakVelocity = peakVelocity(path)
	g.AvgPressure, g.PeakPressure = pressureProfile(path)
	g.PathDeviation = pathDeviation(path)
	g.DirectionChanges = directionChanges(path)
	g.Jitter = jitter(path)
	return g
}

func totalDistance(path []Point) float64 {
	dist := 0.0
	for i := 1; i < len(path); i++ {
		dist += math.Hypot(float64(path[i].X-path[i-1].X), float64(path[i].Y-path[i-1].Y))
	}
	return dist
}

func peakVelocity(path []Point) float64 {
	peak := 0.0
	for i := 1; i < len(path); i++ {
		dt := path[i].TimestampMs - path[i-1].TimestampMs
		if dt <= 0 {
			continue
		}
		seg := math.Hypot(float64(path[i].X-path[i-1].X), float64(path[i].Y-path[i-1].Y))
		if v := seg / float64(dt); v > peak {
			peak = v
		}
	}
	return peak
}

func pressureProfile(path []Point) (avg, peak float64) {
	sum := 0.0
	for _, p := range path {
		pr := float64(p.Pressure)
		sum += pr
		if pr > peak {
			peak = pr
		}
	}
	return sum / float64(len(path)), peak
}

// pathDeviation is the mean perpendicular distance of interior samples from
// the straight start-to-end chord.
func pathDeviation(path []Point) float64 {
	if len(path) < 3 {
		return 0
	}
	start, end := path[0], path[len(path)-1]
	total := 0.0
	for i := 1; i < len(path)-1; i++ {
		total += distanceToLine(start, end, path[i])
	}
	return total / float64(len(path)-2)
}

// directionChanges counts successive segment pairs whose heading differs by
// more than 45 degrees.
func directionChanges(path []Point) int {
	if len(path) < 3 {
		return 0
	}
	changes := 0
	for i := 2; i < len(path); i++ {
		p1, p2, p3 := path[i-2], path[i-1], path[i]
		a1 := math.Atan2(float64(p2.Y-p1.Y), float64(p2.X-p1.X))
		a2 := math.Atan2(float64(p3.Y-p2.Y), float64(p3.X-p2.X))
		if math.Abs(a2-a1) > math.Pi/4 {
			changes++
		}
	}
	return changes
}

// jitter is the standard deviation of the perpendicular chord deviations.
func jitter(path []Point) float64 {
	if len(path) < 3 {
		return 0
	}
	start, end := path[0], path[len(path)-1]
	deviations := make([]float64, 0, len(path)-2)
	for i := 1; i < len(path)-1; i++ {
		deviations = append(deviations, distanceToLine(start, end, path[i]))
	}
	mean := 0.0
	for _, d := range deviations {
		mean += d
	}
	mean /= float64(len(deviations))
	variance := 0.0
	for _, d := range deviations {
		variance += (d - mean) * (d - mean)
	}
	variance /= float64(len(deviations))
	return math.Sqrt(variance)
}

func distanceToLine(a, b, p Point) float64 {
	x1, y1 := float64(a.X), float64(a.Y)
	x2, y2 := float64(b.X), float64(b.Y)
	px, py := float64(p.X), float64(p.Y)
	length := math.Hypot(x2-x1, y2-y1)
	if length == 0 {
		return 0
	}
	return math.Abs((y2-y1)*px-(x2-x1)*py+x2*y1-y2*x1) / length
}
