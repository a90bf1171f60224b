package gesture

import "strconv"

// FeatureVector is the export shape of a completed gesture, consumed by
// observers (CSV export, external model scoring). No coordinates.
type FeatureVector struct {
	TimestampMs      int64   `json:"timestamp_ms"`
	GestureType      string  `json:"gesture_type"`
	DurationMs       int64   `json:"duration_ms"`
	TotalDistance    float64 `json:"total_distance"`
	AvgVelocity      float64 `json:"avg_velocity"`
	PeakVelocity     float64 `json:"peak_velocity"`
	AvgPressure      float64 `json:"avg_pressure"`
	PeakPressure     float64 `json:"peak_pressure"`
	PathDeviation    float64 `json:"path_deviation"`
	DirectionChanges int     `json:"direction_changes"`
	Jitter           float64 `json:"jitter"`
}

func Features(g Gesture) FeatureVector {
	return FeatureVector{
		TimestampMs:      g.EndMs,
		GestureType:      string(g.Type),
		DurationMs:       g.DurationMs(),
		TotalDistance:    g.TotalDistance,
		AvgVelocity:      g.AvgVelocity,
		PeakVelocity:     g.PeakVelocity,
		AvgPressure:      g.AvgPressure,
		PeakPressure:     g.PeakPressure,
		PathDeviation:    g.PathDeviation,
		DirectionChanges: g.DirectionChanges,
		Jitter:           g.Jitter,
	}
}

// Named returns the vector as a feature map for the external model bridge.
func (f FeatureVector) Named() map[string]any {
	return map[string]any{
		"duration_ms":       f.DurationMs,
		"total_distance":    f.TotalDistance,
		"avg_velocity":      f.AvgVelocity,
		"peak_velocity":     f.PeakVelocity,
		"avg_pressure":      f.AvgPressure,
		"peak_pressure":     f.PeakPressure,
		"path_deviation":    f.PathDeviation,
		"direction_changes": f.DirectionChanges,
		"jitter":            f.Jitter,
	}
}

func CSVHeader() []string {
	return []string{
		"timestamp", "gesture_type", "duration_ms", "total_distance",
		"avg_velocity", "peak_velocity", "avg_pressure", "peak_pressure",
		"path_deviation", "direction_changes", "jitter",
	}
}

func (f FeatureVector) CSVRow() []string {
	return []string{
		strconv.FormatInt(f.TimestampMs, 10),
		f.GestureType,
		strconv.FormatInt(f.DurationMs, 10),
		formatFloat(f.TotalDistance),
		formatFloat(f.AvgVelocity),
		formatFloat(f.PeakVelocity),
		formatFloat(f.AvgPressure),
		formatFloat(f.PeakPressure),
		formatFloat(f.PathDeviation),
		strconv.Itoa(f.DirectionChanges),
		formatFloat(f.Jitter),
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
