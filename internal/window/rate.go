package window

// Rate is a rolling window of event timestamps (epoch ms) over a fixed time
// horizon, used for launch/switch rate tracking. Eviction advances a head
// index and compacts lazily, so Add and Evict stay O(1) amortized.
type Rate struct {
	horizonMs int64
	ts        []int64
	head      int
}

func NewRate(horizonMs int64) *Rate {
	if horizonMs <= 0 {
		horizonMs = 1
	}
	return &Rate{horizonMs: horizonMs, ts: make([]int64, 0, 64)}
}

func (r *Rate) Add(tsMs int64) {
	r.ts = append(r.ts, tsMs)
}

// Evict drops timestamps older than the horizon relative to nowMs.
func (r *Rate) Evict(nowMs int64) {
	cutoff := nowMs - r.horizonMs
	for r.head < len(r.ts) && r.ts[r.head] < cutoff {
		r.head++
	}
	if r.head > 0 && r.head*2 >= len(r.ts) {
		n := copy(r.ts, r.ts[r.head:])
		r.ts = r.ts[:n]
		r.head = 0
	}
}

// Count returns the number of timestamps still inside the horizon.
func (r *Rate) Count(nowMs int64) int {
	r.Evict(nowMs)
	return len(r.ts) - r.head
}

// PerMinute is the in-horizon event count divided by the horizon length in
// minutes.
func (r *Rate) PerMinute(nowMs int64) float64 {
	minutes := float64(r.horizonMs) / 60000.0
	return float64(r.Count(nowMs)) / minutes
}

func (r *Rate) Clear() {
	r.ts = r.ts[:0]
	r.head = 0
}
