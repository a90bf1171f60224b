package stats

import "math"

// DefaultAlpha is the smoothing factor shared by all agent baselines.
const DefaultAlpha = 0.1

// Epsilon guards divisions by sqrt(variance) when a variance collapses to
// zero under a constant input stream.
const Epsilon = 1e-6

// Ewma is an exponentially weighted mean/variance accumulator. The variance
// is itself an EWMA of the squared deviation from the current mean, a biased
// but numerically stable online estimator.
type Ewma struct {
	alpha    float64
	mean     float64
	variance float64
}

func NewEwma(alpha float64) *Ewma {
	if alpha <= 0 || alpha > 1 {
		alpha = DefaultAlpha
	}
	return &Ewma{alpha: alpha}
}

// Update folds one observation into the estimator and returns the updated
// mean and variance.
func (e *Ewma) Update(value float64) (mean, variance float64) {
	e.mean = e.alpha*value + (1-e.alpha)*e.mean
	dev := value - e.mean
	e.variance = e.alpha*dev*dev + (1-e.alpha)*e.variance
	return e.mean, e.variance
}

func (e *Ewma) Mean() float64     { return e.mean }
func (e *Ewma) Variance() float64 { return e.variance }

// Set overwrites the accumulator, used when restoring persisted baselines.
func (e *Ewma) Set(mean, variance float64) {
	e.mean = mean
	e.variance = variance
}

func (e *Ewma) Reset() {
	e.mean = 0
	e.variance = 0
}

// ZScore computes |value-mean|/sqrt(variance) with the epsilon guard.
func ZScore(value, mean, variance float64) float64 {
	return math.Abs(value-mean) / math.Max(Epsilon, math.Sqrt(variance))
}

// Mean of a sample, 0 for an empty one.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Variance is the population variance of a sample around mean, 0 for an
// empty one.
func Variance(values []float64, mean float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		d := v - mean
		sum += d * d
	}
	return sum / float64(len(values))
}
