package fusion

import "math"

// Chi-square 95th percentile bounds for the NIS statistic. A well tuned
// filter should see roughly 5% of updates above the bound for its
// measurement dimension.
const (
	ChiSquare95Dof2 = 5.991 // lidar (2 degrees of freedom)
	ChiSquare95Dof3 = 7.815 // radar (3 degrees of freedom)
)

// RMSE accumulates the root-mean-square error of the estimate against
// ground truth in [px, py, vx, vy] space.
type RMSE struct {
	sumSq [4]float64
	n     int
}

// Add accumulates one estimate/truth pair. Truth must be [px, py, vx, vy];
// short vectors are ignored.
func (r *RMSE) Add(b Belief, truth []float64) {
	if len(truth) < 4 {
		return
	}
	est := b.PositionVelocity()
	for i := 0; i < 4; i++ {
		d := est[i] - truth[i]
		r.sumSq[i] += d * d
	}
	r.n++
}

// Count returns the number of accumulated samples.
func (r *RMSE) Count() int { return r.n }

// Value returns the RMSE per component. Zero samples yields zeros.
func (r *RMSE) Value() [4]float64 {
	var out [4]float64
	if r.n == 0 {
		return out
	}
	for i := 0; i < 4; i++ {
		out[i] = math.Sqrt(r.sumSq[i] / float64(r.n))
	}
	return out
}

// NISSummary tracks how often the normalised innovation squared exceeds the
// chi-square consistency bound for one sensor.
type NISSummary struct {
	Bound float64
	count int
	above int
}

// NewNISSummary returns a summary using the 95% bound for the given
// measurement dimension.
func NewNISSummary(dim int) *NISSummary {
	bound := ChiSquare95Dof2
	if dim == 3 {
		bound = ChiSquare95Dof3
	}
	return &NISSummary{Bound: bound}
}

// Add records one NIS sample.
func (s *NISSummary) Add(nis float64) {
	s.count++
	if nis > s.Bound {
		s.above++
	}
}

// Count returns the number of recorded samples.
func (s *NISSummary) Count() int { return s.count }

// ExceedanceFraction returns the fraction of samples above the bound.
func (s *NISSummary) ExceedanceFraction() float64 {
	if s.count == 0 {
		return 0
	}
	return float64(s.above) / float64(s.count)
}
