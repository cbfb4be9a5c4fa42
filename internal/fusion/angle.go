package fusion

import "math"

// NormalizeAngle reduces an angle into (-pi, pi] with a single modulo
// reduction. Heading and bearing differences must be wrapped before they
// enter any covariance accumulation; an unwrapped 2*pi jump would inflate
// the covariance and drag the estimate off the track.
func NormalizeAngle(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a > math.Pi {
		a -= 2 * math.Pi
	} else if a <= -math.Pi {
		a += 2 * math.Pi
	}
	return a
}
