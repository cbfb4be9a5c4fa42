package fusion

// DefaultLidarInitSpeed is the speed seed used when the belief is
// initialised from a position-only lidar measurement. Speed is not
// observable from a single position fix, but seeding it exactly to zero
// makes the first yaw/yaw-rate correction degenerate, so a small positive
// value is used instead. The value is a tuned heuristic carried unchanged
// from filter bring-up.
const DefaultLidarInitSpeed = 0.2

// Config holds the filter tuning parameters. Process noise is application
// tunable; the per-sensor measurement noise values come from the sensor
// specifications and should not be changed.
type Config struct {
	// Process noise standard deviations.
	StdAccel    float64 // longitudinal acceleration (m/s^2)
	StdYawAccel float64 // yaw acceleration (rad/s^2)

	// Lidar measurement noise standard deviations (m).
	StdLidarX float64
	StdLidarY float64

	// Radar measurement noise standard deviations.
	StdRadarRange     float64 // m
	StdRadarBearing   float64 // rad
	StdRadarRangeRate float64 // m/s

	// LidarInitSpeed seeds the speed component when the first measurement
	// is a lidar fix.
	LidarInitSpeed float64
}

// DefaultConfig returns the production filter tuning.
func DefaultConfig() Config {
	return Config{
		StdAccel:          1.0,
		StdYawAccel:       1.0,
		StdLidarX:         0.15,
		StdLidarY:         0.15,
		StdRadarRange:     0.3,
		StdRadarBearing:   0.03,
		StdRadarRangeRate: 0.3,
		LidarInitSpeed:    DefaultLidarInitSpeed,
	}
}
