package fusion

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// RangeFloor is the minimum range below which the radar projection is
// considered degenerate. A predicted position this close to the sensor
// origin has no usable line-of-sight direction, so the range-rate falls
// back to zero rather than dividing by a vanishing range.
const RangeFloor = 1e-6

// measurementModel is the capability set shared by both correctors: project
// a state into measurement space, supply the sensor noise covariance, and
// wrap any angular components of a measurement-space residual. The
// corrector skeleton in correct() is identical for both sensors; only
// these three capabilities differ.
type measurementModel interface {
	dim() int
	project(state []float64) []float64
	noise() *mat.SymDense
	normalizeResidual(z *mat.VecDense)
}

// lidarModel is the linear position-only measurement model.
type lidarModel struct {
	cfg Config
}

func (lidarModel) dim() int { return SensorLidar.Dim() }

func (lidarModel) project(state []float64) []float64 {
	return []float64{state[0], state[1]}
}

func (m lidarModel) noise() *mat.SymDense {
	r := mat.NewSymDense(2, nil)
	r.SetSym(0, 0, m.cfg.StdLidarX*m.cfg.StdLidarX)
	r.SetSym(1, 1, m.cfg.StdLidarY*m.cfg.StdLidarY)
	return r
}

// Lidar residuals have no angular component.
func (lidarModel) normalizeResidual(*mat.VecDense) {}

// radarModel is the nonlinear range/bearing/range-rate measurement model.
type radarModel struct {
	cfg Config
}

func (radarModel) dim() int { return SensorRadar.Dim() }

// project maps a CTRV state into radar measurement space. At the sensor
// origin the bearing degenerates to atan2(0, 0) == 0 and the range-rate
// falls back to zero; neither produces NaN.
func (radarModel) project(state []float64) []float64 {
	px, py, v, yaw := state[0], state[1], state[2], state[3]

	rho := math.Hypot(px, py)
	phi := math.Atan2(py, px)

	rhod := 0.0
	if rho > RangeFloor {
		rhod = (px*math.Cos(yaw)*v + py*math.Sin(yaw)*v) / rho
	}
	return []float64{rho, phi, rhod}
}

func (m radarModel) noise() *mat.SymDense {
	r := mat.NewSymDense(3, nil)
	r.SetSym(0, 0, m.cfg.StdRadarRange*m.cfg.StdRadarRange)
	r.SetSym(1, 1, m.cfg.StdRadarBearing*m.cfg.StdRadarBearing)
	r.SetSym(2, 2, m.cfg.StdRadarRangeRate*m.cfg.StdRadarRangeRate)
	return r
}

// The bearing component wraps at +/-pi.
func (radarModel) normalizeResidual(z *mat.VecDense) {
	z.SetVec(1, NormalizeAngle(z.AtVec(1)))
}

// modelFor returns the measurement model matching the sensor type, or nil
// for an unknown type.
func modelFor(s SensorType, cfg Config) measurementModel {
	switch s {
	case SensorLidar:
		return lidarModel{cfg}
	case SensorRadar:
		return radarModel{cfg}
	}
	return nil
}
