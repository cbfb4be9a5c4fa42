// Package fusion implements an Unscented Kalman Filter over the CTRV
// (constant turn rate and velocity) motion model, fusing lidar position
// fixes with radar range/bearing/range-rate returns into a single object
// state estimate [px, py, v, yaw, yawd].
package fusion

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	// StateDim is the CTRV state dimension: [px, py, v, yaw, yawd].
	StateDim = 5
	// augDim extends the state with the two process-noise inputs
	// (longitudinal acceleration, yaw acceleration).
	augDim = StateDim + 2
	// sigmaCount is the number of sigma points for the augmented state.
	sigmaCount = 2*augDim + 1

	// yawRateFloor is the yaw-rate magnitude below which the CTRV arc
	// equations degenerate (division by yawd) and the straight-line form
	// is used instead.
	yawRateFloor = 1e-3

	// microsPerSecond converts measurement timestamps to elapsed seconds.
	microsPerSecond = 1e6
)

// Sentinel errors surfaced by Step. In every case the returned belief is
// the unmodified input: a failed measurement never corrupts the estimate.
var (
	ErrOutOfOrder          = errors.New("measurement timestamp precedes last processed measurement")
	ErrNotPositiveDefinite = errors.New("augmented covariance is not positive definite")
	ErrSingularInnovation  = errors.New("innovation covariance is singular")
)

// sigmaWeights holds the fixed weights for the augmented sigma point set.
// lambda = 3 - augDim, so the centre weight is negative; the weights still
// sum to exactly 1.
var sigmaWeights = func() [sigmaCount]float64 {
	lambda := float64(3 - augDim)
	var w [sigmaCount]float64
	w[0] = lambda / (lambda + augDim)
	for i := 1; i < sigmaCount; i++ {
		w[i] = 0.5 / (lambda + augDim)
	}
	return w
}()

// Belief is the filter's Gaussian state estimate: mean, covariance, and the
// timestamp of the measurement that produced it. Beliefs are values: Step
// never mutates its input and returns a freshly allocated successor, so a
// caller can retain or compare beliefs across updates freely.
type Belief struct {
	mean            *mat.VecDense
	cov             *mat.SymDense
	timestampMicros int64
	initialized     bool
}

// Initialized reports whether the belief has been seeded by a first
// measurement.
func (b Belief) Initialized() bool { return b.initialized }

// TimestampMicros returns the timestamp of the last measurement folded into
// the belief.
func (b Belief) TimestampMicros() int64 { return b.timestampMicros }

// Mean returns a copy of the state mean [px, py, v, yaw, yawd].
func (b Belief) Mean() []float64 {
	if b.mean == nil {
		return nil
	}
	out := make([]float64, StateDim)
	copy(out, b.mean.RawVector().Data)
	return out
}

// Covariance returns a copy of the state covariance.
func (b Belief) Covariance() *mat.SymDense {
	if b.cov == nil {
		return nil
	}
	out := mat.NewSymDense(StateDim, nil)
	out.CopySym(b.cov)
	return out
}

// Position returns the estimated object position in metres.
func (b Belief) Position() (x, y float64) {
	if b.mean == nil {
		return 0, 0
	}
	return b.mean.AtVec(0), b.mean.AtVec(1)
}

// Speed returns the estimated speed magnitude in m/s.
func (b Belief) Speed() float64 {
	if b.mean == nil {
		return 0
	}
	return b.mean.AtVec(2)
}

// Heading returns the estimated heading in radians.
func (b Belief) Heading() float64 {
	if b.mean == nil {
		return 0
	}
	return b.mean.AtVec(3)
}

// YawRate returns the estimated yaw rate in rad/s.
func (b Belief) YawRate() float64 {
	if b.mean == nil {
		return 0
	}
	return b.mean.AtVec(4)
}

// PositionVelocity returns the estimate in [px, py, vx, vy] space, the
// frame used by the ground-truth reference data.
func (b Belief) PositionVelocity() [4]float64 {
	if b.mean == nil {
		return [4]float64{}
	}
	v := b.mean.AtVec(2)
	yaw := b.mean.AtVec(3)
	return [4]float64{
		b.mean.AtVec(0),
		b.mean.AtVec(1),
		v * math.Cos(yaw),
		v * math.Sin(yaw),
	}
}

// Update reports the outcome of processing one measurement.
type Update struct {
	Sensor    SensorType
	DtSeconds float64

	// NIS is the normalised innovation squared, a chi-square distributed
	// consistency statistic. It is reported for external monitoring only;
	// the filter takes no action on it.
	NIS float64

	// Residual is the innovation (actual minus predicted measurement),
	// angle components already wrapped.
	Residual []float64

	// Seeded is true when this measurement initialised the belief, in
	// which case no prediction or correction ran and NIS is zero.
	Seeded bool
}

// Filter fuses measurements into a Belief. A Filter carries only immutable
// configuration and is safe for concurrent use; all mutable state lives in
// the Belief values threaded through Step.
type Filter struct {
	cfg Config
}

// NewFilter returns a filter with the given tuning.
func NewFilter(cfg Config) *Filter {
	return &Filter{cfg: cfg}
}

// Config returns the filter tuning.
func (f *Filter) Config() Config { return f.cfg }

// Step folds one measurement into the belief and returns the successor
// belief. The first measurement seeds the belief; every later measurement
// runs a prediction over the elapsed time followed by the correction
// matching the sensor type. Prediction and correction are deliberately not
// exposed separately: their ordering is part of the contract.
func (f *Filter) Step(b Belief, m Measurement) (Belief, Update, error) {
	if err := m.Validate(); err != nil {
		return b, Update{}, err
	}

	if !b.initialized {
		return f.seed(m), Update{Sensor: m.Sensor, Seeded: true}, nil
	}

	if m.TimestampMicros < b.timestampMicros {
		return b, Update{}, fmt.Errorf("%w: %d < %d", ErrOutOfOrder, m.TimestampMicros, b.timestampMicros)
	}
	dt := float64(m.TimestampMicros-b.timestampMicros) / microsPerSecond

	pred, xsig, err := f.predict(b, dt)
	if err != nil {
		return b, Update{}, err
	}

	model := modelFor(m.Sensor, f.cfg)
	next, up, err := f.correct(pred, xsig, model, m)
	if err != nil {
		return b, Update{}, err
	}
	up.DtSeconds = dt
	next.timestampMicros = m.TimestampMicros
	next.initialized = true
	return next, up, nil
}

// seed builds the initial belief from the first measurement. Directly
// observed components get tight variances; unobserved ones get unit (or
// bearing-derived) uncertainty.
func (f *Filter) seed(m Measurement) Belief {
	x := mat.NewVecDense(StateDim, nil)
	p := mat.NewSymDense(StateDim, nil)

	switch m.Sensor {
	case SensorLidar:
		x.SetVec(0, m.Raw[0])
		x.SetVec(1, m.Raw[1])
		x.SetVec(2, f.cfg.LidarInitSpeed)
		for i, v := range []float64{0.01, 0.01, 1, 1, 1} {
			p.SetSym(i, i, v)
		}
	case SensorRadar:
		rho, phi, rhod := m.Raw[0], m.Raw[1], m.Raw[2]
		x.SetVec(0, rho*math.Cos(phi))
		x.SetVec(1, rho*math.Sin(phi))
		x.SetVec(2, rhod)
		x.SetVec(3, phi)
		for i, v := range []float64{0.01, 0.01, 0.01, 0.09, 0.09} {
			p.SetSym(i, i, v)
		}
	}

	return Belief{
		mean:            x,
		cov:             p,
		timestampMicros: m.TimestampMicros,
		initialized:     true,
	}
}

// sigmaPoints derives the augmented sigma point set from the belief. The
// returned matrix is augDim x sigmaCount, one point per column: the
// augmented mean, then mean +/- sqrt(lambda+augDim) times each column of
// the lower Cholesky factor of the augmented covariance.
func (f *Filter) sigmaPoints(b Belief) (*mat.Dense, error) {
	aug := mat.NewSymDense(augDim, nil)
	for i := 0; i < StateDim; i++ {
		for j := i; j < StateDim; j++ {
			aug.SetSym(i, j, b.cov.At(i, j))
		}
	}
	aug.SetSym(StateDim, StateDim, f.cfg.StdAccel*f.cfg.StdAccel)
	aug.SetSym(StateDim+1, StateDim+1, f.cfg.StdYawAccel*f.cfg.StdYawAccel)

	var chol mat.Cholesky
	if ok := chol.Factorize(aug); !ok {
		return nil, ErrNotPositiveDefinite
	}
	l := mat.NewTriDense(augDim, mat.Lower, nil)
	chol.LTo(l)

	lambda := float64(3 - augDim)
	c := math.Sqrt(lambda + augDim)

	xsig := mat.NewDense(augDim, sigmaCount, nil)
	for r := 0; r < augDim; r++ {
		var mr float64
		if r < StateDim {
			mr = b.mean.AtVec(r)
		}
		xsig.Set(r, 0, mr)
		for i := 0; i < augDim; i++ {
			xsig.Set(r, 1+i, mr+c*l.At(r, i))
			xsig.Set(r, 1+augDim+i, mr-c*l.At(r, i))
		}
	}
	return xsig, nil
}

// ctrvPropagate applies the CTRV motion model to one augmented sigma point
// over dt seconds, injecting the point's process-noise components
// additively. Below yawRateFloor the straight-line form replaces the arc
// form to avoid dividing by the yaw rate.
func ctrvPropagate(p []float64, dt float64) [StateDim]float64 {
	px, py, v, yaw, yawd := p[0], p[1], p[2], p[3], p[4]
	nuA, nuYawdd := p[5], p[6]

	var pxp, pyp float64
	if math.Abs(yawd) > yawRateFloor {
		pxp = px + v/yawd*(math.Sin(yaw+yawd*dt)-math.Sin(yaw))
		pyp = py + v/yawd*(math.Cos(yaw)-math.Cos(yaw+yawd*dt))
	} else {
		pxp = px + v*dt*math.Cos(yaw)
		pyp = py + v*dt*math.Sin(yaw)
	}
	vp := v
	yawp := yaw + yawd*dt
	yawdp := yawd

	halfDt2 := 0.5 * dt * dt
	pxp += halfDt2 * nuA * math.Cos(yaw)
	pyp += halfDt2 * nuA * math.Sin(yaw)
	vp += nuA * dt
	yawp += halfDt2 * nuYawdd
	yawdp += nuYawdd * dt

	return [StateDim]float64{pxp, pyp, vp, yawp, yawdp}
}

// predict propagates the belief over dt seconds. It returns the predicted
// belief together with the propagated sigma points (StateDim x sigmaCount),
// which the corrector reuses for its measurement-space statistics.
func (f *Filter) predict(b Belief, dt float64) (Belief, *mat.Dense, error) {
	xsigAug, err := f.sigmaPoints(b)
	if err != nil {
		return Belief{}, nil, err
	}

	xsigPred := mat.NewDense(StateDim, sigmaCount, nil)
	col := make([]float64, augDim)
	for i := 0; i < sigmaCount; i++ {
		mat.Col(col, i, xsigAug)
		next := ctrvPropagate(col, dt)
		for r := 0; r < StateDim; r++ {
			xsigPred.Set(r, i, next[r])
		}
	}

	mean := mat.NewVecDense(StateDim, nil)
	for i := 0; i < sigmaCount; i++ {
		w := sigmaWeights[i]
		for r := 0; r < StateDim; r++ {
			mean.SetVec(r, mean.AtVec(r)+w*xsigPred.At(r, i))
		}
	}

	cov := mat.NewSymDense(StateDim, nil)
	diff := mat.NewVecDense(StateDim, nil)
	for i := 0; i < sigmaCount; i++ {
		for r := 0; r < StateDim; r++ {
			diff.SetVec(r, xsigPred.At(r, i)-mean.AtVec(r))
		}
		diff.SetVec(3, NormalizeAngle(diff.AtVec(3)))
		cov.SymRankOne(cov, sigmaWeights[i], diff)
	}

	return Belief{mean: mean, cov: cov, initialized: true}, xsigPred, nil
}

// correct folds the actual measurement into the predicted belief using the
// sensor's measurement model. The skeleton is sensor independent: project
// the predicted sigma points, recover measurement mean and covariance, add
// the sensor noise, form the cross covariance and Kalman gain, and update.
func (f *Filter) correct(pred Belief, xsigPred *mat.Dense, model measurementModel, m Measurement) (Belief, Update, error) {
	nz := model.dim()

	zsig := mat.NewDense(nz, sigmaCount, nil)
	state := make([]float64, StateDim)
	for i := 0; i < sigmaCount; i++ {
		mat.Col(state, i, xsigPred)
		z := model.project(state)
		for r := 0; r < nz; r++ {
			zsig.Set(r, i, z[r])
		}
	}

	zpred := mat.NewVecDense(nz, nil)
	for i := 0; i < sigmaCount; i++ {
		w := sigmaWeights[i]
		for r := 0; r < nz; r++ {
			zpred.SetVec(r, zpred.AtVec(r)+w*zsig.At(r, i))
		}
	}

	s := mat.NewSymDense(nz, nil)
	tc := mat.NewDense(StateDim, nz, nil)
	zdiff := mat.NewVecDense(nz, nil)
	xdiff := mat.NewVecDense(StateDim, nil)
	for i := 0; i < sigmaCount; i++ {
		for r := 0; r < nz; r++ {
			zdiff.SetVec(r, zsig.At(r, i)-zpred.AtVec(r))
		}
		model.normalizeResidual(zdiff)
		s.SymRankOne(s, sigmaWeights[i], zdiff)

		for r := 0; r < StateDim; r++ {
			xdiff.SetVec(r, xsigPred.At(r, i)-pred.mean.AtVec(r))
		}
		xdiff.SetVec(3, NormalizeAngle(xdiff.AtVec(3)))
		tc.RankOne(tc, sigmaWeights[i], xdiff, zdiff)
	}
	s.AddSym(s, model.noise())

	var sInv mat.Dense
	if err := sInv.Inverse(s); err != nil {
		return Belief{}, Update{}, fmt.Errorf("%w: %v", ErrSingularInnovation, err)
	}

	var gain mat.Dense
	gain.Mul(tc, &sInv)

	resid := mat.NewVecDense(nz, nil)
	for r := 0; r < nz; r++ {
		resid.SetVec(r, m.Raw[r]-zpred.AtVec(r))
	}
	model.normalizeResidual(resid)

	var shift mat.VecDense
	shift.MulVec(&gain, resid)
	mean := mat.NewVecDense(StateDim, nil)
	mean.AddVec(pred.mean, &shift)

	// P = P - K S K^T, re-symmetrised against floating point drift so the
	// covariance invariant survives long runs.
	var ks, ksk mat.Dense
	ks.Mul(&gain, s)
	ksk.Mul(&ks, gain.T())
	cov := mat.NewSymDense(StateDim, nil)
	for i := 0; i < StateDim; i++ {
		for j := i; j < StateDim; j++ {
			d := 0.5 * (ksk.At(i, j) + ksk.At(j, i))
			cov.SetSym(i, j, pred.cov.At(i, j)-d)
		}
	}

	var sInvResid mat.VecDense
	sInvResid.MulVec(&sInv, resid)
	nis := mat.Dot(resid, &sInvResid)

	residOut := make([]float64, nz)
	copy(residOut, resid.RawVector().Data)

	return Belief{mean: mean, cov: cov, initialized: true}, Update{
		Sensor:   m.Sensor,
		NIS:      nis,
		Residual: residOut,
	}, nil
}
