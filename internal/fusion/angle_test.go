package fusion

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeAngle(t *testing.T) {
	t.Parallel()

	t.Run("maps into half-open interval", func(t *testing.T) {
		t.Parallel()
		for _, a := range []float64{-100, -7.5, -math.Pi, -1, 0, 1, math.Pi, 7.5, 100, 1e6} {
			got := NormalizeAngle(a)
			assert.Greater(t, got, -math.Pi, "angle %v", a)
			assert.LessOrEqual(t, got, math.Pi, "angle %v", a)
		}
	})

	t.Run("idempotent on normalised angles", func(t *testing.T) {
		t.Parallel()
		for _, a := range []float64{-3.0, -1.5, 0, 0.5, 3.0, math.Pi} {
			assert.Equal(t, a, NormalizeAngle(a))
		}
	})

	t.Run("wraps by whole turns", func(t *testing.T) {
		t.Parallel()
		assert.InDelta(t, 0.5, NormalizeAngle(0.5+2*math.Pi), 1e-12)
		assert.InDelta(t, 0.5, NormalizeAngle(0.5-4*math.Pi), 1e-12)
		assert.InDelta(t, -0.5, NormalizeAngle(-0.5+6*math.Pi), 1e-12)
	})

	t.Run("negative pi maps to positive pi", func(t *testing.T) {
		t.Parallel()
		assert.InDelta(t, math.Pi, NormalizeAngle(-math.Pi), 1e-12)
		assert.InDelta(t, math.Pi, NormalizeAngle(3*math.Pi), 1e-12)
	})
}
