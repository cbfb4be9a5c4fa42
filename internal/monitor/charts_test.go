package monitor

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/fusion.report/internal/fusion"
)

func seededEstimator(t *testing.T) *fusion.Estimator {
	t.Helper()
	est := fusion.NewEstimator(fusion.DefaultConfig())
	steps := []fusion.Measurement{
		{Sensor: fusion.SensorLidar, TimestampMicros: 0, Raw: []float64{0.5, 0.1}},
		{Sensor: fusion.SensorRadar, TimestampMicros: 100000, Raw: []float64{1.0, 0.1, 0.5}},
		{Sensor: fusion.SensorLidar, TimestampMicros: 200000, Raw: []float64{1.4, 0.3}},
	}
	for _, m := range steps {
		_, err := est.Process(m)
		require.NoError(t, err)
	}
	return est
}

func TestTrackChartHandler(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	NewWebServer(seededEstimator(t)).AttachDebugRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/track-chart", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "Estimated Trajectory")
}

func TestNISChartHandler(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	NewWebServer(seededEstimator(t)).AttachDebugRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/nis-chart", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Normalised Innovation Squared")
}

func TestChartsEmptyEstimator(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	NewWebServer(fusion.NewEstimator(fusion.DefaultConfig())).AttachDebugRoutes(mux)

	for _, path := range []string{"/debug/track-chart", "/debug/nis-chart", "/debug/track.png"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestTrajectoryPNG(t *testing.T) {
	t.Parallel()

	png, err := TrajectoryPNG(seededEstimator(t).History())
	require.NoError(t, err)
	require.NotEmpty(t, png)
	// PNG magic bytes.
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, png[:4])
}

func TestTrajectoryPNGEmpty(t *testing.T) {
	t.Parallel()

	_, err := TrajectoryPNG(nil)
	assert.Error(t, err)
}
