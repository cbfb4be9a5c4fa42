package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/fusion.report/internal/fusion"
)

func testEstimator(t *testing.T) *fusion.Estimator {
	t.Helper()
	est := fusion.NewEstimator(fusion.DefaultConfig())
	_, err := est.Process(fusion.Measurement{
		Sensor: fusion.SensorLidar, TimestampMicros: 0, Raw: []float64{1, 2},
	})
	require.NoError(t, err)
	_, err = est.Process(fusion.Measurement{
		Sensor: fusion.SensorRadar, TimestampMicros: 100000, Raw: []float64{2.3, 1.1, 0.5},
	})
	require.NoError(t, err)
	return est
}

func TestStateHandler(t *testing.T) {
	t.Parallel()

	t.Run("returns current belief", func(t *testing.T) {
		t.Parallel()
		srv := NewServer(testEstimator(t), nil, "")
		mux := srv.ServeMux()

		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/state", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var got map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.EqualValues(t, 100000, got["timestamp_micros"])
		assert.EqualValues(t, 2, got["processed"])
		cov, ok := got["covariance"].([]any)
		require.True(t, ok)
		assert.Len(t, cov, fusion.StateDim)
	})

	t.Run("404 before initialisation", func(t *testing.T) {
		t.Parallel()
		srv := NewServer(fusion.NewEstimator(fusion.DefaultConfig()), nil, "")
		w := httptest.NewRecorder()
		srv.ServeMux().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/state", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("rejects POST", func(t *testing.T) {
		t.Parallel()
		srv := NewServer(testEstimator(t), nil, "")
		w := httptest.NewRecorder()
		srv.ServeMux().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/state", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})
}

func TestNISHandler(t *testing.T) {
	t.Parallel()

	srv := NewServer(testEstimator(t), nil, "")
	w := httptest.NewRecorder()
	srv.ServeMux().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nis", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var entries []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	// Seeding produces no correction, so only the radar update reports NIS.
	require.Len(t, entries, 1)
	assert.Equal(t, "radar", entries[0]["sensor"])
}

func TestRunSummaryWithoutStore(t *testing.T) {
	t.Parallel()

	srv := NewServer(testEstimator(t), nil, "")
	w := httptest.NewRecorder()
	srv.ServeMux().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/run/summary", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
