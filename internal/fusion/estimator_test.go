package fusion

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimatorProcess(t *testing.T) {
	t.Parallel()

	e := NewEstimator(DefaultConfig())

	_, ok := e.Snapshot()
	assert.False(t, ok)

	up, err := e.Process(Measurement{Sensor: SensorLidar, TimestampMicros: 0, Raw: []float64{1, 2}})
	require.NoError(t, err)
	assert.True(t, up.Seeded)

	b, ok := e.Snapshot()
	require.True(t, ok)
	x, y := b.Position()
	assert.Equal(t, 1.0, x)
	assert.Equal(t, 2.0, y)

	up, err = e.Process(Measurement{Sensor: SensorLidar, TimestampMicros: 100000, Raw: []float64{1.5, 2}})
	require.NoError(t, err)
	assert.False(t, up.Seeded)
	assert.Greater(t, up.NIS, 0.0)

	assert.Equal(t, 2, e.ProcessedCount())
	assert.Len(t, e.History(), 2)
	assert.Len(t, e.RecentUpdates(), 1) // seeding produces no correction
}

func TestEstimatorPreservesBeliefOnError(t *testing.T) {
	t.Parallel()

	e := NewEstimator(DefaultConfig())
	_, err := e.Process(Measurement{Sensor: SensorLidar, TimestampMicros: 1000, Raw: []float64{1, 2}})
	require.NoError(t, err)

	_, err = e.Process(Measurement{Sensor: SensorLidar, TimestampMicros: 500, Raw: []float64{9, 9}})
	assert.ErrorIs(t, err, ErrOutOfOrder)

	b, ok := e.Snapshot()
	require.True(t, ok)
	x, _ := b.Position()
	assert.Equal(t, 1.0, x)
	assert.Equal(t, 1, e.ProcessedCount())
}

func TestEstimatorHistoryIsBounded(t *testing.T) {
	t.Parallel()

	e := NewEstimator(DefaultConfig())
	for i := 0; i <= maxHistoryLength+10; i++ {
		_, err := e.Process(Measurement{
			Sensor:          SensorLidar,
			TimestampMicros: int64(i) * 50000,
			Raw:             []float64{float64(i) * 0.1, 0},
		})
		require.NoError(t, err)
	}
	assert.Len(t, e.History(), maxHistoryLength)
	assert.Len(t, e.RecentUpdates(), maxHistoryLength)
}

func TestEstimatorConcurrentReaders(t *testing.T) {
	t.Parallel()

	e := NewEstimator(DefaultConfig())
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			_, _ = e.Process(Measurement{
				Sensor:          SensorLidar,
				TimestampMicros: int64(i) * 10000,
				Raw:             []float64{float64(i) * 0.05, 0},
			})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			e.Snapshot()
			e.History()
			e.RecentUpdates()
		}
	}()
	wg.Wait()

	assert.Equal(t, 100, e.ProcessedCount())
}
