package replay

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/fusion.report/internal/fusion"
	"github.com/banshee-data/fusion.report/internal/fusiondb"
)

// syntheticDataset builds a noise-free alternating lidar/radar stream for
// an object moving straight along +x at the given speed, with ground-truth
// columns attached.
func syntheticDataset(steps int, speed float64) string {
	var sb strings.Builder
	sb.WriteString("# synthetic straight-line pass\n")
	for i := 0; i < steps; i++ {
		ts := int64(i) * 100000
		tSec := float64(ts) / 1e6
		px := speed * tSec
		gt := fmt.Sprintf("%f %f %f %f", px, 0.0, speed, 0.0)
		if i%2 == 0 {
			sb.WriteString(fmt.Sprintf("L %f %f %d %s\n", px, 0.0, ts, gt))
		} else {
			// Straight down the +x axis: bearing 0, range-rate = speed.
			sb.WriteString(fmt.Sprintf("R %f %f %f %d %s\n", px, 0.0, speed, ts, gt))
		}
	}
	return sb.String()
}

func TestRunReplaysDataset(t *testing.T) {
	t.Parallel()

	res, err := Run(strings.NewReader(syntheticDataset(30, 4.0)), Options{
		Config: fusion.DefaultConfig(),
	})
	require.NoError(t, err)

	assert.Equal(t, 30, res.Processed)
	assert.Zero(t, res.Skipped)
	assert.Len(t, res.Track, 30)
	assert.Equal(t, 14, res.LidarNIS.Count())
	assert.Equal(t, 15, res.RadarNIS.Count())
	assert.Equal(t, 30, res.RMSECount)

	// The estimate locks on to the noise-free trajectory.
	assert.InDelta(t, 4.0, res.Final.Speed(), 0.5)
	for _, v := range res.RMSE {
		assert.False(t, math.IsNaN(v))
		assert.Less(t, v, 2.0)
	}
}

func TestRunSkipsBadLines(t *testing.T) {
	t.Parallel()

	data := "L 0.0 0.0 0\n" +
		"garbage line\n" +
		"L nope 0.0 100000\n" +
		"L 0.5 0.0 100000\n" +
		"L 0.9 0.0 50000\n" + // out of order: rejected, belief preserved
		"L 1.0 0.0 200000\n"

	res, err := Run(strings.NewReader(data), Options{Config: fusion.DefaultConfig()})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Processed)
	assert.Equal(t, 3, res.Skipped)
}

func TestRunRecordsToStore(t *testing.T) {
	t.Parallel()

	db, err := fusiondb.NewDB(filepath.Join(t.TempDir(), "replay_test.db"))
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.MigrateUp("../../migrations"))

	res, err := Run(strings.NewReader(syntheticDataset(10, 2.0)), Options{
		Config: fusion.DefaultConfig(),
		Store:  db,
		Source: "test-dataset",
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.RunID)

	rows, err := db.EstimatesForRun(res.RunID)
	require.NoError(t, err)
	assert.Len(t, rows, 10)

	summary, err := db.Summary(res.RunID)
	require.NoError(t, err)
	assert.Equal(t, 10, summary.EstimateCount)
}

func TestRunEmptyStream(t *testing.T) {
	t.Parallel()

	res, err := Run(strings.NewReader("\n# only comments\n"), Options{Config: fusion.DefaultConfig()})
	require.NoError(t, err)
	assert.Zero(t, res.Processed)
	assert.False(t, res.Final.Initialized())
}
