// Package replay drives the fusion filter from a recorded measurement
// stream and evaluates the result against the embedded ground truth.
package replay

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/banshee-data/fusion.report/internal/fusion"
	"github.com/banshee-data/fusion.report/internal/fusiondb"
)

// Options configures a replay run.
type Options struct {
	Config fusion.Config

	// Store, when non-nil, receives a run row plus one estimate row per
	// processed measurement.
	Store *fusiondb.DB

	// Source labels the run in the store (e.g. the dataset path).
	Source string
}

// Result aggregates one replay.
type Result struct {
	RunID     string
	Processed int
	Skipped   int

	// RMSE against ground truth in [px, py, vx, vy]; only meaningful when
	// the dataset carries ground-truth columns.
	RMSE      [4]float64
	RMSECount int

	LidarNIS *fusion.NISSummary
	RadarNIS *fusion.NISSummary

	// Track is the estimated trajectory, one point per measurement.
	Track []fusion.TrackPoint

	Final fusion.Belief
}

// Run replays the measurement stream through a fresh estimator. Lines that
// fail to parse or process are logged and skipped; the replay keeps the
// last good estimate, matching the live service's behaviour.
func Run(r io.Reader, opts Options) (*Result, error) {
	est := fusion.NewEstimator(opts.Config)

	res := &Result{
		LidarNIS: fusion.NewNISSummary(fusion.SensorLidar.Dim()),
		RadarNIS: fusion.NewNISSummary(fusion.SensorRadar.Dim()),
	}

	if opts.Store != nil {
		runID, err := opts.Store.CreateRun(opts.Source, "replay")
		if err != nil {
			return nil, fmt.Errorf("failed to create run: %w", err)
		}
		res.RunID = runID
	}

	var rmse fusion.RMSE

	scan := bufio.NewScanner(r)
	for scan.Scan() {
		line := strings.TrimSpace(scan.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		m, err := fusion.ParseLine(line)
		if err != nil {
			log.Printf("skipping measurement: %v", err)
			res.Skipped++
			continue
		}

		up, err := est.Process(m)
		if err != nil {
			log.Printf("skipping measurement: %v", err)
			res.Skipped++
			continue
		}
		res.Processed++

		b, _ := est.Snapshot()
		x, y := b.Position()
		res.Track = append(res.Track, fusion.TrackPoint{
			X: x, Y: y, TimestampMicros: b.TimestampMicros(),
		})

		if !up.Seeded {
			switch up.Sensor {
			case fusion.SensorLidar:
				res.LidarNIS.Add(up.NIS)
			case fusion.SensorRadar:
				res.RadarNIS.Add(up.NIS)
			}
		}
		rmse.Add(b, m.GroundTruth)

		if opts.Store != nil {
			err := opts.Store.RecordEstimate(fusiondb.Estimate{
				RunID:           res.RunID,
				TimestampMicros: m.TimestampMicros,
				Sensor:          string(m.Sensor),
				Px:              x,
				Py:              y,
				Speed:           b.Speed(),
				Yaw:             b.Heading(),
				YawRate:         b.YawRate(),
				NIS:             up.NIS,
			})
			if err != nil {
				return nil, err
			}
		}
	}
	if err := scan.Err(); err != nil {
		return nil, fmt.Errorf("failed to read measurement stream: %w", err)
	}

	res.RMSE = rmse.Value()
	res.RMSECount = rmse.Count()
	res.Final, _ = est.Snapshot()
	return res, nil
}
