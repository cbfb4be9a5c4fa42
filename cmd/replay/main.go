// Command replay runs a recorded measurement dataset through the fusion
// filter offline and reports accuracy and consistency statistics.
//
// Usage:
//
//	replay -input obj_pose-laser-radar-synthetic-input.txt -png track.png
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/banshee-data/fusion.report/internal/fusion"
	"github.com/banshee-data/fusion.report/internal/fusiondb"
	"github.com/banshee-data/fusion.report/internal/monitor"
	"github.com/banshee-data/fusion.report/internal/replay"
)

var (
	input      = flag.String("input", "", "Dataset file with one measurement per line")
	dbFile     = flag.String("db", "", "Optional SQLite file to persist the run into")
	migrations = flag.String("migrations", "migrations", "Directory holding schema migrations")
	pngOut     = flag.String("png", "", "Optional PNG file for the estimated trajectory")
	htmlOut    = flag.String("html", "", "Optional HTML chart file for the estimated trajectory")
	stdAccel   = flag.Float64("std-accel", 0, "Override longitudinal acceleration noise (m/s^2)")
	stdYawAcc  = flag.Float64("std-yaw-accel", 0, "Override yaw acceleration noise (rad/s^2)")
)

func main() {
	flag.Parse()

	if *input == "" {
		log.Fatal("-input is required")
	}

	cfg := fusion.DefaultConfig()
	if *stdAccel > 0 {
		cfg.StdAccel = *stdAccel
	}
	if *stdYawAcc > 0 {
		cfg.StdYawAccel = *stdYawAcc
	}

	f, err := os.Open(*input)
	if err != nil {
		log.Fatalf("failed to open dataset: %v", err)
	}
	defer f.Close()

	opts := replay.Options{Config: cfg, Source: *input}
	if *dbFile != "" {
		db, err := fusiondb.NewDB(*dbFile)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()
		if err := db.MigrateUp(*migrations); err != nil {
			log.Fatalf("failed to migrate database: %v", err)
		}
		opts.Store = db
	}

	result, err := replay.Run(f, opts)
	if err != nil {
		log.Fatalf("replay failed: %v", err)
	}

	report(result)

	if *pngOut != "" {
		png, err := monitor.TrajectoryPNG(result.Track)
		if err != nil {
			log.Fatalf("failed to render trajectory: %v", err)
		}
		if err := os.WriteFile(*pngOut, png, 0o644); err != nil {
			log.Fatalf("failed to write %s: %v", *pngOut, err)
		}
		log.Printf("wrote trajectory plot to %s", *pngOut)
	}

	if *htmlOut != "" {
		html, err := monitor.TrackChartHTML(result.Track)
		if err != nil {
			log.Fatalf("failed to render trajectory chart: %v", err)
		}
		if err := os.WriteFile(*htmlOut, html, 0o644); err != nil {
			log.Fatalf("failed to write %s: %v", *htmlOut, err)
		}
		log.Printf("wrote trajectory chart to %s", *htmlOut)
	}
}

func report(r *replay.Result) {
	fmt.Printf("processed %d measurements, skipped %d\n", r.Processed, r.Skipped)
	if r.RunID != "" {
		fmt.Printf("run id: %s\n", r.RunID)
	}

	if r.RMSECount > 0 {
		fmt.Printf("RMSE [px py vx vy]: %.4f %.4f %.4f %.4f (%d ground-truth rows)\n",
			r.RMSE[0], r.RMSE[1], r.RMSE[2], r.RMSE[3], r.RMSECount)
	} else {
		fmt.Println("no ground truth in dataset, RMSE unavailable")
	}

	printNIS := func(name string, s *fusion.NISSummary) {
		if s.Count() == 0 {
			return
		}
		fmt.Printf("%s NIS: %d updates, %.1f%% above the 95%% bound (%.3f)\n",
			name, s.Count(), 100*s.ExceedanceFraction(), s.Bound)
	}
	printNIS("lidar", r.LidarNIS)
	printNIS("radar", r.RadarNIS)

	if r.Final.Initialized() {
		px, py := r.Final.Position()
		fmt.Printf("final estimate: pos=(%.3f, %.3f) speed=%.3f yaw=%.3f yaw_rate=%.3f\n",
			px, py, r.Final.Speed(), r.Final.Heading(), r.Final.YawRate())
	}
}
