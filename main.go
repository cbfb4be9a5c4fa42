package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/fusion.report/api"
	"github.com/banshee-data/fusion.report/internal/fusion"
	"github.com/banshee-data/fusion.report/internal/fusiondb"
	"github.com/banshee-data/fusion.report/internal/monitor"
	"github.com/banshee-data/fusion.report/serialmux"
)

var (
	devMode    = flag.Bool("dev", false, "Replay fixture data instead of opening the serial port")
	listen     = flag.String("listen", ":8080", "Listen address")
	serialPath = flag.String("serial", "/dev/ttySC1", "Serial device carrying measurement lines")
	dbFile     = flag.String("db", "fusion_data.db", "SQLite database file")
	fixtures   = flag.String("fixtures", "fixtures.txt", "Fixture file replayed in dev mode")
	migrations = flag.String("migrations", "migrations", "Directory holding schema migrations")
)

// handleLine parses one serial payload, feeds it to the estimator and
// persists the resulting estimate. Malformed or rejected lines are
// reported to the caller; the estimator keeps its last good belief.
func handleLine(est *fusion.Estimator, db *fusiondb.DB, runID, payload string) error {
	m, err := fusion.ParseLine(payload)
	if err != nil {
		return fmt.Errorf("failed to parse measurement: %w", err)
	}

	update, err := est.Process(m)
	if err != nil {
		return fmt.Errorf("failed to process %s measurement: %w", m.Sensor, err)
	}

	belief, ok := est.Snapshot()
	if !ok {
		return fmt.Errorf("no belief after processing %s measurement", m.Sensor)
	}

	px, py := belief.Position()
	if db != nil {
		err := db.RecordEstimate(fusiondb.Estimate{
			RunID:           runID,
			TimestampMicros: belief.TimestampMicros(),
			Sensor:          string(update.Sensor),
			Px:              px,
			Py:              py,
			Speed:           belief.Speed(),
			Yaw:             belief.Heading(),
			YawRate:         belief.YawRate(),
			NIS:             update.NIS,
		})
		if err != nil {
			log.Printf("failed to record estimate: %v", err)
		}
	}
	return nil
}

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	var m serialmux.Interface
	if *devMode {
		data, err := os.ReadFile(*fixtures)
		if err != nil {
			log.Fatalf("failed to open fixtures file: %v", err)
		}
		m = serialmux.NewMockSerialMux(data)
	} else {
		var err error
		m, err = serialmux.NewRealSerialMux(*serialPath)
		if err != nil {
			log.Fatalf("failed to open serial port: %v", err)
		}
	}
	defer m.Close()

	db, err := fusiondb.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.MigrateUp(*migrations); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	source := *serialPath
	if *devMode {
		source = *fixtures
	}
	runID, err := db.CreateRun(source, "")
	if err != nil {
		log.Fatalf("failed to create run: %v", err)
	}
	log.Printf("started run %s from %s", runID, source)

	est := fusion.NewEstimator(fusion.DefaultConfig())

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the monitor routine to manage IO on the serial port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := m.Monitor(ctx); err != nil && err != context.Canceled {
			log.Printf("failed to monitor serial port: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	// subscribe to the serial port messages and feed them to the estimator
	wg.Add(1)
	go func() {
		defer wg.Done()
		id, c := m.Subscribe()
		defer m.Unsubscribe(id)
		for {
			select {
			case payload := <-c:
				if err := handleLine(est, db, runID, payload); err != nil {
					log.Printf("error handling line: %v", err)
				}
			case <-ctx.Done():
				log.Printf("subscribe routine terminated")
				return
			}
		}
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()

		// debugging chart routes
		monitor.NewWebServer(est).AttachDebugRoutes(mux)

		apiMux := api.NewServer(est, db, runID).ServeMux()
		mux.Handle("/api/", http.StripPrefix("/api", apiMux))

		h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Printf("got request %q", r.URL.Path)
			mux.ServeHTTP(w, r)
		})

		server := &http.Server{
			Addr:    *listen,
			Handler: h,
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
