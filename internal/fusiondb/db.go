// Package fusiondb persists estimation runs and per-measurement state
// estimates to SQLite.
package fusiondb

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type DB struct {
	*sql.DB
}

// NewDB opens (and creates if necessary) the SQLite database at path. The
// schema is managed by migrations; call MigrateUp before first use.
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	return &DB{db}, nil
}

// Run is one estimation session: a contiguous stream of measurements fed
// through a single filter instance.
type Run struct {
	ID        string
	Source    string
	Notes     string
	StartedAt time.Time
}

// Estimate is one persisted filter output.
type Estimate struct {
	RunID           string
	TimestampMicros int64
	Sensor          string
	Px              float64
	Py              float64
	Speed           float64
	Yaw             float64
	YawRate         float64
	NIS             float64
}

// RunSummary aggregates a run's stored estimates.
type RunSummary struct {
	RunID         string
	EstimateCount int
	MeanNIS       float64
	MaxNIS        float64
}

// CreateRun inserts a new run row and returns its generated ID.
func (db *DB) CreateRun(source, notes string) (string, error) {
	id := uuid.NewString()
	_, err := db.Exec(
		"INSERT INTO runs (run_id, source, notes) VALUES (?, ?, ?)",
		id, source, notes,
	)
	if err != nil {
		return "", fmt.Errorf("failed to create run: %w", err)
	}
	return id, nil
}

// RecordEstimate appends one estimate to a run.
func (db *DB) RecordEstimate(e Estimate) error {
	_, err := db.Exec(`
		INSERT INTO estimates
			(run_id, ts_micros, sensor, px, py, speed, yaw, yaw_rate, nis)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.TimestampMicros, e.Sensor,
		e.Px, e.Py, e.Speed, e.Yaw, e.YawRate, e.NIS,
	)
	if err != nil {
		return fmt.Errorf("failed to record estimate: %w", err)
	}
	return nil
}

// EstimatesForRun returns a run's estimates in timestamp order.
func (db *DB) EstimatesForRun(runID string) ([]Estimate, error) {
	rows, err := db.Query(`
		SELECT run_id, ts_micros, sensor, px, py, speed, yaw, yaw_rate, nis
		FROM estimates WHERE run_id = ? ORDER BY ts_micros`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query estimates: %w", err)
	}
	defer rows.Close()

	var out []Estimate
	for rows.Next() {
		var e Estimate
		if err := rows.Scan(&e.RunID, &e.TimestampMicros, &e.Sensor,
			&e.Px, &e.Py, &e.Speed, &e.Yaw, &e.YawRate, &e.NIS); err != nil {
			return nil, fmt.Errorf("failed to scan estimate: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// NISForRun returns the NIS values of a run in timestamp order, optionally
// filtered by sensor ("" for all).
func (db *DB) NISForRun(runID, sensor string) ([]float64, error) {
	query := "SELECT nis FROM estimates WHERE run_id = ?"
	args := []any{runID}
	if sensor != "" {
		query += " AND sensor = ?"
		args = append(args, sensor)
	}
	query += " ORDER BY ts_micros"

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query nis: %w", err)
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan nis: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// LatestEstimate returns the most recent estimate of a run.
func (db *DB) LatestEstimate(runID string) (Estimate, error) {
	var e Estimate
	err := db.QueryRow(`
		SELECT run_id, ts_micros, sensor, px, py, speed, yaw, yaw_rate, nis
		FROM estimates WHERE run_id = ?
		ORDER BY ts_micros DESC LIMIT 1`, runID).
		Scan(&e.RunID, &e.TimestampMicros, &e.Sensor,
			&e.Px, &e.Py, &e.Speed, &e.Yaw, &e.YawRate, &e.NIS)
	if err != nil {
		return Estimate{}, fmt.Errorf("failed to load latest estimate: %w", err)
	}
	return e, nil
}

// Summary aggregates the stored estimates of a run.
func (db *DB) Summary(runID string) (RunSummary, error) {
	s := RunSummary{RunID: runID}
	err := db.QueryRow(`
		SELECT COUNT(*), COALESCE(AVG(nis), 0), COALESCE(MAX(nis), 0)
		FROM estimates WHERE run_id = ?`, runID).
		Scan(&s.EstimateCount, &s.MeanNIS, &s.MaxNIS)
	if err != nil {
		return RunSummary{}, fmt.Errorf("failed to summarise run: %w", err)
	}
	return s, nil
}

// Runs lists all runs, newest first.
func (db *DB) Runs() ([]Run, error) {
	rows, err := db.Query(`
		SELECT run_id, source, notes, started_at
		FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Source, &r.Notes, &r.StartedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
