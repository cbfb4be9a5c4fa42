// Package api exposes the current fusion estimate over HTTP for the
// dashboard and external consistency monitoring.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/banshee-data/fusion.report/internal/fusion"
	"github.com/banshee-data/fusion.report/internal/fusiondb"
)

type Server struct {
	est   *fusion.Estimator
	db    *fusiondb.DB
	runID string
}

func NewServer(est *fusion.Estimator, db *fusiondb.DB, runID string) *Server {
	return &Server{
		est:   est,
		db:    db,
		runID: runID,
	}
}

func (s *Server) homeHandler(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("Welcome to the Fusion Server!"))
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/state", s.stateHandler)
	mux.HandleFunc("/nis", s.nisHandler)
	mux.HandleFunc("/run/summary", s.runSummaryHandler)
	mux.HandleFunc("/", s.homeHandler)
	return mux
}

// stateResponse is the JSON shape of the current belief.
type stateResponse struct {
	TimestampMicros int64       `json:"timestamp_micros"`
	Px              float64     `json:"px"`
	Py              float64     `json:"py"`
	Speed           float64     `json:"speed"`
	Yaw             float64     `json:"yaw"`
	YawRate         float64     `json:"yaw_rate"`
	Covariance      [][]float64 `json:"covariance"`
	Processed       int         `json:"processed"`
}

func (s *Server) stateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	b, ok := s.est.Snapshot()
	if !ok {
		http.Error(w, "No estimate yet", http.StatusNotFound)
		return
	}

	cov := b.Covariance()
	covOut := make([][]float64, fusion.StateDim)
	for i := range covOut {
		covOut[i] = make([]float64, fusion.StateDim)
		for j := range covOut[i] {
			covOut[i][j] = cov.At(i, j)
		}
	}

	x, y := b.Position()
	resp := stateResponse{
		TimestampMicros: b.TimestampMicros(),
		Px:              x,
		Py:              y,
		Speed:           b.Speed(),
		Yaw:             b.Heading(),
		YawRate:         b.YawRate(),
		Covariance:      covOut,
		Processed:       s.est.ProcessedCount(),
	}
	writeJSON(w, resp)
}

// nisEntry is one correction's consistency statistic.
type nisEntry struct {
	Sensor string  `json:"sensor"`
	NIS    float64 `json:"nis"`
	Dt     float64 `json:"dt_seconds"`
}

func (s *Server) nisHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	updates := s.est.RecentUpdates()
	out := make([]nisEntry, 0, len(updates))
	for _, up := range updates {
		out = append(out, nisEntry{
			Sensor: string(up.Sensor),
			NIS:    up.NIS,
			Dt:     up.DtSeconds,
		})
	}
	writeJSON(w, out)
}

func (s *Server) runSummaryHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.db == nil || s.runID == "" {
		http.Error(w, "No run recording configured", http.StatusNotFound)
		return
	}

	summary, err := s.db.Summary(s.runID)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to summarise run: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, summary)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
