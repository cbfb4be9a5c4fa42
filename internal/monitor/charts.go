// Package monitor renders debug visualisations of the fusion estimate:
// go-echarts HTML charts served over HTTP and a gonum/plot PNG renderer
// shared with the offline replay tool.
package monitor

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/fusion.report/internal/fusion"
)

// WebServer serves the debug chart endpoints. These are debugging-only
// pages with no auth; mount them behind whatever protects the rest of the
// admin surface.
type WebServer struct {
	est *fusion.Estimator
}

func NewWebServer(est *fusion.Estimator) *WebServer {
	return &WebServer{est: est}
}

// AttachDebugRoutes mounts the chart endpoints on the given mux.
func (ws *WebServer) AttachDebugRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/debug/track-chart", ws.handleTrackChart)
	mux.HandleFunc("/debug/nis-chart", ws.handleNISChart)
	mux.HandleFunc("/debug/track.png", ws.handleTrackPNG)
}

// handleTrackChart renders the retained trajectory as an HTML scatter
// plot.
func (ws *WebServer) handleTrackChart(w http.ResponseWriter, r *http.Request) {
	track := ws.est.History()
	if len(track) == 0 {
		http.Error(w, "no trajectory recorded yet", http.StatusNotFound)
		return
	}

	buf, err := TrackChartHTML(track)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to render chart: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf)
}

// TrackChartHTML renders the trajectory as a standalone HTML scatter
// chart. Shared with the offline replay tool.
func TrackChartHTML(track []fusion.TrackPoint) ([]byte, error) {
	data := make([]opts.ScatterData, 0, len(track))
	for _, p := range track {
		data = append(data, opts.ScatterData{Value: []interface{}{p.X, p.Y}})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Fusion Trajectory", Theme: "dark",
			Width: "900px", Height: "900px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Estimated Trajectory",
			Subtitle: fmt.Sprintf("points=%d", len(data)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
	)
	scatter.AddSeries("estimate", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// handleNISChart renders the per-update NIS values against the chi-square
// 95% consistency bounds.
func (ws *WebServer) handleNISChart(w http.ResponseWriter, r *http.Request) {
	updates := ws.est.RecentUpdates()
	if len(updates) == 0 {
		http.Error(w, "no corrections recorded yet", http.StatusNotFound)
		return
	}

	buf, err := renderNISChart(updates)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to render chart: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf)
}

func renderNISChart(updates []fusion.Update) ([]byte, error) {
	xaxis := make([]string, 0, len(updates))
	nis := make([]opts.LineData, 0, len(updates))
	lidarBound := make([]opts.LineData, 0, len(updates))
	radarBound := make([]opts.LineData, 0, len(updates))
	for i, up := range updates {
		xaxis = append(xaxis, fmt.Sprintf("%d", i))
		nis = append(nis, opts.LineData{Value: up.NIS, Name: string(up.Sensor)})
		lidarBound = append(lidarBound, opts.LineData{Value: fusion.ChiSquare95Dof2})
		radarBound = append(radarBound, opts.LineData{Value: fusion.ChiSquare95Dof3})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Fusion NIS", Theme: "dark",
			Width: "1200px", Height: "500px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Normalised Innovation Squared",
			Subtitle: "consistent filters stay below the 95% bound for ~95% of updates",
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "NIS"}),
	)
	line.SetXAxis(xaxis)
	line.AddSeries("nis", nis)
	line.AddSeries("lidar 95% bound", lidarBound)
	line.AddSeries("radar 95% bound", radarBound)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// handleTrackPNG renders the trajectory as a PNG image.
func (ws *WebServer) handleTrackPNG(w http.ResponseWriter, r *http.Request) {
	track := ws.est.History()
	if len(track) == 0 {
		http.Error(w, "no trajectory recorded yet", http.StatusNotFound)
		return
	}

	png, err := TrajectoryPNG(track)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to render plot: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}
