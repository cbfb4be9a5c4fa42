package monitor

import (
	"bytes"
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/fusion.report/internal/fusion"
)

// TrajectoryPNG renders the estimated track as a PNG image. Used by both
// the /debug/track.png handler and the offline replay tool.
func TrajectoryPNG(track []fusion.TrackPoint) ([]byte, error) {
	if len(track) == 0 {
		return nil, fmt.Errorf("empty trajectory")
	}

	p := plot.New()
	p.Title.Text = "Estimated Trajectory"
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"

	pts := make(plotter.XYs, 0, len(track))
	for _, tp := range track {
		pts = append(pts, plotter.XY{X: tp.X, Y: tp.Y})
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, fmt.Errorf("failed to build track line: %w", err)
	}
	line.Color = color.RGBA{R: 0x2a, G: 0x6f, B: 0xdb, A: 0xff}
	line.Width = vg.Points(1)
	p.Add(line)
	p.Legend.Add("estimate", line)

	wt, err := p.WriterTo(8*vg.Inch, 8*vg.Inch, "png")
	if err != nil {
		return nil, fmt.Errorf("failed to create png writer: %w", err)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}
