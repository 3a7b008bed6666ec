package report

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// ImportanceChart draws a horizontal bar chart of a ranking, highest on top,
// with importances shown in percent.
func ImportanceChart(title string, features []string, importances []float64, outPath string) error {
	if len(features) == 0 || len(features) != len(importances) {
		return fmt.Errorf("importance chart: %d features for %d values", len(features), len(importances))
	}

	n := len(features)
	values := make(plotter.Values, n)
	names := make([]string, n)
	// plot draws the first bar at the bottom.
	for i := range features {
		values[n-1-i] = importances[i] * 100
		names[n-1-i] = features[i]
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "importance (%)"

	bars, err := plotter.NewBarChart(values, vg.Points(14))
	if err != nil {
		return fmt.Errorf("importance chart: %w", err)
	}
	bars.Horizontal = true
	bars.LineStyle.Width = vg.Length(0)
	bars.Color = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}
	p.Add(bars)
	p.Add(plotter.NewGrid())
	p.NominalY(names...)

	height := vg.Points(float64(20*n)) + 2*vg.Inch
	if err := p.Save(8*vg.Inch, height, outPath); err != nil {
		return fmt.Errorf("importance chart: %w", err)
	}
	return nil
}
