package report

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"

	"github.com/tunogya/dipscope/pkg/stats"
)

// HistogramConfig controls the volatility histogram
type HistogramConfig struct {
	Range float64 // Only values strictly inside (-Range, Range) are shown
	Bins  int
}

// Bin counts values into n equal-width bins over [-limit, limit).
// Values outside the open window (-limit, limit) are dropped.
func Bin(values []float64, limit float64, n int) []plotter.HistogramBin {
	if n < 1 || limit <= 0 {
		return nil
	}

	width := 2 * limit / float64(n)
	bins := make([]plotter.HistogramBin, n)
	for i := range bins {
		bins[i].Min = -limit + float64(i)*width
		bins[i].Max = bins[i].Min + width
	}

	for _, v := range stats.Within(values, limit) {
		i := int((v + limit) / width)
		if i >= n {
			i = n - 1
		}
		bins[i].Weight++
	}
	return bins
}

// Histogram renders the volatility distribution
func Histogram(values []float64, cfg HistogramConfig) (*plot.Plot, error) {
	if cfg.Bins < 1 || cfg.Range <= 0 {
		return nil, fmt.Errorf("invalid histogram window: range %g, bins %d", cfg.Range, cfg.Bins)
	}

	p := plot.New()
	p.Title.Text = "Histogram of Volatility"
	p.X.Label.Text = "Volatility"
	p.Y.Label.Text = "Count"
	p.Add(plotter.NewGrid())

	bins := Bin(values, cfg.Range, cfg.Bins)
	h := &plotter.Histogram{
		Bins:      bins,
		Width:     2 * cfg.Range / float64(cfg.Bins),
		FillColor: color.NRGBA{R: 31, G: 119, B: 180, A: 255},
		LineStyle: plotter.DefaultLineStyle,
	}
	p.Add(h)
	p.X.Min, p.X.Max = -cfg.Range, cfg.Range

	return p, nil
}
