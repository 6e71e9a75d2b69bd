package report

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot/vg"

	"github.com/tunogya/dipscope/pkg/feature"
	"github.com/tunogya/dipscope/pkg/model"
	"github.com/tunogya/dipscope/pkg/pipeline"
)

// Output file names inside the report directory
const (
	HistogramFile = "volatility_hist.png"
	ScatterFile   = "dip_scatter.png"
)

// Config controls rendering
type Config struct {
	OutDir         string
	HistogramRange float64
	HistogramBins  int
	WidthInches    float64
	HeightInches   float64
	FeeRate        float64
}

// Files lists the images written by Render
type Files struct {
	Histogram string
	Scatter   string
}

// Render writes the histogram and scatter images into cfg.OutDir
func Render(result *pipeline.Result, cfg Config) (*Files, error) {
	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create report directory: %w", err)
	}

	width := vg.Length(cfg.WidthInches) * vg.Inch
	height := vg.Length(cfg.HeightInches) * vg.Inch
	files := &Files{
		Histogram: filepath.Join(cfg.OutDir, HistogramFile),
		Scatter:   filepath.Join(cfg.OutDir, ScatterFile),
	}

	hist, err := Histogram(feature.Volatilities(result.Bars), HistogramConfig{
		Range: cfg.HistogramRange,
		Bins:  cfg.HistogramBins,
	})
	if err != nil {
		return nil, err
	}
	if err := hist.Save(width, height, files.Histogram); err != nil {
		return nil, fmt.Errorf("failed to save histogram: %w", err)
	}

	scatter, err := Scatter(result.Pairs, result.Regression, result.FitErr)
	if err != nil {
		return nil, err
	}
	if err := scatter.Save(width, height, files.Scatter); err != nil {
		return nil, fmt.Errorf("failed to save scatter: %w", err)
	}

	return files, nil
}

// WriteSummary prints the console report
func WriteSummary(w io.Writer, result *pipeline.Result, feeRate float64) {
	bars := result.Bars
	if len(bars) > 0 {
		fmt.Fprintln(w, "First row of the data:")
		writeBar(w, bars[0].Bar)
		fmt.Fprintln(w, "Last row of the data:")
		writeBar(w, bars[len(bars)-1].Bar)
	}

	fmt.Fprintf(w, "\nVolatility (horizon=%d)\n", result.Params.Horizon)
	fmt.Fprintln(w, result.VolatilityStats())

	fmt.Fprintf(w, "\nDips (volatility < %g): %d, usable pairs: %d\n",
		result.Params.DipThreshold, len(result.Dips), len(result.Pairs))

	if net := result.MeanNetTargetY(feeRate); !math.IsNaN(net) {
		fmt.Fprintf(w, "Mean target_y after dips net of %.4f%% round-trip fee: %.6f\n", 2*feeRate*100, net)
	}

	if r := result.Regression; r != nil {
		fmt.Fprintf(w, "Slope: %.4f\nIntercept: %.4f\nSample size: %d\n", r.Slope, r.Intercept, r.SampleSize)
	} else {
		fmt.Fprintf(w, "No regression line: %v\n", result.FitErr)
	}
}

func writeBar(w io.Writer, b model.Bar) {
	fmt.Fprintf(w, "  %-10s %s\n", "timestamp", b.Timestamp.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "  %-10s %g\n", "open", b.Open)
	fmt.Fprintf(w, "  %-10s %g\n", "high", b.High)
	fmt.Fprintf(w, "  %-10s %g\n", "low", b.Low)
	fmt.Fprintf(w, "  %-10s %g\n", "close", b.Close)
	fmt.Fprintf(w, "  %-10s %g\n", "volume", b.Volume)
}
