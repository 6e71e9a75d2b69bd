package report

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/tunogya/dipscope/pkg/model"
)

// Scatter renders dip pairs with the regression line overlaid. When
// regression is nil the scatter is drawn alone and reason goes in the title.
func Scatter(pairs []model.Pair, regression *model.RegressionResult, reason error) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Volatility vs Target Y with Linear Regression"
	p.X.Label.Text = "Volatility"
	p.Y.Label.Text = "Target Y"
	p.Add(plotter.NewGrid())

	if len(pairs) > 0 {
		xys := make(plotter.XYs, len(pairs))
		for i, pr := range pairs {
			xys[i].X = pr.X
			xys[i].Y = pr.Y
		}

		s, err := plotter.NewScatter(xys)
		if err != nil {
			return nil, fmt.Errorf("failed to build scatter: %w", err)
		}
		s.GlyphStyle.Color = color.NRGBA{R: 31, G: 119, B: 180, A: 128}
		s.GlyphStyle.Radius = vg.Points(2.5)
		p.Add(s)
		p.Legend.Add(fmt.Sprintf("dips (n=%d)", len(pairs)), s)
	}

	if regression == nil {
		if reason != nil {
			p.Title.Text += "\n(no regression: " + reason.Error() + ")"
		}
		return p, nil
	}

	minX, maxX := pairs[0].X, pairs[0].X
	for _, pr := range pairs[1:] {
		minX = min(minX, pr.X)
		maxX = max(maxX, pr.X)
	}
	l, err := plotter.NewLine(plotter.XYs{
		{X: minX, Y: regression.Predict(minX)},
		{X: maxX, Y: regression.Predict(maxX)},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build regression line: %w", err)
	}
	l.LineStyle.Color = color.NRGBA{R: 214, G: 39, B: 40, A: 204}
	l.LineStyle.Width = vg.Points(1.5)
	l.LineStyle.Dashes = []vg.Length{vg.Points(6), vg.Points(4)}
	p.Add(l)
	p.Legend.Add(fmt.Sprintf("Slope: %.4f  Intercept: %.4f  n=%d",
		regression.Slope, regression.Intercept, regression.SampleSize), l)
	p.Legend.Top = true
	p.Legend.Left = true

	return p, nil
}
