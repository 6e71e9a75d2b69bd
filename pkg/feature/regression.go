package feature

import (
	"fmt"

	"github.com/tunogya/dipscope/pkg/model"
)

// Fit computes the ordinary least-squares line y = slope*x + intercept.
//
// Fewer than two pairs yields ErrInsufficientData. Pairs that all share
// the same x yield ErrDegenerateFit.
func Fit(pairs []model.Pair) (*model.RegressionResult, error) {
	if len(pairs) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 pairs, got %d", ErrInsufficientData, len(pairs))
	}

	distinct := false
	for _, p := range pairs[1:] {
		if p.X != pairs[0].X {
			distinct = true
			break
		}
	}
	if !distinct {
		return nil, fmt.Errorf("%w: all %d x values equal %g", ErrDegenerateFit, len(pairs), pairs[0].X)
	}

	n := float64(len(pairs))
	var sumX, sumY float64
	for _, p := range pairs {
		sumX += p.X
		sumY += p.Y
	}
	meanX := sumX / n
	meanY := sumY / n

	// Centered sums keep precision for the tiny returns this is fed
	var sxx, sxy float64
	for _, p := range pairs {
		dx := p.X - meanX
		sxx += dx * dx
		sxy += dx * (p.Y - meanY)
	}
	if sxx == 0 {
		return nil, fmt.Errorf("%w: x variance underflows", ErrDegenerateFit)
	}

	slope := sxy / sxx
	return &model.RegressionResult{
		Slope:      slope,
		Intercept:  meanY - slope*meanX,
		SampleSize: len(pairs),
	}, nil
}
