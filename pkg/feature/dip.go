package feature

import "github.com/tunogya/dipscope/pkg/model"

// SelectDips returns, in ascending order, the indices whose volatility is
// defined and strictly below threshold
func SelectDips(bars []model.AnnotatedBar, threshold float64) []int {
	var dips []int
	for i, b := range bars {
		if b.Volatility.Valid && b.Volatility.Float64 < threshold {
			dips = append(dips, i)
		}
	}
	return dips
}

// DipPairs collects (volatility, target_y) for the given indices,
// skipping any row where either value is missing
func DipPairs(bars []model.AnnotatedBar, indices []int) []model.Pair {
	pairs := make([]model.Pair, 0, len(indices))
	for _, i := range indices {
		if i < 0 || i >= len(bars) {
			continue
		}
		b := bars[i]
		if !b.Volatility.Valid || !b.TargetY.Valid {
			continue
		}
		pairs = append(pairs, model.Pair{
			Index: i,
			X:     b.Volatility.Float64,
			Y:     b.TargetY.Float64,
		})
	}
	return pairs
}

// Volatilities returns the defined volatility values in index order
func Volatilities(bars []model.AnnotatedBar) []float64 {
	values := make([]float64, 0, len(bars))
	for _, b := range bars {
		if b.Volatility.Valid {
			values = append(values, b.Volatility.Float64)
		}
	}
	return values
}
