package feature

import (
	"fmt"

	"github.com/tunogya/dipscope/pkg/model"
)

// Derive annotates every bar with its forward volatility and target_y.
//
// For bar i and horizon H:
//
//	volatility[i] = (close[i+H] - close[i]) / close[i]
//	target_y[i]   = (close[i+H+1] - close[i+H]) / close[i+H]
//
// The last H volatility values and the last H+1 target_y values are
// missing. The output has the same length and order as bars.
func Derive(bars []model.Bar, horizon int) ([]model.AnnotatedBar, error) {
	n := len(bars)
	if n == 0 {
		return nil, fmt.Errorf("%w: empty bar sequence", ErrInvalidInput)
	}
	if horizon < 1 {
		return nil, fmt.Errorf("%w: horizon must be positive, got %d", ErrInvalidInput, horizon)
	}
	if horizon >= n {
		return nil, fmt.Errorf("%w: horizon %d leaves no feature rows in %d bars", ErrInvalidInput, horizon, n)
	}

	annotated := make([]model.AnnotatedBar, n)
	for i, b := range bars {
		annotated[i].Bar = b

		if i+horizon < n {
			v, err := fractionalChange(bars, i, i+horizon)
			if err != nil {
				return nil, err
			}
			annotated[i].Volatility = model.Some(v)
		}

		if i+horizon+1 < n {
			y, err := fractionalChange(bars, i+horizon, i+horizon+1)
			if err != nil {
				return nil, err
			}
			annotated[i].TargetY = model.Some(y)
		}
	}

	return annotated, nil
}

// fractionalChange returns the close change from bar from to bar to,
// relative to the earlier bar
func fractionalChange(bars []model.Bar, from, to int) (float64, error) {
	base := bars[from].Close
	if base == 0 {
		return 0, fmt.Errorf("%w: close is zero at index %d", ErrDivisionByZero, from)
	}
	return (bars[to].Close - base) / base, nil
}
