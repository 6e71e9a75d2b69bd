package feature

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunogya/dipscope/pkg/model"
)

func barsFromCloses(closes ...float64) []model.Bar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]model.Bar, len(closes))
	for i, c := range closes {
		bars[i] = model.Bar{
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
			Volume:    1,
		}
	}
	return bars
}

func countValid(bars []model.AnnotatedBar) (vol, target int) {
	for _, b := range bars {
		if b.Volatility.Valid {
			vol++
		}
		if b.TargetY.Valid {
			target++
		}
	}
	return vol, target
}

func TestDerive_ValidCounts(t *testing.T) {
	for n := 2; n <= 12; n++ {
		closes := make([]float64, n)
		for i := range closes {
			closes[i] = 100 + float64(i%3)
		}
		bars := barsFromCloses(closes...)

		for h := 1; h < n; h++ {
			annotated, err := Derive(bars, h)
			require.NoError(t, err)
			require.Len(t, annotated, n)

			vol, target := countValid(annotated)
			assert.Equal(t, max(0, n-h), vol, "n=%d h=%d", n, h)
			assert.Equal(t, max(0, n-h-1), target, "n=%d h=%d", n, h)

			// missing values sit only at the tail
			for i, b := range annotated {
				assert.Equal(t, i+h < n, b.Volatility.Valid)
				assert.Equal(t, i+h+1 < n, b.TargetY.Valid)
			}
		}
	}
}

func TestDerive_PreservesAlignment(t *testing.T) {
	bars := barsFromCloses(10, 11, 12, 13)
	// timestamps deliberately out of order: slice order wins
	bars[1].Timestamp, bars[2].Timestamp = bars[2].Timestamp, bars[1].Timestamp
	original := append([]model.Bar(nil), bars...)

	annotated, err := Derive(bars, 1)
	require.NoError(t, err)

	assert.Equal(t, original, bars, "input must not be mutated")
	for i := range bars {
		assert.Equal(t, bars[i], annotated[i].Bar)
	}
}

func TestDerive_ConstantSeries(t *testing.T) {
	bars := barsFromCloses(42, 42, 42, 42, 42, 42)

	for h := 1; h < len(bars); h++ {
		annotated, err := Derive(bars, h)
		require.NoError(t, err)
		for _, b := range annotated {
			if b.Volatility.Valid {
				assert.Equal(t, 0.0, b.Volatility.Float64)
			}
			if b.TargetY.Valid {
				assert.Equal(t, 0.0, b.TargetY.Float64)
			}
		}
	}
}

func TestDerive_GeometricSeries(t *testing.T) {
	const r = 1.01
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100 * math.Pow(r, float64(i))
	}
	bars := barsFromCloses(closes...)

	for _, h := range []int{1, 2, 5} {
		annotated, err := Derive(bars, h)
		require.NoError(t, err)

		want := math.Pow(r, float64(h)) - 1
		for i, b := range annotated {
			if !b.Volatility.Valid {
				continue
			}
			assert.InDelta(t, want, b.Volatility.Float64, 1e-12, "h=%d i=%d", h, i)
			if b.TargetY.Valid {
				assert.InDelta(t, r-1, b.TargetY.Float64, 1e-12, "h=%d i=%d", h, i)
			}
		}
	}
}

func TestDerive_InvalidInput(t *testing.T) {
	tests := []struct {
		name    string
		bars    []model.Bar
		horizon int
	}{
		{"empty", nil, 1},
		{"zero horizon", barsFromCloses(1, 2, 3), 0},
		{"negative horizon", barsFromCloses(1, 2, 3), -1},
		{"horizon equals length", barsFromCloses(1, 2, 3), 3},
		{"horizon exceeds length", barsFromCloses(1, 2, 3), 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			annotated, err := Derive(tt.bars, tt.horizon)
			assert.ErrorIs(t, err, ErrInvalidInput)
			assert.Nil(t, annotated)
		})
	}
}

func TestDerive_DivisionByZero(t *testing.T) {
	_, err := Derive(barsFromCloses(100, 0, 50), 1)
	assert.ErrorIs(t, err, ErrDivisionByZero)

	// a zero close that is never a denominator is fine
	annotated, err := Derive(barsFromCloses(100, 0), 1)
	require.NoError(t, err)
	assert.Equal(t, -1.0, annotated[0].Volatility.Float64)
}

func TestSelectDips_ExcludesMissingAndIsAscending(t *testing.T) {
	annotated, err := Derive(barsFromCloses(100, 90, 80, 70, 60, 50), 2)
	require.NoError(t, err)

	dips := SelectDips(annotated, -0.01)
	assert.Equal(t, []int{0, 1, 2, 3}, dips)
	for k, i := range dips {
		assert.True(t, annotated[i].Volatility.Valid)
		if k > 0 {
			assert.Greater(t, i, dips[k-1])
		}
	}
}

func TestSelectDips_ThresholdIsExclusive(t *testing.T) {
	annotated := []model.AnnotatedBar{
		{Volatility: model.Some(-0.01)},
		{Volatility: model.Some(-0.0100001)},
		{Volatility: model.Missing()},
		{Volatility: model.Some(0.5)},
	}

	assert.Equal(t, []int{1}, SelectDips(annotated, -0.01))
	assert.Empty(t, SelectDips(nil, -0.01))
}

func TestDipPairs_SkipsMissingTarget(t *testing.T) {
	annotated := []model.AnnotatedBar{
		{Volatility: model.Some(-0.02), TargetY: model.Some(0.01)},
		{Volatility: model.Some(-0.03), TargetY: model.Missing()},
		{Volatility: model.Some(-0.04), TargetY: model.Some(-0.01)},
	}

	pairs := DipPairs(annotated, []int{0, 1, 2, 9})
	assert.Equal(t, []model.Pair{
		{Index: 0, X: -0.02, Y: 0.01},
		{Index: 2, X: -0.04, Y: -0.01},
	}, pairs)
}

func TestFit_PerfectLine(t *testing.T) {
	result, err := Fit([]model.Pair{
		{X: -1, Y: -1},
		{X: -2, Y: -2},
		{X: -3, Y: -3},
	})
	require.NoError(t, err)

	assert.InDelta(t, 1.0, result.Slope, 1e-12)
	assert.InDelta(t, 0.0, result.Intercept, 1e-12)
	assert.Equal(t, 3, result.SampleSize)
	assert.InDelta(t, -5.0, result.Predict(-5), 1e-12)
}

func TestFit_NoisyLine(t *testing.T) {
	// y = 0.5x + 0.002 with symmetric residuals
	pairs := []model.Pair{
		{X: -0.02, Y: 0.5*-0.02 + 0.002 + 0.001},
		{X: -0.03, Y: 0.5*-0.03 + 0.002 - 0.001},
		{X: -0.04, Y: 0.5*-0.04 + 0.002 - 0.001},
		{X: -0.05, Y: 0.5*-0.05 + 0.002 + 0.001},
	}

	result, err := Fit(pairs)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, result.Slope, 1e-9)
	assert.InDelta(t, 0.002, result.Intercept, 1e-9)
	assert.Equal(t, 4, result.SampleSize)
}

func TestFit_InsufficientData(t *testing.T) {
	for _, pairs := range [][]model.Pair{nil, {}, {{X: -0.02, Y: 0.01}}} {
		result, err := Fit(pairs)
		assert.ErrorIs(t, err, ErrInsufficientData)
		assert.Nil(t, result)
		assert.True(t, IsRecoverable(err))
	}
}

func TestFit_DegenerateFit(t *testing.T) {
	result, err := Fit([]model.Pair{{X: -2, Y: -1}, {X: -2, Y: 3}})
	assert.ErrorIs(t, err, ErrDegenerateFit)
	assert.Nil(t, result)
	assert.True(t, IsRecoverable(err))
}

func TestPipeline_DipBoundaryScenario(t *testing.T) {
	params := DefaultParams()
	annotated, err := Derive(barsFromCloses(100, 99, 97, 98, 101), params.Horizon)
	require.NoError(t, err)

	want := []float64{-0.01, -0.0202, 0.0103, 0.0306}
	for i, v := range want {
		require.True(t, annotated[i].Volatility.Valid)
		assert.InDelta(t, v, annotated[i].Volatility.Float64, 1e-4, "index %d", i)
	}
	assert.False(t, annotated[4].Volatility.Valid)

	// index 0 sits exactly on the threshold and must not qualify
	assert.Equal(t, -0.01, annotated[0].Volatility.Float64)
	dips := SelectDips(annotated, params.DipThreshold)
	assert.Equal(t, []int{1}, dips)

	pairs := DipPairs(annotated, dips)
	require.Len(t, pairs, 1)
	assert.InDelta(t, 1.0/97, pairs[0].Y, 1e-12)

	_, err = Fit(pairs)
	assert.ErrorIs(t, err, ErrInsufficientData)
}
