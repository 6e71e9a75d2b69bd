package stats

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Description summarizes a sample the way a column description does:
// count, mean, sample standard deviation, extremes and quartiles.
type Description struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
	Min   float64 `json:"min"`
	P25   float64 `json:"p25"`
	P50   float64 `json:"p50"`
	P75   float64 `json:"p75"`
	Max   float64 `json:"max"`
}

// Describe computes a Description. NaN values are ignored.
// Std is NaN when fewer than two values remain.
func Describe(values []float64) Description {
	sorted := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			sorted = append(sorted, v)
		}
	}
	if len(sorted) == 0 {
		nan := math.NaN()
		return Description{Mean: nan, Std: nan, Min: nan, P25: nan, P50: nan, P75: nan, Max: nan}
	}
	sort.Float64s(sorted)

	return Description{
		Count: len(sorted),
		Mean:  Mean(sorted),
		Std:   SampleStd(sorted),
		Min:   sorted[0],
		P25:   Percentile(sorted, 25),
		P50:   Percentile(sorted, 50),
		P75:   Percentile(sorted, 75),
		Max:   sorted[len(sorted)-1],
	}
}

// String returns a formatted multi-line representation
func (d Description) String() string {
	return fmt.Sprintf(
		"count %10d\nmean  %10.6f\nstd   %10.6f\nmin   %10.6f\n25%%   %10.6f\n50%%   %10.6f\n75%%   %10.6f\nmax   %10.6f",
		d.Count, d.Mean, d.Std, d.Min, d.P25, d.P50, d.P75, d.Max,
	)
}

// MarshalJSON encodes undefined fields as null
func (d Description) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Count int      `json:"count"`
		Mean  *float64 `json:"mean"`
		Std   *float64 `json:"std"`
		Min   *float64 `json:"min"`
		P25   *float64 `json:"p25"`
		P50   *float64 `json:"p50"`
		P75   *float64 `json:"p75"`
		Max   *float64 `json:"max"`
	}{
		Count: d.Count,
		Mean:  finite(d.Mean),
		Std:   finite(d.Std),
		Min:   finite(d.Min),
		P25:   finite(d.P25),
		P50:   finite(d.P50),
		P75:   finite(d.P75),
		Max:   finite(d.Max),
	})
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Mean calculates the arithmetic mean, 0 for no values
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

// SampleStd calculates the standard deviation with n-1 degrees of freedom
func SampleStd(values []float64) float64 {
	if len(values) < 2 {
		return math.NaN()
	}
	return stat.StdDev(values, nil)
}

// Percentile calculates the p-th percentile (p in 0-100) of sorted values.
// The rank is p/100*(n-1) with linear interpolation between neighbours.
// stat.Quantile's LinInterp interpolates the empirical CDF instead and
// gives different quartiles on small samples.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	// Linear interpolation method
	rank := (p / 100) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))

	if lower == upper {
		return sorted[lower]
	}

	fraction := rank - float64(lower)
	return sorted[lower] + fraction*(sorted[upper]-sorted[lower])
}

// Within returns the values strictly inside (-limit, limit)
func Within(values []float64, limit float64) []float64 {
	var filtered []float64
	for _, v := range values {
		if v < limit && v > -limit {
			filtered = append(filtered, v)
		}
	}
	return filtered
}
