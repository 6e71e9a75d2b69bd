package model

import "encoding/json"

// NullFloat is a float64 that may be missing.
// The zero value is missing.
type NullFloat struct {
	Float64 float64
	Valid   bool
}

// Some returns a present NullFloat holding v
func Some(v float64) NullFloat {
	return NullFloat{Float64: v, Valid: true}
}

// Missing returns an absent NullFloat
func Missing() NullFloat {
	return NullFloat{}
}

// MarshalJSON encodes a missing value as null
func (n NullFloat) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Float64)
}

// UnmarshalJSON decodes null as missing
func (n *NullFloat) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*n = NullFloat{}
		return nil
	}
	if err := json.Unmarshal(data, &n.Float64); err != nil {
		return err
	}
	n.Valid = true
	return nil
}

// AnnotatedBar is a Bar with forward-looking return features.
//
// Volatility is the fractional close change from this bar to the bar
// Horizon steps ahead. TargetY is the fractional close change over the
// single bar that follows that window.
type AnnotatedBar struct {
	Bar
	Volatility NullFloat `json:"volatility"`
	TargetY    NullFloat `json:"target_y"`
}

// Pair is one (volatility, target_y) observation used for regression
type Pair struct {
	Index int     `json:"index"`
	X     float64 `json:"volatility"`
	Y     float64 `json:"target_y"`
}

// RegressionResult is a degree-1 least-squares fit y = Slope*x + Intercept
type RegressionResult struct {
	Slope      float64 `json:"slope"`
	Intercept  float64 `json:"intercept"`
	SampleSize int     `json:"sample_size"`
}

// Predict evaluates the fitted line at x
func (r *RegressionResult) Predict(x float64) float64 {
	return r.Slope*x + r.Intercept
}
