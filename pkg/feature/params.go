package feature

// Params holds the read-only parameters consumed by the feature pipeline
type Params struct {
	Horizon      int     // Bars ahead used for the volatility feature
	DipThreshold float64 // Volatility strictly below this is a dip
}

// DefaultParams returns the default horizon and dip threshold
func DefaultParams() Params {
	return Params{
		Horizon:      1,
		DipThreshold: -0.01,
	}
}
