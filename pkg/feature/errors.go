package feature

import "errors"

var (
	// ErrInvalidInput is returned for an empty series or a horizon that
	// leaves no bar with a defined feature.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDivisionByZero is returned when a fractional change would divide by a zero close.
	ErrDivisionByZero = errors.New("division by zero")

	// ErrDegenerateFit is returned when every regression x value is identical.
	ErrDegenerateFit = errors.New("degenerate fit: zero variance in x")

	// ErrInsufficientData is returned when fewer than two pairs are available to fit.
	ErrInsufficientData = errors.New("insufficient data for regression")
)

// IsRecoverable reports whether err only means the regression could not be
// drawn. Feature rows and dip selections are still valid in that case.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrInsufficientData) || errors.Is(err, ErrDegenerateFit)
}
