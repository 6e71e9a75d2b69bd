package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tunogya/dipscope/pkg/data"
	"github.com/tunogya/dipscope/pkg/feature"
	"github.com/tunogya/dipscope/pkg/model"
	"github.com/tunogya/dipscope/pkg/stats"
)

// Fit status labels
const (
	FitOK               = "ok"
	FitInsufficientData = "insufficient_data"
	FitDegenerate       = "degenerate_fit"
)

// Result holds everything one analysis run produces
type Result struct {
	RunID      string // set by Runner; empty for direct Analyze calls
	Params     feature.Params
	Bars       []model.AnnotatedBar
	Dips       []int
	Pairs      []model.Pair
	Regression *model.RegressionResult // nil when FitErr is set
	FitErr     error                   // ErrInsufficientData or ErrDegenerateFit
}

// Analyze runs derive, select and fit over an in-memory bar sequence.
//
// Invalid input and division by zero abort with an error. An
// insufficient or degenerate regression does not: the Result is returned
// with Regression nil and FitErr set.
func Analyze(bars []model.Bar, params feature.Params) (*Result, error) {
	annotated, err := feature.Derive(bars, params.Horizon)
	if err != nil {
		return nil, err
	}

	dips := feature.SelectDips(annotated, params.DipThreshold)
	pairs := feature.DipPairs(annotated, dips)

	result := &Result{
		Params: params,
		Bars:   annotated,
		Dips:   dips,
		Pairs:  pairs,
	}

	regression, err := feature.Fit(pairs)
	switch {
	case err == nil:
		result.Regression = regression
	case feature.IsRecoverable(err):
		result.FitErr = err
	default:
		return nil, err
	}
	return result, nil
}

// FitStatus labels the regression outcome
func (r *Result) FitStatus() string {
	switch {
	case r.FitErr == nil:
		return FitOK
	case errors.Is(r.FitErr, feature.ErrDegenerateFit):
		return FitDegenerate
	default:
		return FitInsufficientData
	}
}

// VolatilityStats describes the defined volatility column
func (r *Result) VolatilityStats() stats.Description {
	return stats.Describe(feature.Volatilities(r.Bars))
}

// MeanNetTargetY is the mean target_y over dip pairs less a round-trip
// fee (entry and exit). It is NaN when there are no pairs.
func (r *Result) MeanNetTargetY(feeRate float64) float64 {
	ys := make([]float64, len(r.Pairs))
	for i, p := range r.Pairs {
		ys[i] = p.Y
	}
	return stats.Describe(ys).Mean - 2*feeRate
}

// Summary is the JSON view of a Result
type Summary struct {
	RunID        string                  `json:"run_id,omitempty"`
	Horizon      int                     `json:"horizon"`
	DipThreshold float64                 `json:"dip_threshold"`
	Bars         int                     `json:"bars"`
	Volatility   stats.Description       `json:"volatility"`
	Dips         int                     `json:"dips"`
	Pairs        []model.Pair            `json:"pairs"`
	FitStatus    string                  `json:"fit_status"`
	Regression   *model.RegressionResult `json:"regression,omitempty"`
	Reason       string                  `json:"reason,omitempty"`
}

// Summary builds the JSON view
func (r *Result) Summary() Summary {
	s := Summary{
		RunID:        r.RunID,
		Horizon:      r.Params.Horizon,
		DipThreshold: r.Params.DipThreshold,
		Bars:         len(r.Bars),
		Volatility:   r.VolatilityStats(),
		Dips:         len(r.Dips),
		Pairs:        r.Pairs,
		FitStatus:    r.FitStatus(),
		Regression:   r.Regression,
	}
	if r.FitErr != nil {
		s.Reason = r.FitErr.Error()
	}
	return s
}

// Recorder receives run metrics
type Recorder interface {
	RecordBarsLoaded(source string, n int)
	RecordRun(dips int, result string, slope float64)
	ObserveDuration(operation string, start time.Time)
}

// Runner loads bars from a provider and analyzes them
type Runner struct {
	provider data.BarProvider
	source   string
	logger   zerolog.Logger
	recorder Recorder
}

// NewRunner creates a runner. recorder may be nil.
func NewRunner(provider data.BarProvider, source string, logger zerolog.Logger, recorder Recorder) *Runner {
	return &Runner{
		provider: provider,
		source:   source,
		logger:   logger.With().Str("component", "pipeline").Logger(),
		recorder: recorder,
	}
}

// Load fetches the full bar sequence
func (r *Runner) Load(ctx context.Context, symbol, timeframe string) ([]model.Bar, error) {
	bars, err := r.provider.FetchBars(ctx, symbol, timeframe)
	if err != nil {
		return nil, fmt.Errorf("failed to load bars: %w", err)
	}
	if r.recorder != nil {
		r.recorder.RecordBarsLoaded(r.source, len(bars))
	}
	return bars, nil
}

// Run loads bars and analyzes them
func (r *Runner) Run(ctx context.Context, symbol, timeframe string, params feature.Params) (*Result, error) {
	start := time.Now()
	bars, err := r.Load(ctx, symbol, timeframe)
	if err != nil {
		return nil, err
	}
	return r.Analyze(bars, params, start)
}

// Analyze analyzes already loaded bars and logs the outcome
func (r *Runner) Analyze(bars []model.Bar, params feature.Params, start time.Time) (*Result, error) {
	runID := uuid.New().String()
	logger := r.logger.With().
		Str("run_id", runID).
		Int("bars", len(bars)).
		Int("horizon", params.Horizon).
		Float64("dip_threshold", params.DipThreshold).
		Logger()

	result, err := Analyze(bars, params)
	if err != nil {
		logger.Error().Err(err).Msg("analysis failed")
		return nil, err
	}
	result.RunID = runID

	if r.recorder != nil {
		slope := 0.0
		if result.Regression != nil {
			slope = result.Regression.Slope
		}
		r.recorder.RecordRun(len(result.Dips), result.FitStatus(), slope)
		r.recorder.ObserveDuration("analyze", start)
	}

	event := logger.Info().Int("dips", len(result.Dips)).Int("pairs", len(result.Pairs))
	if result.Regression != nil {
		event = event.Float64("slope", result.Regression.Slope).Float64("intercept", result.Regression.Intercept)
	} else {
		event = event.Str("fit", result.FitStatus()).AnErr("reason", result.FitErr)
	}
	event.Msg("analysis complete")

	return result, nil
}
