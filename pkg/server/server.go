package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/tunogya/dipscope/pkg/data"
	"github.com/tunogya/dipscope/pkg/feature"
	"github.com/tunogya/dipscope/pkg/metrics"
	"github.com/tunogya/dipscope/pkg/pipeline"
	"github.com/tunogya/dipscope/pkg/window"
)

// Options configures the HTTP API
type Options struct {
	Source    string
	Symbol    string
	Timeframe string
	Params    feature.Params // defaults for /analysis and /dips
	TargetN   int            // default window for /dips
}

// Server exposes health, metrics, live dip checks and analysis over HTTP
type Server struct {
	echo     *echo.Echo
	provider data.BarProvider
	opts     Options
	logger   zerolog.Logger
	recorder *metrics.Recorder
	runner   *pipeline.Runner
}

type requestValidator struct {
	v *validator.Validate
}

func (rv *requestValidator) Validate(i any) error {
	return rv.v.Struct(i)
}

// New builds the echo instance and registers routes
func New(provider data.BarProvider, opts Options, logger zerolog.Logger, recorder *metrics.Recorder, gatherer prometheus.Gatherer) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = &requestValidator{v: validator.New()}
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(requestLogging(logger))

	var runRecorder pipeline.Recorder
	if recorder != nil {
		runRecorder = recorder
	}

	s := &Server{
		echo:     e,
		provider: provider,
		opts:     opts,
		logger:   logger.With().Str("component", "server").Logger(),
		recorder: recorder,
		runner:   pipeline.NewRunner(provider, opts.Source, logger, runRecorder),
	}

	e.GET("/health", s.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	e.GET("/dips", s.Dips)
	e.GET("/analysis", s.Analysis)
	return s
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("http server listening")
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.echo.Shutdown(shutdownCtx)
}

// Health reports liveness
func (s *Server) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"message": "OK"})
}

type dipsRequest struct {
	TargetN   int     `validate:"gte=2"`
	Threshold float64 `validate:"lt=0"`
}

// Dips checks whether the latest bars form a dip
func (s *Server) Dips(c echo.Context) error {
	req := &dipsRequest{TargetN: s.opts.TargetN, Threshold: s.opts.Params.DipThreshold}
	err := echo.QueryParamsBinder(c).
		Int("targetN", &req.TargetN).
		Float64("threshold", &req.Threshold).
		BindError()
	if err := validate(c, req, err); err != nil {
		return err
	}

	detector, err := window.NewDetector(req.TargetN, req.Threshold)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": err.Error()})
	}

	bars, err := s.provider.FetchLatestBars(c.Request().Context(), s.opts.Symbol, s.opts.Timeframe, req.TargetN)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to fetch latest bars")
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "failed to get bars, " + err.Error()})
	}

	signal, err := detector.Evaluate(bars)
	if err != nil {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"message": err.Error()})
	}
	isDip := signal != nil && signal.IsDip
	if s.recorder != nil {
		s.recorder.RecordDipCheck(isDip)
	}
	// 204 carries no body, so "not dip" is the status alone
	if !isDip {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "dip", "signal": signal})
}

type analysisRequest struct {
	Horizon   int     `validate:"gte=1"`
	Threshold float64 `validate:"lt=0"`
}

// Analysis runs the full pipeline over the stored bars
func (s *Server) Analysis(c echo.Context) error {
	req := &analysisRequest{Horizon: s.opts.Params.Horizon, Threshold: s.opts.Params.DipThreshold}
	err := echo.QueryParamsBinder(c).
		Int("horizon", &req.Horizon).
		Float64("threshold", &req.Threshold).
		BindError()
	if err := validate(c, req, err); err != nil {
		return err
	}
	params := feature.Params{Horizon: req.Horizon, DipThreshold: req.Threshold}

	result, err := s.runner.Run(c.Request().Context(), s.opts.Symbol, s.opts.Timeframe, params)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, result.Summary())
	case errors.Is(err, feature.ErrInvalidInput), errors.Is(err, feature.ErrDivisionByZero):
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"message": err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": err.Error()})
	}
}

func validate(c echo.Context, req any, bindErr error) error {
	if bindErr != nil {
		return echo.NewHTTPError(http.StatusBadRequest, bindErr.Error())
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// requestLogging tags every request with an X-Request-ID and logs it
func requestLogging(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			requestID := c.Request().Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.New().String()[:8]
			}
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			logger.Debug().
				Str("request_id", requestID).
				Str("method", req.Method).
				Str("uri", req.RequestURI).
				Int("status", c.Response().Status).
				Dur("latency", time.Since(start)).
				Msg("http request")
			return nil
		}
	}
}
