package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder collects pipeline and ingest metrics using Prometheus.
type Recorder struct {
	barsLoaded  *prometheus.CounterVec
	barsWritten prometheus.Counter
	batchErrors prometheus.Counter
	dipsFound   prometheus.Gauge
	fitOutcomes *prometheus.CounterVec
	lastSlope   prometheus.Gauge
	runDuration *prometheus.HistogramVec
	dipSignals  *prometheus.CounterVec
}

// New registers the metrics on reg. Pass prometheus.DefaultRegisterer in
// binaries and a fresh registry in tests.
func New(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		barsLoaded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dipscope_bars_loaded_total",
				Help: "Total number of bars loaded from a source",
			},
			[]string{"source"},
		),
		barsWritten: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "dipscope_bars_written_total",
				Help: "Total number of bars written to the store",
			},
		),
		batchErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "dipscope_batch_errors_total",
				Help: "Total number of bar batches that failed to decode or write",
			},
		),
		dipsFound: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dipscope_dips_last_run",
				Help: "Number of dip events found by the last analysis run",
			},
		),
		fitOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dipscope_fit_outcomes_total",
				Help: "Regression outcomes by result",
			},
			[]string{"result"},
		),
		lastSlope: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dipscope_regression_slope",
				Help: "Slope of the last successful dip regression",
			},
		),
		runDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dipscope_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		dipSignals: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dipscope_dip_checks_total",
				Help: "Live dip checks by outcome",
			},
			[]string{"dip"},
		),
	}
}

// RecordBarsLoaded records bars read from a source.
func (r *Recorder) RecordBarsLoaded(source string, n int) {
	r.barsLoaded.WithLabelValues(source).Add(float64(n))
}

// RecordBarsWritten records bars persisted by the writer.
func (r *Recorder) RecordBarsWritten(n int) {
	r.barsWritten.Add(float64(n))
}

// RecordBatchError records a failed batch.
func (r *Recorder) RecordBatchError() {
	r.batchErrors.Inc()
}

// RecordRun records the outcome of one analysis run. result is "ok",
// "insufficient_data" or "degenerate_fit".
func (r *Recorder) RecordRun(dips int, result string, slope float64) {
	r.dipsFound.Set(float64(dips))
	r.fitOutcomes.WithLabelValues(result).Inc()
	if result == "ok" {
		r.lastSlope.Set(slope)
	}
}

// RecordDipCheck records a live dip check.
func (r *Recorder) RecordDipCheck(isDip bool) {
	label := "false"
	if isDip {
		label = "true"
	}
	r.dipSignals.WithLabelValues(label).Inc()
}

// ObserveDuration records how long an operation took.
func (r *Recorder) ObserveDuration(operation string, start time.Time) {
	r.runDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
