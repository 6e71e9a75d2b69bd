package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunogya/dipscope/pkg/data"
	"github.com/tunogya/dipscope/pkg/feature"
	"github.com/tunogya/dipscope/pkg/metrics"
	"github.com/tunogya/dipscope/pkg/model"
)

func barsFromCloses(closes ...float64) []model.Bar {
	bars := make([]model.Bar, len(closes))
	for i, c := range closes {
		bars[i] = model.Bar{
			Symbol:    "BTCUSDT",
			Timeframe: "1m",
			Timestamp: time.Unix(int64(i)*60, 0).UTC(),
			Close:     c,
		}
	}
	return bars
}

func newTestServer(t *testing.T, closes ...float64) (*Server, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	opts := Options{
		Source:    "memory",
		Symbol:    "BTCUSDT",
		Timeframe: "1m",
		Params:    feature.DefaultParams(),
		TargetN:   2,
	}
	s := New(data.NewMemoryProvider(barsFromCloses(closes...)), opts, zerolog.Nop(), metrics.New(reg), reg)
	return s, reg
}

func get(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, 100, 101)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	c := s.echo.NewContext(req, rec)

	require.NoError(t, s.Health(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"OK"}`, rec.Body.String())
}

func TestRequestID(t *testing.T) {
	s, _ := newTestServer(t, 100, 101)

	rec := get(t, s, "/health")
	assert.Len(t, rec.Header().Get("X-Request-ID"), 8)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "abc", rec.Header().Get("X-Request-ID"))
}

func TestDips(t *testing.T) {
	tests := []struct {
		name   string
		closes []float64
		target string
		status int
	}{
		{"drop below threshold", []float64{100, 101, 99}, "/dips", http.StatusOK},
		{"rise", []float64{100, 99, 101}, "/dips", http.StatusNoContent},
		{"exactly at threshold", []float64{100, 99}, "/dips", http.StatusNoContent},
		{"wider window", []float64{100, 99.5, 98.5}, "/dips?targetN=3", http.StatusOK},
		{"custom threshold", []float64{100, 98}, "/dips?threshold=-0.05", http.StatusNoContent},
		{"not enough bars", []float64{100}, "/dips", http.StatusNoContent},
		{"zero close", []float64{0, 1}, "/dips", http.StatusUnprocessableEntity},
		{"targetN too small", []float64{100, 99}, "/dips?targetN=1", http.StatusBadRequest},
		{"positive threshold", []float64{100, 99}, "/dips?threshold=0.01", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, tt.closes...)
			rec := get(t, s, tt.target)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestDips_BodyAndMetrics(t *testing.T) {
	s, reg := newTestServer(t, 100, 98)

	rec := get(t, s, "/dips")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Message string `json:"message"`
		Signal  struct {
			Ratio float64 `json:"ratio"`
			IsDip bool    `json:"is_dip"`
		} `json:"signal"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "dip", body.Message)
	assert.True(t, body.Signal.IsDip)
	assert.InDelta(t, -0.02, body.Signal.Ratio, 1e-12)

	count, err := testutil.GatherAndCount(reg, "dipscope_dip_checks_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestAnalysis(t *testing.T) {
	// dips at 0 and 2, both followed by a bounce
	s, _ := newTestServer(t, 100, 98, 99, 97, 99.5, 100)

	rec := get(t, s, "/analysis")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Horizon    int    `json:"horizon"`
		Bars       int    `json:"bars"`
		Dips       int    `json:"dips"`
		FitStatus  string `json:"fit_status"`
		Regression *struct {
			Slope      float64 `json:"slope"`
			SampleSize int     `json:"sample_size"`
		} `json:"regression"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Horizon)
	assert.Equal(t, 6, body.Bars)
	assert.Equal(t, 2, body.Dips)
	assert.Equal(t, "ok", body.FitStatus)
	require.NotNil(t, body.Regression)
	assert.Equal(t, 2, body.Regression.SampleSize)
}

func TestAnalysis_RecoverableFitError(t *testing.T) {
	s, _ := newTestServer(t, 100, 99, 97, 98, 101)

	rec := get(t, s, "/analysis")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "insufficient_data", body["fit_status"])
	assert.NotContains(t, body, "regression")
	assert.NotEmpty(t, body["reason"])
}

func TestAnalysis_FatalErrors(t *testing.T) {
	s, _ := newTestServer(t, 100, 0, 5)
	rec := get(t, s, "/analysis")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	s, _ = newTestServer(t, 100, 99)
	rec = get(t, s, "/analysis?horizon=2")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = get(t, s, "/analysis?horizon=0")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(t, s, "/analysis?horizon=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, 100, 98)
	get(t, s, "/dips")

	rec := get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "dipscope_dip_checks_total")
}
