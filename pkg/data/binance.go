package data

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/tunogya/dipscope/pkg/model"
)

// BinanceBaseURL is the public spot REST endpoint
const BinanceBaseURL = "https://api.binance.com"

// maxKlinesPerRequest is the server-side cap on one klines request
const maxKlinesPerRequest = 1000

// KlineFetcher downloads klines from the Binance REST API. Requests are
// rate limited and go through a circuit breaker so a failing endpoint
// is not hammered while paging.
type KlineFetcher struct {
	BaseURL  string
	Client   *http.Client
	PageSize int

	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewKlineFetcher creates a fetcher against the public endpoint
func NewKlineFetcher() *KlineFetcher {
	return &KlineFetcher{
		BaseURL:  BinanceBaseURL,
		Client:   &http.Client{Timeout: 30 * time.Second},
		PageSize: maxKlinesPerRequest,
		limiter:  rate.NewLimiter(rate.Limit(5), 1),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "binance-klines",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
	}
}

// Fetch returns the latest limit klines, oldest first. Limits above the
// page size are served by paging backwards in time.
func (f *KlineFetcher) Fetch(ctx context.Context, symbol, interval string, limit int) ([]model.Bar, error) {
	pageSize := f.PageSize
	if pageSize <= 0 || pageSize > maxKlinesPerRequest {
		pageSize = maxKlinesPerRequest
	}

	var bars []model.Bar
	var endTime int64 // zero means now
	for len(bars) < limit {
		want := min(pageSize, limit-len(bars))
		page, err := f.fetchPage(ctx, symbol, interval, want, endTime)
		if err != nil {
			return nil, err
		}
		bars = append(page, bars...)
		if len(page) < want {
			break
		}
		endTime = page[0].Timestamp.UnixMilli() - 1
	}
	return bars, nil
}

func (f *KlineFetcher) fetchPage(ctx context.Context, symbol, interval string, limit int, endTime int64) ([]model.Bar, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	q.Set("limit", strconv.Itoa(limit))
	if endTime > 0 {
		q.Set("endTime", strconv.FormatInt(endTime, 10))
	}

	res, err := f.breaker.Execute(func() (interface{}, error) {
		return f.get(ctx, f.BaseURL+"/api/v3/klines?"+q.Encode())
	})
	if err != nil {
		return nil, err
	}
	return decodeKlines(res.([]byte), symbol, interval)
}

func (f *KlineFetcher) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch klines: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("binance returned %d: %.512s", resp.StatusCode, body)
	}
	return body, nil
}

// decodeKlines parses the array-of-arrays payload:
// [0] open time ms, [1] open, [2] high, [3] low, [4] close, [5] volume, ...
func decodeKlines(body []byte, symbol, interval string) ([]model.Bar, error) {
	var klines [][]json.RawMessage
	if err := json.Unmarshal(body, &klines); err != nil {
		return nil, fmt.Errorf("failed to parse klines: %w", err)
	}

	bars := make([]model.Bar, 0, len(klines))
	for i, k := range klines {
		if len(k) < 6 {
			return nil, fmt.Errorf("kline %d has %d fields", i, len(k))
		}
		var openTime int64
		if err := json.Unmarshal(k[0], &openTime); err != nil {
			return nil, fmt.Errorf("kline %d open time: %w", i, err)
		}
		var fields [5]float64
		for j := range fields {
			var s string
			if err := json.Unmarshal(k[j+1], &s); err != nil {
				return nil, fmt.Errorf("kline %d field %d: %w", i, j+1, err)
			}
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("kline %d field %d: %w", i, j+1, err)
			}
			fields[j] = v
		}
		bars = append(bars, model.Bar{
			Symbol:    symbol,
			Timeframe: interval,
			Timestamp: time.UnixMilli(openTime).UTC(),
			Open:      fields[0],
			High:      fields[1],
			Low:       fields[2],
			Close:     fields[3],
			Volume:    fields[4],
		})
	}
	return bars, nil
}

// WriteBars writes bars as CSV in the Columns layout with a header row
func WriteBars(w io.Writer, bars []model.Bar) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, b := range bars {
		row := []string{
			strconv.FormatInt(b.Timestamp.UnixMilli(), 10),
			strconv.FormatFloat(b.Open, 'f', -1, 64),
			strconv.FormatFloat(b.High, 'f', -1, 64),
			strconv.FormatFloat(b.Low, 'f', -1, 64),
			strconv.FormatFloat(b.Close, 'f', -1, 64),
			strconv.FormatFloat(b.Volume, 'f', -1, 64),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteBarFile writes bars to a gzip-compressed CSV file, creating the
// parent directory as needed
func WriteBarFile(path string, bars []model.Bar) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	zw := gzip.NewWriter(file)
	if err := WriteBars(zw, bars); err != nil {
		return fmt.Errorf("failed to write bars: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to flush gzip: %w", err)
	}
	return file.Close()
}
