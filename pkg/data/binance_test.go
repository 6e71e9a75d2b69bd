package data

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunogya/dipscope/pkg/model"
)

const klinesBody = `[
  [1700000000000,"100.0","101.0","99.0","100.5","12.5",1700000059999,"0",10,"0","0","0"],
  [1700000060000,"100.5","100.6","98.0","98.2","30",1700000119999,"0",20,"0","0","0"]
]`

func testFetcher(srv *httptest.Server) *KlineFetcher {
	f := NewKlineFetcher()
	f.BaseURL = srv.URL
	f.Client = srv.Client()
	return f
}

func TestKlineFetcher_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/klines", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "1m", r.URL.Query().Get("interval"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		w.Write([]byte(klinesBody))
	}))
	defer srv.Close()

	f := testFetcher(srv)
	bars, err := f.Fetch(context.Background(), "BTCUSDT", "1m", 2)
	require.NoError(t, err)
	require.Len(t, bars, 2)

	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), bars[0].Timestamp)
	assert.Equal(t, 100.5, bars[0].Close)
	assert.Equal(t, 98.0, bars[1].Low)
	assert.Equal(t, 30.0, bars[1].Volume)
	assert.Equal(t, "1m", bars[1].Timeframe)
}

func TestKlineFetcher_PagesBackwards(t *testing.T) {
	// server holds minutes 0..4 and honours limit and endTime
	const base = int64(1700000000000)
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		end := base + 4*60000
		if v := r.URL.Query().Get("endTime"); v != "" {
			end, _ = strconv.ParseInt(v, 10, 64)
		}

		var rows []string
		for ts := base; ts <= base+4*60000; ts += 60000 {
			if ts <= end {
				c := strconv.FormatInt((ts-base)/60000, 10)
				rows = append(rows, fmt.Sprintf(`[%d,"%s","%s","%s","%s","1"]`, ts, c, c, c, c))
			}
		}
		if len(rows) > limit {
			rows = rows[len(rows)-limit:]
		}
		w.Write([]byte("[" + strings.Join(rows, ",") + "]"))
	}))
	defer srv.Close()

	f := testFetcher(srv)
	f.PageSize = 2

	bars, err := f.Fetch(context.Background(), "BTCUSDT", "1m", 4)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4}, model.Closes(bars))
	assert.EqualValues(t, 2, requests.Load())

	bars, err = f.Fetch(context.Background(), "BTCUSDT", "1m", 10)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 2, 3, 4}, model.Closes(bars))
}

func TestKlineFetcher_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"code":-1121,"msg":"Invalid symbol."}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	f := testFetcher(srv)
	_, err := f.Fetch(context.Background(), "NOPE", "1m", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid symbol")
}

func TestWriteBarFile_ReadableByDirProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(klinesBody))
	}))
	defer srv.Close()

	f := testFetcher(srv)
	bars, err := f.Fetch(context.Background(), "BTCUSDT", "1m", 2)
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, WriteBarFile(filepath.Join(dir, "BTCUSDT-1m.csv.gz"), bars))

	p := NewDirProvider(DirConfig{Dir: dir, Symbol: "BTCUSDT", Timeframe: "1m"}, zerolog.Nop())
	loaded, err := p.FetchBars(context.Background(), "BTCUSDT", "1m")
	require.NoError(t, err)
	assert.Equal(t, bars, loaded)
	assert.Zero(t, p.Skipped())
}
