package data

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tunogya/dipscope/pkg/model"
)

// Columns is the fixed column layout of a bar file. The header row of
// each file is discarded and these names are used instead.
var Columns = []string{"timestamp", "open", "high", "low", "close", "volume"}

// DirConfig holds configuration for a directory-backed provider
type DirConfig struct {
	Dir         string // Directory holding bar files
	Pattern     string // Glob for file names (e.g. "*.csv.gz")
	Symbol      string // Label attached to every loaded bar
	Timeframe   string // Label attached to every loaded bar
	Concurrency int    // Files parsed in parallel (defaults to 4)
}

// DirProvider implements BarProvider over a directory of CSV files.
//
// Files are concatenated in file-name order (byte-wise, stable). Each
// file's rows keep their order. Parsing runs concurrently, but results
// are assembled by sorted file position so indices never depend on
// scheduling.
type DirProvider struct {
	cfg    DirConfig
	logger zerolog.Logger

	mu      sync.Mutex
	bars    []model.Bar
	sources []Source
	loaded  bool
	files   int
	skipped int
}

// Source is the parsed content of one bar file. Name is the file's base
// name and Bars keeps the file's row order.
type Source struct {
	Name string
	Bars []model.Bar
}

// NewDirProvider creates a new directory-backed bar provider
func NewDirProvider(cfg DirConfig, logger zerolog.Logger) *DirProvider {
	if cfg.Pattern == "" {
		cfg.Pattern = "*.csv.gz"
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &DirProvider{
		cfg:    cfg,
		logger: logger.With().Str("component", "dir_provider").Logger(),
	}
}

// DiscoverFiles lists the files matching pattern in dir, sorted by file name
func DiscoverFiles(dir, pattern string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("failed to match %q: %w", pattern, err)
	}

	var files []string
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", m, err)
		}
		if info.Mode().IsRegular() {
			files = append(files, m)
		}
	}

	sort.SliceStable(files, func(i, j int) bool {
		return filepath.Base(files[i]) < filepath.Base(files[j])
	})
	return files, nil
}

// loadIfNeeded loads every file once
func (p *DirProvider) loadIfNeeded(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.loaded {
		return nil
	}

	files, err := DiscoverFiles(p.cfg.Dir, p.cfg.Pattern)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no files matching %q in %s", p.cfg.Pattern, p.cfg.Dir)
	}

	perFile := make([][]model.Bar, len(files))
	skipped := make([]int, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			bars, bad, err := p.parseFile(path)
			if err != nil {
				return err
			}
			perFile[i] = bars
			skipped[i] = bad
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	total := 0
	for _, bars := range perFile {
		total += len(bars)
	}
	p.bars = make([]model.Bar, 0, total)
	p.sources = make([]Source, len(files))
	for i, bars := range perFile {
		p.bars = append(p.bars, bars...)
		p.sources[i] = Source{Name: filepath.Base(files[i]), Bars: bars}
		p.skipped += skipped[i]
	}
	p.files = len(files)
	p.loaded = true

	p.logger.Info().
		Int("files", p.files).
		Int("bars", len(p.bars)).
		Int("skipped", p.skipped).
		Msg("bar files loaded")
	return nil
}

// parseFile reads one bar file, transparently decompressing .gz
func (p *DirProvider) parseFile(path string) ([]model.Bar, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open bar file: %w", err)
	}
	defer file.Close()

	var src io.Reader = file
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(file)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to open gzip stream %s: %w", path, err)
		}
		defer gz.Close()
		src = gz
	}

	bars, skipped, err := ParseBars(src, p.cfg.Symbol, p.cfg.Timeframe)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if skipped > 0 {
		p.logger.Warn().Str("file", filepath.Base(path)).Int("skipped", skipped).Msg("skipped unparseable rows")
	}
	return bars, skipped, nil
}

// ParseBars reads bars from CSV in the fixed column layout. The first row
// is treated as a header and dropped. Rows that cannot be parsed are
// skipped and counted.
func ParseBars(r io.Reader, symbol, timeframe string) ([]model.Bar, int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	// Read header
	if _, err := reader.Read(); err != nil {
		if err == io.EOF {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("failed to read CSV header: %w", err)
	}

	var bars []model.Bar
	skipped := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("failed to read CSV record: %w", err)
		}

		bar, err := parseRecord(record)
		if err != nil {
			skipped++
			continue
		}
		bar.Symbol = symbol
		bar.Timeframe = timeframe
		bars = append(bars, bar)
	}

	return bars, skipped, nil
}

// parseRecord parses a CSV record into a Bar
func parseRecord(record []string) (model.Bar, error) {
	if len(record) < len(Columns) {
		return model.Bar{}, fmt.Errorf("expected %d columns, got %d", len(Columns), len(record))
	}

	ts, err := ParseTimestamp(record[0])
	if err != nil {
		return model.Bar{}, err
	}

	values := make([]float64, 5)
	for i := range values {
		v, err := strconv.ParseFloat(strings.TrimSpace(record[i+1]), 64)
		if err != nil {
			return model.Bar{}, fmt.Errorf("invalid %s: %w", Columns[i+1], err)
		}
		values[i] = v
	}

	return model.Bar{
		Timestamp: ts,
		Open:      values[0],
		High:      values[1],
		Low:       values[2],
		Close:     values[3],
		Volume:    values[4],
	}, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses an epoch number or one of the common date layouts.
// Epoch numbers are microseconds when >= 1e15, milliseconds when >= 1e12
// and seconds otherwise.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		switch {
		case n >= 1e15:
			return time.UnixMicro(int64(n)).UTC(), nil
		case n >= 1e12:
			return time.UnixMilli(int64(n)).UTC(), nil
		}
		return time.Unix(int64(n), 0).UTC(), nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// FetchBars retrieves all loaded bars
func (p *DirProvider) FetchBars(ctx context.Context, symbol, timeframe string) ([]model.Bar, error) {
	if err := p.loadIfNeeded(ctx); err != nil {
		return nil, err
	}
	return filterBars(p.bars, symbol, timeframe), nil
}

// FetchLatestBars retrieves the most recent N bars
func (p *DirProvider) FetchLatestBars(ctx context.Context, symbol, timeframe string, limit int) ([]model.Bar, error) {
	if err := p.loadIfNeeded(ctx); err != nil {
		return nil, err
	}
	return latest(filterBars(p.bars, symbol, timeframe), limit), nil
}

// Sources returns the loaded files in load order. Concatenating their bars
// yields the FetchBars series.
func (p *DirProvider) Sources(ctx context.Context) ([]Source, error) {
	if err := p.loadIfNeeded(ctx); err != nil {
		return nil, err
	}
	return p.sources, nil
}

// Skipped returns the number of rows dropped while loading
func (p *DirProvider) Skipped() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.skipped
}

// Files returns the number of files loaded
func (p *DirProvider) Files() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.files
}
