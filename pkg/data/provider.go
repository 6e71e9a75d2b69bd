package data

import (
	"context"

	"github.com/tunogya/dipscope/pkg/model"
)

// BarProvider defines the interface for fetching an ordered bar sequence.
// Implementations return bars oldest first, in the source's own order.
// Empty symbol or timeframe matches any label.
type BarProvider interface {
	// FetchBars retrieves the whole bar sequence
	FetchBars(ctx context.Context, symbol, timeframe string) ([]model.Bar, error)

	// FetchLatestBars retrieves the most recent N bars
	FetchLatestBars(ctx context.Context, symbol, timeframe string, limit int) ([]model.Bar, error)
}

// MemoryProvider implements BarProvider with in-memory storage
type MemoryProvider struct {
	bars []model.Bar
}

// NewMemoryProvider creates a new in-memory bar provider
func NewMemoryProvider(bars []model.Bar) *MemoryProvider {
	return &MemoryProvider{
		bars: bars,
	}
}

// AddBars appends bars to the provider
func (p *MemoryProvider) AddBars(bars []model.Bar) {
	p.bars = append(p.bars, bars...)
}

// FetchBars retrieves all bars matching the labels
func (p *MemoryProvider) FetchBars(ctx context.Context, symbol, timeframe string) ([]model.Bar, error) {
	return filterBars(p.bars, symbol, timeframe), nil
}

// FetchLatestBars retrieves the most recent N bars
func (p *MemoryProvider) FetchLatestBars(ctx context.Context, symbol, timeframe string, limit int) ([]model.Bar, error) {
	return latest(filterBars(p.bars, symbol, timeframe), limit), nil
}

func filterBars(bars []model.Bar, symbol, timeframe string) []model.Bar {
	var result []model.Bar
	for _, b := range bars {
		if symbol != "" && b.Symbol != "" && b.Symbol != symbol {
			continue
		}
		if timeframe != "" && b.Timeframe != "" && b.Timeframe != timeframe {
			continue
		}
		result = append(result, b)
	}
	return result
}

func latest(bars []model.Bar, limit int) []model.Bar {
	if limit <= 0 || len(bars) <= limit {
		return bars
	}
	return bars[len(bars)-limit:]
}
