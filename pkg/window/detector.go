package window

import (
	"fmt"
	"sync"

	"github.com/tunogya/dipscope/pkg/feature"
	"github.com/tunogya/dipscope/pkg/model"
)

// Signal is the outcome of a dip check over the latest TargetN bars
type Signal struct {
	Ratio  float64   `json:"ratio"`  // (latest - oldest) / oldest close
	IsDip  bool      `json:"is_dip"` // Ratio strictly below the threshold
	Oldest model.Bar `json:"oldest"`
	Latest model.Bar `json:"latest"`
}

// Detector watches a stream of bars and flags drops across the last
// TargetN bars. It is the live counterpart of the batch dip selector:
// with TargetN = horizon+1 the ratio equals the volatility of the bar
// horizon steps back.
type Detector struct {
	TargetN   int
	Threshold float64

	mu     sync.Mutex
	recent *Ring[model.Bar]
}

// NewDetector creates a detector comparing the newest close against the
// close targetN-1 bars earlier
func NewDetector(targetN int, threshold float64) (*Detector, error) {
	if targetN < 2 {
		return nil, fmt.Errorf("%w: targetN must be at least 2, got %d", feature.ErrInvalidInput, targetN)
	}
	return &Detector{
		TargetN:   targetN,
		Threshold: threshold,
		recent:    NewRing[model.Bar](targetN),
	}, nil
}

// Push adds a bar and returns a signal once TargetN bars are buffered
func (d *Detector) Push(b model.Bar) (*Signal, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.recent.Push(b)
	if !d.recent.Full() {
		return nil, nil
	}
	return d.evaluate()
}

// Evaluate checks a complete batch of bars, oldest first, using only the
// last TargetN of them. Fewer bars than TargetN is not a dip.
func (d *Detector) Evaluate(bars []model.Bar) (*Signal, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.recent.Reset()
	if len(bars) < d.TargetN {
		return nil, nil
	}
	for _, b := range bars[len(bars)-d.TargetN:] {
		d.recent.Push(b)
	}
	return d.evaluate()
}

// Reset clears buffered bars
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.recent.Reset()
}

func (d *Detector) evaluate() (*Signal, error) {
	oldest, _ := d.recent.Oldest()
	latest, _ := d.recent.Newest()
	if oldest.Close == 0 {
		return nil, fmt.Errorf("%w: oldest close in window is zero", feature.ErrDivisionByZero)
	}

	ratio := (latest.Close - oldest.Close) / oldest.Close
	return &Signal{
		Ratio:  ratio,
		IsDip:  ratio < d.Threshold,
		Oldest: oldest,
		Latest: latest,
	}, nil
}
