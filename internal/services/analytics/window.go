package analytics

import (
	"fmt"
	"math"

	"VNFlow/internal/domain/models"
	domsvc "VNFlow/internal/domain/service"
)

// Window is a validated, chronologically ascending run of daily bars for one
// symbol. Every pipeline stage consumes the same window, so signal and risk
// always describe identical data.
type Window struct {
	Symbol string
	Bars   []models.PriceBar
}

// NewWindow validates bars against the calibrated minimum length, bar-level
// sanity and the date-ordering invariant. Detectors downstream assume all
// three hold and never re-check.
func NewWindow(bars []models.PriceBar, minWindow int) (*Window, error) {
	if len(bars) < minWindow {
		return nil, fmt.Errorf("%w: got %d bars, need %d", domsvc.ErrInsufficientData, len(bars), minWindow)
	}
	for i, b := range bars {
		if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
			return nil, fmt.Errorf("%w: non-positive price at %s", domsvc.ErrInvalidBar, b.Date.Format("2006-01-02"))
		}
		if b.Volume < 0 || b.ForeignBuy < 0 || b.ForeignSell < 0 {
			return nil, fmt.Errorf("%w: negative volume at %s", domsvc.ErrInvalidBar, b.Date.Format("2006-01-02"))
		}
		if b.High < b.Low {
			return nil, fmt.Errorf("%w: high below low at %s", domsvc.ErrInvalidBar, b.Date.Format("2006-01-02"))
		}
		if i > 0 && !bars[i-1].Date.Before(b.Date) {
			return nil, fmt.Errorf("%w: dates not strictly increasing at index %d", domsvc.ErrInsufficientData, i)
		}
	}
	return &Window{Symbol: bars[0].Symbol, Bars: bars}, nil
}

func (w *Window) Len() int { return len(w.Bars) }

func (w *Window) Last() models.PriceBar { return w.Bars[len(w.Bars)-1] }

// Closes returns the close series in window order.
func (w *Window) Closes() []float64 {
	out := make([]float64, len(w.Bars))
	for i, b := range w.Bars {
		out[i] = b.Close
	}
	return out
}

// clampScore pins a component or composite value into [0,100], mapping any
// non-finite intermediate to neutral so one degenerate series cannot poison
// a batch.
func clampScore(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 50
	}
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// clampTo bounds v to [-limit, limit].
func clampTo(v, limit float64) float64 {
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}
