package analytics

import (
	"VNFlow/internal/domain/models"
	"VNFlow/pkg/config"
)

// Gain for the accumulation/distribution trend. The trend ratio is already
// bounded to [-1,1], so 50 maps the full range onto [0,100] without a squash.
const accumulationTrendGain = 50.0

// AccumulationDetector runs a cumulative money-flow line: each bar's volume
// weighted by where the close sits inside the high-low range. A line climbing
// relative to traded volume means buyers absorb supply near the highs.
type AccumulationDetector struct{}

func NewAccumulationDetector(config.DetectorParams) *AccumulationDetector {
	return &AccumulationDetector{}
}

func (d *AccumulationDetector) Name() string { return models.ComponentAccumulation }

func (d *AccumulationDetector) Score(w *Window) float64 {
	var line, totalVolume float64
	for _, b := range w.Bars {
		rng := b.High - b.Low
		if rng <= 0 || b.Volume == 0 {
			continue
		}
		multiplier := ((b.Close - b.Low) - (b.High - b.Close)) / rng
		line += multiplier * float64(b.Volume)
		totalVolume += float64(b.Volume)
	}
	if totalVolume <= 0 {
		return 50
	}
	return clampScore(50 + accumulationTrendGain*(line/totalVolume))
}

var _ Detector = (*AccumulationDetector)(nil)
