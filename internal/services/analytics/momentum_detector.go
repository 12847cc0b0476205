package analytics

import (
	"math"

	"VNFlow/internal/domain/models"
	"VNFlow/pkg/config"
)

// Term weights and squash scales for the momentum detector. Scales are tuned
// so typical daily-bar rates land in the responsive part of tanh.
const (
	momentumShortWeight = 20.0
	momentumLongWeight  = 20.0
	divergenceWeight    = 10.0
	momentumShortScale  = 12.0
	momentumLongScale   = 6.0
	divergenceScale     = 200.0
)

// MomentumDetector blends short- and long-lookback rate of change with a
// divergence term that rewards acceleration (short outrunning long) and
// penalizes fading momentum.
type MomentumDetector struct {
	shortBars int
	longBars  int
}

func NewMomentumDetector(p config.DetectorParams) *MomentumDetector {
	return &MomentumDetector{shortBars: p.MomentumShortBars, longBars: p.MomentumLongBars}
}

func (d *MomentumDetector) Name() string { return models.ComponentMomentum }

func (d *MomentumDetector) Score(w *Window) float64 {
	n := w.Len()
	short := d.shortBars
	long := d.longBars
	if short > n-1 {
		short = n - 1
	}
	if long > n-1 {
		long = n - 1
	}

	rocShort := rateOfChange(w.Bars, short)
	rocLong := rateOfChange(w.Bars, long)

	score := 50 +
		momentumShortWeight*math.Tanh(momentumShortScale*rocShort) +
		momentumLongWeight*math.Tanh(momentumLongScale*rocLong)

	// Per-bar rates make the divergence comparable across lookbacks.
	if short > 0 && long > short {
		div := rocShort/float64(short) - rocLong/float64(long)
		score += divergenceWeight * math.Tanh(divergenceScale*div)
	}
	return clampScore(score)
}

// rateOfChange is the fractional close change over the trailing span bars.
func rateOfChange(bars []models.PriceBar, span int) float64 {
	if span <= 0 {
		return 0
	}
	last := bars[len(bars)-1].Close
	ref := bars[len(bars)-1-span].Close
	if ref <= 0 {
		return 0
	}
	return last/ref - 1
}

var _ Detector = (*MomentumDetector)(nil)
