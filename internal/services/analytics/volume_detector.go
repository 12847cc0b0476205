package analytics

import (
	"math"

	"VNFlow/internal/domain/models"
	"VNFlow/pkg/config"
)

// Curve gains for the volume detector. The lookback itself is calibration
// data; these shape constants are part of the detector definition.
const (
	volumeExpansionGain   = 45.0
	volumeContractionGain = 15.0
	volumeLogScale        = 3.0
	volumeSaturatedLog    = 3.0
)

// VolumeDetector compares recent average volume against the longer baseline.
// Expansion on advancing prices reads as accumulation (> 50), expansion on
// declining prices as distribution (< 50); contraction is damped toward
// neutral because thin tape carries little information either way.
type VolumeDetector struct {
	recentBars int
}

func NewVolumeDetector(p config.DetectorParams) *VolumeDetector {
	return &VolumeDetector{recentBars: p.VolumeRecentBars}
}

func (d *VolumeDetector) Name() string { return models.ComponentVolume }

func (d *VolumeDetector) Score(w *Window) float64 {
	n := w.Len()
	r := d.recentBars
	if r*2 > n {
		r = n / 2
	}

	var base, recent float64
	for i, b := range w.Bars {
		if i < n-r {
			base += float64(b.Volume)
		} else {
			recent += float64(b.Volume)
		}
	}
	base /= float64(n - r)
	recent /= float64(r)

	var x float64
	switch {
	case base <= 0 && recent <= 0:
		return 50
	case base <= 0:
		x = volumeSaturatedLog
	default:
		x = math.Log(recent / base)
	}

	// Direction of price over the recent stretch decides which side of
	// neutral the expansion lands on.
	first := w.Bars[n-1-r].Close
	last := w.Bars[n-1].Close
	var dir float64
	if last > first {
		dir = 1
	} else if last < first {
		dir = -1
	}

	gain := volumeExpansionGain
	if x < 0 {
		gain = volumeContractionGain
	}
	return clampScore(50 + gain*math.Tanh(volumeLogScale*x)*dir)
}

var _ Detector = (*VolumeDetector)(nil)
