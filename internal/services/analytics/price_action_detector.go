package analytics

import (
	"math"

	"VNFlow/internal/domain/models"
	"VNFlow/pkg/config"
)

// Term weights for the price-action detector.
const (
	persistenceWeight = 30.0
	efficiencyWeight  = 20.0
)

// PriceActionDetector reads directional persistence straight off the closes:
// the fraction of up-days among moving days, and how efficiently price
// traveled (net move over path length). Volume never enters.
type PriceActionDetector struct{}

func NewPriceActionDetector(config.DetectorParams) *PriceActionDetector {
	return &PriceActionDetector{}
}

func (d *PriceActionDetector) Name() string { return models.ComponentPriceAction }

func (d *PriceActionDetector) Score(w *Window) float64 {
	var ups, downs int
	var path float64
	bars := w.Bars
	for i := 1; i < len(bars); i++ {
		delta := bars[i].Close - bars[i-1].Close
		switch {
		case delta > 0:
			ups++
		case delta < 0:
			downs++
		}
		path += math.Abs(delta)
	}

	// Flat days carry no direction, so a dead-flat series stays neutral
	// instead of reading as persistent weakness.
	var persistence float64
	if moving := ups + downs; moving > 0 {
		persistence = 2*float64(ups)/float64(moving) - 1
	}

	var efficiency float64
	if path > 0 {
		efficiency = (bars[len(bars)-1].Close - bars[0].Close) / path
	}

	return clampScore(50 + persistenceWeight*persistence + efficiencyWeight*efficiency)
}

var _ Detector = (*PriceActionDetector)(nil)
