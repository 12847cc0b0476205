package analytics

import (
	"VNFlow/internal/domain/models"
	"VNFlow/pkg/config"
)

// CompositeScorer blends component scores with calibrated weights and maps
// adjusted scores onto the calibrated class bands. Both halves read pure
// calibration data; recalibrating never touches this code.
type CompositeScorer struct {
	weights config.Weights
	bands   []config.Band
	tiers   config.StrengthTiers
}

func NewCompositeScorer(cal *config.Calibration) *CompositeScorer {
	return &CompositeScorer{weights: cal.Weights, bands: cal.Bands, tiers: cal.Strength}
}

// Combine folds the four component scores into the raw composite. Components
// arrive in canonical order; the fold is explicit so output never depends on
// map iteration.
func (s *CompositeScorer) Combine(components []models.ComponentScore) float64 {
	var sum float64
	for _, c := range components {
		sum += s.weight(c.Name) * c.Value
	}
	return clampScore(sum)
}

func (s *CompositeScorer) weight(name string) float64 {
	switch name {
	case models.ComponentVolume:
		return s.weights.Volume
	case models.ComponentPriceAction:
		return s.weights.PriceAction
	case models.ComponentMomentum:
		return s.weights.Momentum
	case models.ComponentAccumulation:
		return s.weights.Accumulation
	}
	return 0
}

// Classify maps an adjusted score to its band and grades strength by the
// distance to the nearer band edge: scores hugging a boundary are WEAK, band
// centers are STRONG.
func (s *CompositeScorer) Classify(score float64) (models.SignalClass, models.SignalStrength) {
	band := s.bands[len(s.bands)-1]
	for _, b := range s.bands {
		if score >= b.Min && score < b.Max {
			band = b
			break
		}
	}

	half := (band.Max - band.Min) / 2
	var depth float64
	if half > 0 {
		edge := score - band.Min
		if band.Max-score < edge {
			edge = band.Max - score
		}
		depth = edge / half
	}

	strength := models.Weak
	switch {
	case depth >= s.tiers.StrongMin:
		strength = models.Strong
	case depth >= s.tiers.ModerateMin:
		strength = models.Moderate
	}
	return models.SignalClass(band.Class), strength
}
