package analytics

import (
	"VNFlow/internal/domain/models"
	domsvc "VNFlow/internal/domain/service"
	"VNFlow/pkg/config"
)

// Detector is one independent component scorer. Implementations must be pure
// and must not fail on a validated window.
type Detector interface {
	Name() string
	Score(w *Window) float64
}

// Engine is the full signal pipeline for one symbol: validate the window, run
// the detectors, blend, adjust for market context, classify on the adjusted
// score, then derive triggers, sizing and risk. All state is calibration
// loaded at construction; Analyze itself is pure.
type Engine struct {
	cal       *config.Calibration
	detectors []Detector
	scorer    *CompositeScorer
	adjuster  *ContextAdjuster
	rules     *RuleEngine
	risk      *RiskAnalyzer
}

func NewEngine(cal *config.Calibration) *Engine {
	return &Engine{
		cal: cal,
		detectors: []Detector{
			NewVolumeDetector(cal.Detectors),
			NewPriceActionDetector(cal.Detectors),
			NewMomentumDetector(cal.Detectors),
			NewAccumulationDetector(cal.Detectors),
		},
		scorer:   NewCompositeScorer(cal),
		adjuster: NewContextAdjuster(cal),
		rules:    NewRuleEngine(cal),
		risk:     NewRiskAnalyzer(cal),
	}
}

func (e *Engine) Analyze(bars []models.PriceBar, meta *models.InstrumentMetadata) (*models.AnalysisResult, error) {
	w, err := NewWindow(bars, e.cal.MinWindow)
	if err != nil {
		return nil, err
	}

	components := make([]models.ComponentScore, 0, len(e.detectors))
	for _, d := range e.detectors {
		components = append(components, models.ComponentScore{Name: d.Name(), Value: d.Score(w)})
	}

	composite := e.scorer.Combine(components)
	market := e.adjuster.Adjust(composite, meta, w)
	class, strength := e.scorer.Classify(market.AdjustedScore)

	return &models.AnalysisResult{
		Symbol: w.Symbol,
		AsOf:   w.Last().Date,
		Bars:   w.Len(),
		Composite: models.CompositeResult{
			Score:      composite,
			Class:      class,
			Strength:   strength,
			Action:     class.Action(),
			Components: components,
		},
		Context: market,
		Signals: e.rules.Evaluate(market.AdjustedScore, components),
		Risk:    e.risk.Profile(w),
	}, nil
}

var _ domsvc.SymbolAnalyzer = (*Engine)(nil)
