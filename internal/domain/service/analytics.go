package service

import (
	"context"

	"VNFlow/internal/domain/models"
)

// SymbolAnalyzer runs the full signal pipeline over one symbol's bar window:
// component detectors, composite classification, context adjustment, rule
// evaluation and risk metrics. Pure: identical inputs yield identical output.
type SymbolAnalyzer interface {
	Analyze(bars []models.PriceBar, meta *models.InstrumentMetadata) (*models.AnalysisResult, error)
}

// OverviewBuilder folds per-symbol results and failures into a market-wide
// overview. Insertion order of results must not affect the output. topN <= 0
// falls back to the calibrated default.
type OverviewBuilder interface {
	Build(results []*models.AnalysisResult, failures []models.AnalysisError, topN int) *models.MarketOverview
}

// AlertNotifier pushes noteworthy analysis results to an external channel.
// Implementations decide which results qualify; a nil-op implementation is
// valid when alerting is disabled.
type AlertNotifier interface {
	Notify(ctx context.Context, res *models.AnalysisResult) error
}
