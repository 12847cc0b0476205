package analytics

import (
	"VNFlow/internal/domain/models"
	"VNFlow/internal/services/features"
	"VNFlow/pkg/config"
)

// RiskAnalyzer computes realized risk from the same validated window the
// detectors consumed: annualized log-return volatility and max drawdown,
// both in percent.
type RiskAnalyzer struct {
	barsPerYear float64
}

func NewRiskAnalyzer(cal *config.Calibration) *RiskAnalyzer {
	return &RiskAnalyzer{barsPerYear: float64(cal.TradingDaysPerYear)}
}

func (r *RiskAnalyzer) Profile(w *Window) models.RiskProfile {
	returns := features.ComputeLogReturns(w.Bars)
	return models.RiskProfile{
		AnnualizedVolatility: features.AnnualizedVolatility(returns, r.barsPerYear) * 100,
		MaxDrawdown:          features.MaxDrawdown(w.Bars) * 100,
	}
}
