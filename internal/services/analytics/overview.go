package analytics

import (
	"sort"
	"time"

	"VNFlow/internal/domain/models"
	domsvc "VNFlow/internal/domain/service"
	"VNFlow/pkg/config"
)

// OverviewBuilder folds per-symbol results into the market-wide view. Pure
// and order-independent: results are re-sorted internally, so the worker
// completion order upstream never shows through.
type OverviewBuilder struct {
	params config.OverviewParams
}

func NewOverviewBuilder(cal *config.Calibration) *OverviewBuilder {
	return &OverviewBuilder{params: cal.Overview}
}

func (o *OverviewBuilder) Build(results []*models.AnalysisResult, failures []models.AnalysisError, topN int) *models.MarketOverview {
	scored := make([]models.ScoredSymbol, 0, len(results))
	counts := make(map[models.SignalClass]int, 5)
	var meanScore float64
	var generatedAt time.Time

	for _, r := range results {
		scored = append(scored, models.ScoredSymbol{
			Symbol: r.Symbol,
			Score:  r.Context.AdjustedScore,
			Class:  r.Composite.Class,
		})
		counts[r.Composite.Class]++
		meanScore += r.Context.AdjustedScore
		if r.AsOf.After(generatedAt) {
			generatedAt = r.AsOf
		}
	}

	// Rank: score descending, symbol ascending on ties.
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Symbol < scored[j].Symbol
	})

	var strong, weak []models.ScoredSymbol
	for _, s := range scored {
		if s.Score >= o.params.StrongThreshold {
			strong = append(strong, s)
		}
		if s.Score <= o.params.WeakThreshold {
			weak = append(weak, s)
		}
	}
	// Weakest first.
	sort.Slice(weak, func(i, j int) bool {
		if weak[i].Score != weak[j].Score {
			return weak[i].Score < weak[j].Score
		}
		return weak[i].Symbol < weak[j].Symbol
	})

	if topN <= 0 {
		topN = o.params.TopN
	}
	if topN > len(scored) {
		topN = len(scored)
	}

	sentiment := models.SentimentNeutral
	if len(scored) > 0 {
		meanScore /= float64(len(scored))
		switch {
		case meanScore >= o.params.BullishMean:
			sentiment = models.SentimentBullish
		case meanScore <= o.params.BearishMean:
			sentiment = models.SentimentBearish
		}
	}

	sortedFailures := append([]models.AnalysisError(nil), failures...)
	sort.Slice(sortedFailures, func(i, j int) bool {
		return sortedFailures[i].Symbol < sortedFailures[j].Symbol
	})

	return &models.MarketOverview{
		GeneratedAt: generatedAt,
		Universe:    len(results) + len(failures),
		Analyzed:    len(results),
		Sentiment:   sentiment,
		MeanScore:   meanScore,
		ClassCounts: counts,
		Strong:      strong,
		Weak:        weak,
		TopPicks:    scored[:topN],
		Failures:    sortedFailures,
	}
}

var _ domsvc.OverviewBuilder = (*OverviewBuilder)(nil)
