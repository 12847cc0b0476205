package analytics

import (
	"math"

	"VNFlow/internal/domain/models"
	"VNFlow/pkg/config"
)

// Factor names reported in MarketContext. Stable: tests and downstream
// consumers key on them.
const (
	FactorSectorBias  = "sector_bias"
	FactorForeignRoom = "foreign_room"
	FactorExchange    = "exchange_liquidity"
	FactorLargeCap    = "large_cap"
	FactorMicroCap    = "micro_cap"
	FactorForeignFlow = "foreign_flow"
)

// ContextAdjuster applies Vietnamese-market frictions on top of the raw
// composite: sector sentiment, foreign-ownership room, exchange liquidity,
// capitalization tier, and recent foreign net flow. Every applied factor is
// itemized so the accounting is checkable: adjusted equals the clamped sum of
// composite plus factors.
type ContextAdjuster struct {
	params   config.ContextParams
	flowBars int
}

func NewContextAdjuster(cal *config.Calibration) *ContextAdjuster {
	return &ContextAdjuster{params: cal.Context, flowBars: cal.Detectors.ForeignFlowBars}
}

// Adjust builds the market context for one analysis. A nil meta degrades to
// window-derived factors only; it is never an error.
func (a *ContextAdjuster) Adjust(composite float64, meta *models.InstrumentMetadata, w *Window) models.MarketContext {
	var factors []models.AdjustmentFactor
	add := func(name string, v float64) {
		if v != 0 {
			factors = append(factors, models.AdjustmentFactor{Name: name, Value: v})
		}
	}

	if meta != nil {
		add(FactorSectorBias, a.params.SectorBias[meta.Sector])
		for _, s := range a.params.RestrictedSectors {
			if s == meta.Sector {
				add(FactorForeignRoom, -a.params.RestrictedPenalty)
				break
			}
		}
		add(FactorExchange, a.params.ExchangeBias[meta.Exchange])
		if meta.MarketCap >= a.params.LargeCapFloor {
			add(FactorLargeCap, a.params.LargeCapBonus)
		} else if meta.MarketCap > 0 && meta.MarketCap < a.params.MicroCapCeiling {
			add(FactorMicroCap, -a.params.MicroCapPenalty)
		}
	}

	add(FactorForeignFlow, a.foreignFlow(w))

	// Cap the total by scaling factors proportionally, so the itemized sum
	// still reconciles with the applied delta.
	var total float64
	for _, f := range factors {
		total += f.Value
	}
	if limit := a.params.MaxAdjustment; math.Abs(total) > limit && total != 0 {
		scale := limit / math.Abs(total)
		for i := range factors {
			factors[i].Value *= scale
		}
		total = clampTo(total, limit)
	}

	return models.MarketContext{
		AdjustedScore: clampScore(composite + total),
		Factors:       factors,
	}
}

// foreignFlow reads net foreign buying over the recent stretch, normalized by
// gross foreign turnover. Zero when the feed carries no foreign data.
func (a *ContextAdjuster) foreignFlow(w *Window) float64 {
	n := w.Len()
	r := a.flowBars
	if r > n {
		r = n
	}
	var net, gross float64
	for _, b := range w.Bars[n-r:] {
		net += float64(b.ForeignBuy - b.ForeignSell)
		gross += float64(b.ForeignBuy + b.ForeignSell)
	}
	if gross <= 0 {
		return 0
	}
	return a.params.ForeignFlowGain * (net / gross)
}
