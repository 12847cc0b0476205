package analytics

import (
	"fmt"

	"VNFlow/internal/domain/models"
	"VNFlow/pkg/config"
)

// Trigger codes. Codes are stable API; descriptions are for humans.
const (
	EntryScoreCross    = "ENTRY_SCORE_CROSS"
	EntryMomentumAccum = "ENTRY_MOMENTUM_ACCUM"
	EntryVolumeSurge   = "ENTRY_VOLUME_SURGE"
	EntryBreakout      = "ENTRY_BREAKOUT"
	ExitScoreCross     = "EXIT_SCORE_CROSS"
	ExitDistribution   = "EXIT_DISTRIBUTION"
	ExitVolumePressure = "EXIT_VOLUME_PRESSURE"
	ExitBreakdown      = "EXIT_BREAKDOWN"
)

// RuleEngine turns an adjusted score plus the component breakdown into
// ordered trigger descriptors and a sizing band. Nothing triggering yields
// empty lists, never an error.
type RuleEngine struct {
	params config.RuleParams
}

func NewRuleEngine(cal *config.Calibration) *RuleEngine {
	return &RuleEngine{params: cal.Rules}
}

func (e *RuleEngine) Evaluate(adjusted float64, components []models.ComponentScore) models.EntryExitSignals {
	momentum := componentValue(components, models.ComponentMomentum)
	accumulation := componentValue(components, models.ComponentAccumulation)
	volume := componentValue(components, models.ComponentVolume)
	p := e.params

	var entries []models.TradeSignal
	if adjusted >= p.EntryScore && momentum > 50 {
		entries = append(entries, models.TradeSignal{
			Code:        EntryScoreCross,
			Description: fmt.Sprintf("adjusted score %.1f above entry threshold %.1f with positive momentum", adjusted, p.EntryScore),
		})
	}
	if momentum >= p.MomentumConfirm && accumulation >= p.AccumulationConfirm {
		entries = append(entries, models.TradeSignal{
			Code:        EntryMomentumAccum,
			Description: fmt.Sprintf("momentum %.1f confirmed by accumulation %.1f", momentum, accumulation),
		})
	}
	if adjusted >= p.EntryScore && volume >= p.VolumeConfirm {
		entries = append(entries, models.TradeSignal{
			Code:        EntryVolumeSurge,
			Description: fmt.Sprintf("volume expansion %.1f backing score %.1f", volume, adjusted),
		})
	}
	if adjusted >= p.StrongEntryScore {
		entries = append(entries, models.TradeSignal{
			Code:        EntryBreakout,
			Description: fmt.Sprintf("adjusted score %.1f beyond strong-entry threshold %.1f", adjusted, p.StrongEntryScore),
		})
	}

	var exits []models.TradeSignal
	if adjusted <= p.ExitScore && momentum < 50 {
		exits = append(exits, models.TradeSignal{
			Code:        ExitScoreCross,
			Description: fmt.Sprintf("adjusted score %.1f below exit threshold %.1f with negative momentum", adjusted, p.ExitScore),
		})
	}
	if momentum <= p.MomentumFade && accumulation <= p.DistributionAlert {
		exits = append(exits, models.TradeSignal{
			Code:        ExitDistribution,
			Description: fmt.Sprintf("momentum %.1f fading into distribution %.1f", momentum, accumulation),
		})
	}
	if adjusted <= p.ExitScore && volume <= 100-p.VolumeConfirm {
		exits = append(exits, models.TradeSignal{
			Code:        ExitVolumePressure,
			Description: fmt.Sprintf("selling volume %.1f pressing score %.1f", volume, adjusted),
		})
	}
	if adjusted <= p.StrongExitScore {
		exits = append(exits, models.TradeSignal{
			Code:        ExitBreakdown,
			Description: fmt.Sprintf("adjusted score %.1f beyond strong-exit threshold %.1f", adjusted, p.StrongExitScore),
		})
	}

	return models.EntryExitSignals{
		Entries: entries,
		Exits:   exits,
		Sizing:  e.sizing(adjusted),
	}
}

// sizing picks the highest band at or below the adjusted score. Bands ascend
// and fractions never decrease, so sizing is monotone in the score.
func (e *RuleEngine) sizing(adjusted float64) models.PositionSizing {
	bands := e.params.Sizing
	pick := bands[0]
	for _, b := range bands {
		if adjusted >= b.MinScore {
			pick = b
		}
	}
	fraction := pick.Fraction
	if fraction > e.params.MaxFraction {
		fraction = e.params.MaxFraction
	}
	return models.PositionSizing{Tier: pick.Tier, Fraction: fraction}
}

func componentValue(components []models.ComponentScore, name string) float64 {
	for _, c := range components {
		if c.Name == name {
			return c.Value
		}
	}
	return 50
}
