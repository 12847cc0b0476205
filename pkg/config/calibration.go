package config

import (
	"fmt"
	"math"
	"os"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

// Calibration is the versioned tuning document for the signal engine: detector
// lookbacks, component weights, classification bands, context factors, rule
// thresholds and sizing bands. It is data, not code: retuning ships a new
// file, never a new binary.
type Calibration struct {
	Version            string         `yaml:"version"`
	MinWindow          int            `yaml:"min_window" default:"20"`
	TradingDaysPerYear int            `yaml:"trading_days_per_year" default:"250"`
	Detectors          DetectorParams `yaml:"detectors"`
	Weights            Weights        `yaml:"weights"`
	Bands              []Band         `yaml:"bands"`
	Strength           StrengthTiers  `yaml:"strength"`
	Context            ContextParams  `yaml:"context"`
	Rules              RuleParams     `yaml:"rules"`
	Overview           OverviewParams `yaml:"overview"`
}

// DetectorParams holds the lookback spans the detectors slice windows with.
type DetectorParams struct {
	VolumeRecentBars  int `yaml:"volume_recent_bars" default:"10"`
	MomentumShortBars int `yaml:"momentum_short_bars" default:"10"`
	MomentumLongBars  int `yaml:"momentum_long_bars" default:"40"`
	ForeignFlowBars   int `yaml:"foreign_flow_bars" default:"10"`
}

// Weights blends component scores into the composite. Must sum to 1.
type Weights struct {
	Volume       float64 `yaml:"volume" default:"0.25"`
	PriceAction  float64 `yaml:"price_action" default:"0.25"`
	Momentum     float64 `yaml:"momentum" default:"0.3"`
	Accumulation float64 `yaml:"accumulation" default:"0.2"`
}

// Band maps a half-open score interval [Min,Max) to a signal class. The last
// band is closed at 100. Bands must be contiguous and cover [0,100].
type Band struct {
	Class string  `yaml:"class"`
	Min   float64 `yaml:"min"`
	Max   float64 `yaml:"max"`
}

// StrengthTiers splits relative depth inside a band (0 at the nearer edge,
// 1 at the center) into WEAK / MODERATE / STRONG.
type StrengthTiers struct {
	ModerateMin float64 `yaml:"moderate_min" default:"0.34"`
	StrongMin   float64 `yaml:"strong_min" default:"0.67"`
}

// ContextParams drives the market-context adjustment. Biases are additive
// score points; the itemized total is capped at MaxAdjustment either way.
type ContextParams struct {
	MaxAdjustment     float64            `yaml:"max_adjustment" default:"10"`
	SectorBias        map[string]float64 `yaml:"sector_bias"`
	RestrictedSectors []string           `yaml:"restricted_sectors"`
	RestrictedPenalty float64            `yaml:"restricted_penalty" default:"2"`
	ExchangeBias      map[string]float64 `yaml:"exchange_bias"`
	LargeCapFloor     float64            `yaml:"large_cap_floor" default:"1e13"`
	LargeCapBonus     float64            `yaml:"large_cap_bonus" default:"1"`
	MicroCapCeiling   float64            `yaml:"micro_cap_ceiling" default:"5e11"`
	MicroCapPenalty   float64            `yaml:"micro_cap_penalty" default:"2"`
	ForeignFlowGain   float64            `yaml:"foreign_flow_gain" default:"3"`
}

// RuleParams holds entry/exit thresholds on the adjusted score plus the
// confirmation levels read from individual components.
type RuleParams struct {
	EntryScore          float64      `yaml:"entry_score" default:"65"`
	StrongEntryScore    float64      `yaml:"strong_entry_score" default:"80"`
	ExitScore           float64      `yaml:"exit_score" default:"35"`
	StrongExitScore     float64      `yaml:"strong_exit_score" default:"20"`
	MomentumConfirm     float64      `yaml:"momentum_confirm" default:"55"`
	MomentumFade        float64      `yaml:"momentum_fade" default:"45"`
	AccumulationConfirm float64      `yaml:"accumulation_confirm" default:"60"`
	DistributionAlert   float64      `yaml:"distribution_alert" default:"40"`
	VolumeConfirm       float64      `yaml:"volume_confirm" default:"55"`
	MaxFraction         float64      `yaml:"max_fraction" default:"0.2"`
	Sizing              []SizingBand `yaml:"sizing"`
}

// SizingBand maps adjusted scores at or above MinScore to a position tier.
type SizingBand struct {
	MinScore float64 `yaml:"min_score"`
	Tier     string  `yaml:"tier"`
	Fraction float64 `yaml:"fraction"`
}

// OverviewParams drives the market-wide aggregation.
type OverviewParams struct {
	StrongThreshold float64 `yaml:"strong_threshold" default:"65"`
	WeakThreshold   float64 `yaml:"weak_threshold" default:"35"`
	TopN            int     `yaml:"top_n" default:"10"`
	BullishMean     float64 `yaml:"bullish_mean" default:"58"`
	BearishMean     float64 `yaml:"bearish_mean" default:"45"`
}

// Signal class names the bands may reference. Mirrored from the domain model;
// config stays import-free of internal packages.
var calibrationClasses = []string{"STRONG_SELL", "SELL", "HOLD", "BUY", "STRONG_BUY"}

// DefaultBands is the shipped five-class band layout.
func DefaultBands() []Band {
	return []Band{
		{Class: "STRONG_SELL", Min: 0, Max: 20},
		{Class: "SELL", Min: 20, Max: 40},
		{Class: "HOLD", Min: 40, Max: 60},
		{Class: "BUY", Min: 60, Max: 80},
		{Class: "STRONG_BUY", Min: 80, Max: 100},
	}
}

// DefaultSizing is the shipped sizing ladder: flat below 55, scaling to the
// full cap at 85.
func DefaultSizing() []SizingBand {
	return []SizingBand{
		{MinScore: 0, Tier: "none", Fraction: 0},
		{MinScore: 55, Tier: "quarter", Fraction: 0.05},
		{MinScore: 70, Tier: "half", Fraction: 0.1},
		{MinScore: 85, Tier: "full", Fraction: 0.2},
	}
}

// DefaultCalibration returns the shipped calibration, validated.
func DefaultCalibration() *Calibration {
	c := &Calibration{}
	_ = defaults.Set(c)
	c.Version = "builtin"
	c.normalize()
	return c
}

// LoadCalibration reads, defaults, and validates a calibration file.
func LoadCalibration(path string) (*Calibration, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read calibration: %w", err)
	}

	var c Calibration
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse calibration: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("default calibration: %w", err)
	}
	c.normalize()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate calibration %q: %w", c.Version, err)
	}
	return &c, nil
}

// normalize fills the slice and map sections defaults tags cannot express.
func (c *Calibration) normalize() {
	if len(c.Bands) == 0 {
		c.Bands = DefaultBands()
	}
	if len(c.Rules.Sizing) == 0 {
		c.Rules.Sizing = DefaultSizing()
	}
	if c.Context.ExchangeBias == nil {
		c.Context.ExchangeBias = map[string]float64{"HOSE": 0, "HNX": -1, "UPCOM": -3}
	}
	if c.Context.RestrictedSectors == nil {
		c.Context.RestrictedSectors = []string{"banking", "securities", "aviation"}
	}
}

// Validate rejects structurally broken calibrations: weight sums off one,
// gapped or overlapping bands, non-monotone sizing, inverted thresholds.
func (c *Calibration) Validate() error {
	if c.MinWindow < 10 {
		return fmt.Errorf("min_window must be >= 10, got %d", c.MinWindow)
	}
	if c.TradingDaysPerYear <= 0 {
		return fmt.Errorf("trading_days_per_year must be positive")
	}
	if c.Detectors.VolumeRecentBars < 1 || c.Detectors.MomentumShortBars < 1 ||
		c.Detectors.MomentumLongBars < 1 || c.Detectors.ForeignFlowBars < 1 {
		return fmt.Errorf("detector lookbacks must be >= 1")
	}
	if c.Detectors.MomentumShortBars >= c.Detectors.MomentumLongBars {
		return fmt.Errorf("momentum_short_bars must be < momentum_long_bars")
	}

	w := c.Weights
	for name, v := range map[string]float64{
		"volume": w.Volume, "price_action": w.PriceAction,
		"momentum": w.Momentum, "accumulation": w.Accumulation,
	} {
		if v < 0 {
			return fmt.Errorf("weights.%s must be >= 0", name)
		}
	}
	if sum := w.Volume + w.PriceAction + w.Momentum + w.Accumulation; math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("weights must sum to 1, got %.6f", sum)
	}

	if err := c.validateBands(); err != nil {
		return err
	}

	s := c.Strength
	if s.ModerateMin < 0 || s.ModerateMin >= s.StrongMin || s.StrongMin > 1 {
		return fmt.Errorf("strength tiers must satisfy 0 <= moderate_min < strong_min <= 1")
	}

	if c.Context.MaxAdjustment < 0 {
		return fmt.Errorf("context.max_adjustment must be >= 0")
	}

	r := c.Rules
	if !(r.StrongExitScore < r.ExitScore && r.ExitScore < r.EntryScore && r.EntryScore < r.StrongEntryScore) {
		return fmt.Errorf("rule thresholds must be ordered strong_exit < exit < entry < strong_entry")
	}
	if r.MomentumFade > r.MomentumConfirm {
		return fmt.Errorf("momentum_fade must be <= momentum_confirm")
	}
	if r.MaxFraction <= 0 || r.MaxFraction > 1 {
		return fmt.Errorf("max_fraction must be in (0,1]")
	}
	if err := c.validateSizing(); err != nil {
		return err
	}

	o := c.Overview
	if o.WeakThreshold >= o.StrongThreshold {
		return fmt.Errorf("overview.weak_threshold must be < strong_threshold")
	}
	if o.BearishMean >= o.BullishMean {
		return fmt.Errorf("overview.bearish_mean must be < bullish_mean")
	}
	if o.TopN < 1 {
		return fmt.Errorf("overview.top_n must be >= 1")
	}
	return nil
}

func (c *Calibration) validateBands() error {
	if len(c.Bands) != len(calibrationClasses) {
		return fmt.Errorf("bands must define all %d classes, got %d", len(calibrationClasses), len(c.Bands))
	}
	seen := map[string]bool{}
	for i, b := range c.Bands {
		valid := false
		for _, cls := range calibrationClasses {
			if b.Class == cls {
				valid = true
			}
		}
		if !valid {
			return fmt.Errorf("bands[%d]: unknown class %q", i, b.Class)
		}
		if seen[b.Class] {
			return fmt.Errorf("bands[%d]: duplicate class %q", i, b.Class)
		}
		seen[b.Class] = true
		if b.Min >= b.Max {
			return fmt.Errorf("bands[%d]: min must be < max", i)
		}
		if i == 0 && b.Min != 0 {
			return fmt.Errorf("bands must start at 0")
		}
		if i > 0 && b.Min != c.Bands[i-1].Max {
			return fmt.Errorf("bands[%d]: gap or overlap at %.2f", i, b.Min)
		}
	}
	if c.Bands[len(c.Bands)-1].Max != 100 {
		return fmt.Errorf("bands must end at 100")
	}
	return nil
}

func (c *Calibration) validateSizing() error {
	s := c.Rules.Sizing
	if len(s) == 0 {
		return fmt.Errorf("rules.sizing must not be empty")
	}
	if s[0].MinScore != 0 {
		return fmt.Errorf("rules.sizing must start at min_score 0")
	}
	for i, b := range s {
		if b.Tier == "" {
			return fmt.Errorf("rules.sizing[%d]: tier is required", i)
		}
		if b.Fraction < 0 || b.Fraction > c.Rules.MaxFraction {
			return fmt.Errorf("rules.sizing[%d]: fraction must be in [0,%.2f]", i, c.Rules.MaxFraction)
		}
		if i > 0 {
			if b.MinScore <= s[i-1].MinScore {
				return fmt.Errorf("rules.sizing[%d]: min_score must ascend", i)
			}
			if b.Fraction < s[i-1].Fraction {
				return fmt.Errorf("rules.sizing[%d]: fraction must not decrease", i)
			}
		}
	}
	return nil
}
