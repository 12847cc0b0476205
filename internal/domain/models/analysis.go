package models

import "time"

// SignalClass is the five-level trading stance derived from the adjusted
// composite score.
type SignalClass string

const (
	StrongSell SignalClass = "STRONG_SELL"
	Sell       SignalClass = "SELL"
	Hold       SignalClass = "HOLD"
	Buy        SignalClass = "BUY"
	StrongBuy  SignalClass = "STRONG_BUY"
)

// Action returns the recommended action for the class. The mapping is fixed:
// class changes come from recalibrated bands, never from remapping actions.
func (c SignalClass) Action() string {
	switch c {
	case StrongBuy:
		return "accumulate aggressively"
	case Buy:
		return "accumulate"
	case Hold:
		return "hold / observe"
	case Sell:
		return "reduce"
	case StrongSell:
		return "exit"
	}
	return "hold / observe"
}

// SignalStrength qualifies how deep inside its band a score sits.
type SignalStrength string

const (
	Weak     SignalStrength = "WEAK"
	Moderate SignalStrength = "MODERATE"
	Strong   SignalStrength = "STRONG"
)

// Component detector names, in canonical order.
const (
	ComponentVolume       = "volume_pattern"
	ComponentPriceAction  = "price_action"
	ComponentMomentum     = "momentum"
	ComponentAccumulation = "accumulation"
)

// ComponentScore is one detector's contribution, always in [0,100] with 50
// neutral.
type ComponentScore struct {
	Name  string
	Value float64
}

// CompositeResult is the weighted blend of the component scores plus its
// classification. Components keep canonical detector order.
type CompositeResult struct {
	Score      float64
	Class      SignalClass
	Strength   SignalStrength
	Action     string
	Components []ComponentScore
}

// Component returns the named component score.
func (r CompositeResult) Component(name string) (float64, bool) {
	for _, c := range r.Components {
		if c.Name == name {
			return c.Value, true
		}
	}
	return 0, false
}

// AdjustmentFactor is one itemized market-context contribution, signed.
type AdjustmentFactor struct {
	Name  string
	Value float64
}

// MarketContext carries the context-adjusted score together with the factors
// that produced it: AdjustedScore == clamp(composite + sum(Factors), 0, 100).
type MarketContext struct {
	AdjustedScore float64
	Factors       []AdjustmentFactor
}

// TotalAdjustment sums the itemized factors.
func (m MarketContext) TotalAdjustment() float64 {
	var t float64
	for _, f := range m.Factors {
		t += f.Value
	}
	return t
}

// TradeSignal is one triggered entry or exit condition descriptor.
type TradeSignal struct {
	Code        string
	Description string
}

// Position sizing tiers, ordered from flat to full allocation.
const (
	SizingNone    = "none"
	SizingQuarter = "quarter"
	SizingHalf    = "half"
	SizingFull    = "full"
)

// PositionSizing is the suggested capital fraction for a new position.
type PositionSizing struct {
	Tier     string
	Fraction float64
}

// EntryExitSignals holds the ordered trigger descriptors plus sizing. Empty
// slices mean "nothing triggered", never an error.
type EntryExitSignals struct {
	Entries []TradeSignal
	Exits   []TradeSignal
	Sizing  PositionSizing
}

// RiskProfile summarizes realized risk over the analyzed window. Both values
// are percentages; MaxDrawdown is reported as a positive magnitude.
type RiskProfile struct {
	AnnualizedVolatility float64
	MaxDrawdown          float64
}

// AnalysisResult is the full per-symbol output. AsOf is the last bar's date;
// the engine never stamps wall-clock time so identical windows reproduce
// identical results.
type AnalysisResult struct {
	Symbol    string
	AsOf      time.Time
	Bars      int
	Composite CompositeResult
	Context   MarketContext
	Signals   EntryExitSignals
	Risk      RiskProfile
}

// AnalysisError is a per-symbol failure inside a batch run.
type AnalysisError struct {
	Symbol string
	Reason string
}

// Market sentiment labels for the overview.
const (
	SentimentBullish = "BULLISH"
	SentimentNeutral = "NEUTRAL"
	SentimentBearish = "BEARISH"
)

// ScoredSymbol is a ranked overview entry.
type ScoredSymbol struct {
	Symbol string
	Score  float64
	Class  SignalClass
}

// MarketOverview aggregates a universe pass. Failures ride alongside the
// successful results; one bad symbol never voids the run.
type MarketOverview struct {
	GeneratedAt time.Time
	Universe    int
	Analyzed    int
	Sentiment   string
	MeanScore   float64
	ClassCounts map[SignalClass]int
	Strong      []ScoredSymbol
	Weak        []ScoredSymbol
	TopPicks    []ScoredSymbol
	Failures    []AnalysisError
}
