package repository

// Lookback bounds for daily-bar queries, in calendar days.
const (
	DefaultLookbackDays = 90
	MinLookbackDays     = 10
	MaxLookbackDays     = 1000
)

// NormalizeLookback clamps a requested days-back value into the supported
// range, substituting the default for zero or negative input.
func NormalizeLookback(days int) int {
	if days <= 0 {
		return DefaultLookbackDays
	}
	if days < MinLookbackDays {
		return MinLookbackDays
	}
	if days > MaxLookbackDays {
		return MaxLookbackDays
	}
	return days
}
