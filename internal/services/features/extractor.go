package features

import (
	"math"

	"VNFlow/internal/domain/models"
)

// ComputeLogReturns computes log returns r_t = ln(C_t / C_{t-1}) over the
// closes. It returns a slice of length len(bars)-1, or nil if insufficient data.
func ComputeLogReturns(bars []models.PriceBar) []float64 {
	if len(bars) < 2 {
		return nil
	}
	out := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		prev := bars[i-1].Close
		cur := bars[i].Close
		if prev <= 0 || cur <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// AnnualizedVolatility computes the sample standard deviation of the given
// daily returns scaled by sqrt(barsPerYear). Returned as a fraction, not
// percent.
func AnnualizedVolatility(returns []float64, barsPerYear float64) float64 {
	n := len(returns)
	if n < 2 || barsPerYear <= 0 {
		return 0
	}
	sum := 0.0
	sum2 := 0.0
	for _, r := range returns {
		sum += r
		sum2 += r * r
	}
	fn := float64(n)
	mean := sum / fn
	variance := (sum2 - fn*mean*mean) / (fn - 1)
	if variance < 0 {
		variance = 0
	}
	// annualize
	return math.Sqrt(variance * barsPerYear)
}

// MaxDrawdown computes the deepest peak-to-trough close decline over the
// bars, as a fraction in [0,1]. Zero for never-declining series.
func MaxDrawdown(bars []models.PriceBar) float64 {
	var peak, worst float64
	for _, b := range bars {
		if b.Close > peak {
			peak = b.Close
		}
		if peak > 0 {
			if dd := (peak - b.Close) / peak; dd > worst {
				worst = dd
			}
		}
	}
	return worst
}
