package analytics

import (
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"VNFlow/internal/domain/models"
	domsvc "VNFlow/internal/domain/service"
	"VNFlow/pkg/config"
)

func makeBars(n int, closeFn func(i int) float64, volFn func(i int) int64) []models.PriceBar {
	base := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]models.PriceBar, n)
	for i := range bars {
		c := closeFn(i)
		bars[i] = models.PriceBar{
			Symbol: "VNM",
			Date:   base.AddDate(0, 0, i),
			Open:   c * 0.995,
			High:   c * 1.005,
			Low:    c * 0.99,
			Close:  c,
			Volume: volFn(i),
		}
	}
	return bars
}

func flatBars(n int, close float64, volume int64) []models.PriceBar {
	base := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]models.PriceBar, n)
	for i := range bars {
		bars[i] = models.PriceBar{
			Symbol: "VNM",
			Date:   base.AddDate(0, 0, i),
			Open:   close,
			High:   close,
			Low:    close,
			Close:  close,
			Volume: volume,
		}
	}
	return bars
}

func risingBars(n int, growth float64) []models.PriceBar {
	return makeBars(n, func(i int) float64 {
		return 50000 * math.Pow(1+growth, float64(i))
	}, func(int) int64 { return 1_000_000 })
}

func testEngine() *Engine {
	return NewEngine(config.DefaultCalibration())
}

func TestAnalyzeWindowBoundary(t *testing.T) {
	e := testEngine()
	min := config.DefaultCalibration().MinWindow

	if _, err := e.Analyze(risingBars(min-1, 0.001), nil); !errors.Is(err, domsvc.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
	if _, err := e.Analyze(risingBars(min, 0.001), nil); err != nil {
		t.Fatalf("expected success at min window, got %v", err)
	}
}

func TestAnalyzeRejectsInvalidBars(t *testing.T) {
	e := testEngine()

	bad := risingBars(30, 0.001)
	bad[7].Volume = -1
	if _, err := e.Analyze(bad, nil); !errors.Is(err, domsvc.ErrInvalidBar) {
		t.Fatalf("expected ErrInvalidBar, got %v", err)
	}

	dup := risingBars(30, 0.001)
	dup[10].Date = dup[9].Date
	if _, err := e.Analyze(dup, nil); !errors.Is(err, domsvc.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData for duplicate dates, got %v", err)
	}
}

func TestAnalyzeDeterministic(t *testing.T) {
	e := testEngine()
	bars := risingBars(60, 0.002)
	meta := &models.InstrumentMetadata{Symbol: "VNM", Sector: models.SectorFoodBeverage, Exchange: models.ExchangeHOSE, MarketCap: 2e13}

	a, err := e.Analyze(bars, meta)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	b, err := e.Analyze(bars, meta)
	if err != nil {
		t.Fatalf("analyze again: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("results differ across identical invocations")
	}
}

func TestAnalyzeScoresBounded(t *testing.T) {
	e := testEngine()
	series := [][]models.PriceBar{
		risingBars(60, 0.03),
		makeBars(60, func(i int) float64 { return 50000 * math.Pow(0.97, float64(i)) }, func(int) int64 { return 1_000_000 }),
		makeBars(60, func(i int) float64 { return 50000 * (1 + 0.2*math.Sin(float64(i))) }, func(i int) int64 { return int64(1_000_000 * (1 + i%7)) }),
		flatBars(60, 50000, 1_000_000),
	}
	for k, bars := range series {
		res, err := e.Analyze(bars, nil)
		if err != nil {
			t.Fatalf("series %d: %v", k, err)
		}
		if res.Composite.Score < 0 || res.Composite.Score > 100 {
			t.Fatalf("series %d: composite %.2f out of range", k, res.Composite.Score)
		}
		if res.Context.AdjustedScore < 0 || res.Context.AdjustedScore > 100 {
			t.Fatalf("series %d: adjusted %.2f out of range", k, res.Context.AdjustedScore)
		}
		for _, c := range res.Composite.Components {
			if c.Value < 0 || c.Value > 100 {
				t.Fatalf("series %d: component %s %.2f out of range", k, c.Name, c.Value)
			}
		}
	}
}

// A 60-bar series up 5% with volume stepping up 20% over the final ten bars
// is the canonical accumulation setup: it must classify bullish with entries
// and a real position size.
func TestAnalyzeAccumulationScenario(t *testing.T) {
	growth := math.Pow(1.05, 1.0/59) - 1
	bars := makeBars(60, func(i int) float64 {
		return 50000 * math.Pow(1+growth, float64(i))
	}, func(i int) int64 {
		if i < 50 {
			return 1_000_000
		}
		return int64(1_000_000 * (1 + 0.2*float64(i-49)/10))
	})

	res, err := testEngine().Analyze(bars, nil)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if res.Composite.Class != models.Buy && res.Composite.Class != models.StrongBuy {
		t.Fatalf("expected BUY or STRONG_BUY, got %s (adjusted %.2f)", res.Composite.Class, res.Context.AdjustedScore)
	}
	if len(res.Signals.Entries) == 0 {
		t.Fatalf("expected entry signals, got none (adjusted %.2f)", res.Context.AdjustedScore)
	}
	if res.Signals.Sizing.Tier == models.SizingNone || res.Signals.Sizing.Fraction <= 0 {
		t.Fatalf("expected sizing above minimum band, got %+v", res.Signals.Sizing)
	}
}

func TestAnalyzeFlatScenario(t *testing.T) {
	res, err := testEngine().Analyze(flatBars(60, 50000, 1_000_000), nil)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if res.Composite.Class != models.Hold {
		t.Fatalf("expected HOLD for flat series, got %s", res.Composite.Class)
	}
	if len(res.Signals.Entries) != 0 || len(res.Signals.Exits) != 0 {
		t.Fatalf("expected no signals for flat series, got %d/%d", len(res.Signals.Entries), len(res.Signals.Exits))
	}
	if res.Risk.AnnualizedVolatility > 1e-9 {
		t.Fatalf("expected zero volatility, got %.6f", res.Risk.AnnualizedVolatility)
	}
	if res.Risk.MaxDrawdown > 1e-9 {
		t.Fatalf("expected zero drawdown, got %.6f", res.Risk.MaxDrawdown)
	}
}

func TestAnalyzeStampsLastBarDate(t *testing.T) {
	bars := risingBars(30, 0.001)
	res, err := testEngine().Analyze(bars, nil)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if !res.AsOf.Equal(bars[len(bars)-1].Date) {
		t.Fatalf("AsOf %v != last bar date %v", res.AsOf, bars[len(bars)-1].Date)
	}
	if res.Bars != len(bars) {
		t.Fatalf("Bars = %d, want %d", res.Bars, len(bars))
	}
}
