package analytics

import (
	"math"
	"testing"

	"VNFlow/internal/domain/models"
	"VNFlow/pkg/config"
)

func TestAdjustWithoutMetadataIsNoOp(t *testing.T) {
	a := NewContextAdjuster(config.DefaultCalibration())
	w, err := NewWindow(flatBars(30, 50000, 1_000_000), 10)
	if err != nil {
		t.Fatalf("window: %v", err)
	}

	ctx := a.Adjust(62.5, nil, w)
	if len(ctx.Factors) != 0 {
		t.Fatalf("expected no factors without metadata, got %+v", ctx.Factors)
	}
	if ctx.AdjustedScore != 62.5 {
		t.Fatalf("adjusted = %.2f, want unchanged 62.5", ctx.AdjustedScore)
	}
}

func TestAdjustAccounting(t *testing.T) {
	cal := config.DefaultCalibration()
	cal.Context.SectorBias = map[string]float64{models.SectorBanking: 1.5}
	a := NewContextAdjuster(cal)

	bars := flatBars(30, 50000, 1_000_000)
	for i := range bars {
		bars[i].ForeignBuy = 200_000
		bars[i].ForeignSell = 100_000
	}
	w, err := NewWindow(bars, 10)
	if err != nil {
		t.Fatalf("window: %v", err)
	}

	meta := &models.InstrumentMetadata{
		Symbol:    "VCB",
		Sector:    models.SectorBanking,
		Exchange:  models.ExchangeHOSE,
		MarketCap: 5e13,
	}
	ctx := a.Adjust(60, meta, w)

	// banking bias +1.5, foreign room -2, large cap +1, foreign flow +3*(1/3).
	if ctx.TotalAdjustment() == 0 {
		t.Fatalf("expected factors to apply, got %+v", ctx.Factors)
	}
	if got := 60 + ctx.TotalAdjustment(); math.Abs(got-ctx.AdjustedScore) > 1e-9 {
		t.Fatalf("accounting broken: composite+factors=%.4f, adjusted=%.4f", got, ctx.AdjustedScore)
	}
	if math.Abs(ctx.TotalAdjustment()-1.5) > 1e-9 {
		t.Fatalf("total adjustment = %.4f, want 1.5", ctx.TotalAdjustment())
	}

	names := map[string]bool{}
	for _, f := range ctx.Factors {
		names[f.Name] = true
	}
	for _, want := range []string{FactorSectorBias, FactorForeignRoom, FactorLargeCap, FactorForeignFlow} {
		if !names[want] {
			t.Fatalf("missing factor %s in %+v", want, ctx.Factors)
		}
	}
}

func TestAdjustCapScalesFactors(t *testing.T) {
	cal := config.DefaultCalibration()
	cal.Context.SectorBias = map[string]float64{models.SectorTechnology: 30}
	a := NewContextAdjuster(cal)

	w, err := NewWindow(flatBars(30, 50000, 1_000_000), 10)
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	meta := &models.InstrumentMetadata{Symbol: "FPT", Sector: models.SectorTechnology, Exchange: models.ExchangeHOSE, MarketCap: 5e13}

	ctx := a.Adjust(50, meta, w)
	if math.Abs(ctx.TotalAdjustment()-cal.Context.MaxAdjustment) > 1e-9 {
		t.Fatalf("capped total = %.4f, want %.1f", ctx.TotalAdjustment(), cal.Context.MaxAdjustment)
	}
	if math.Abs(ctx.AdjustedScore-(50+cal.Context.MaxAdjustment)) > 1e-9 {
		t.Fatalf("adjusted = %.4f, want %.1f", ctx.AdjustedScore, 50+cal.Context.MaxAdjustment)
	}
}

func TestAdjustClampsToRange(t *testing.T) {
	cal := config.DefaultCalibration()
	cal.Context.SectorBias = map[string]float64{models.SectorTechnology: 8}
	a := NewContextAdjuster(cal)

	w, err := NewWindow(flatBars(30, 50000, 1_000_000), 10)
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	meta := &models.InstrumentMetadata{Symbol: "FPT", Sector: models.SectorTechnology, Exchange: models.ExchangeHOSE, MarketCap: 5e13}

	ctx := a.Adjust(97, meta, w)
	if ctx.AdjustedScore != 100 {
		t.Fatalf("adjusted = %.2f, want clamp at 100", ctx.AdjustedScore)
	}
}
