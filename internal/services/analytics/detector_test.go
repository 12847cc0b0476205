package analytics

import (
	"math"
	"testing"

	"VNFlow/pkg/config"
)

func newWindow(t *testing.T, n int, closeFn func(i int) float64, volFn func(i int) int64) *Window {
	t.Helper()
	w, err := NewWindow(makeBars(n, closeFn, volFn), 10)
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	return w
}

func TestMomentumAndPriceActionMirror(t *testing.T) {
	params := config.DefaultCalibration().Detectors
	up := newWindow(t, 60, func(i int) float64 { return 50000 * math.Pow(1.01, float64(i)) }, func(int) int64 { return 1_000_000 })
	down := newWindow(t, 60, func(i int) float64 { return 50000 * math.Pow(0.99, float64(i)) }, func(int) int64 { return 1_000_000 })

	momentum := NewMomentumDetector(params)
	if mu, md := momentum.Score(up), momentum.Score(down); !(mu > 50 && md < 50 && mu > md) {
		t.Fatalf("momentum mirror violated: up %.2f down %.2f", mu, md)
	}

	action := NewPriceActionDetector(params)
	if au, ad := action.Score(up), action.Score(down); !(au > 50 && ad < 50 && au > ad) {
		t.Fatalf("price action mirror violated: up %.2f down %.2f", au, ad)
	}
}

func TestVolumeDetectorDirection(t *testing.T) {
	d := NewVolumeDetector(config.DefaultCalibration().Detectors)
	surge := func(i int) int64 {
		if i < 50 {
			return 1_000_000
		}
		return 2_000_000
	}

	expandUp := newWindow(t, 60, func(i int) float64 { return 50000 * math.Pow(1.005, float64(i)) }, surge)
	if s := d.Score(expandUp); s <= 50 {
		t.Fatalf("expansion on advance should score above neutral, got %.2f", s)
	}

	expandDown := newWindow(t, 60, func(i int) float64 { return 50000 * math.Pow(0.995, float64(i)) }, surge)
	if s := d.Score(expandDown); s >= 50 {
		t.Fatalf("expansion on decline should score below neutral, got %.2f", s)
	}

	flat := newWindow(t, 60, func(i int) float64 { return 50000 * math.Pow(1.005, float64(i)) }, func(int) int64 { return 1_000_000 })
	if s := d.Score(flat); s != 50 {
		t.Fatalf("flat volume should stay neutral, got %.2f", s)
	}
}

func TestVolumeDetectorContractionDamped(t *testing.T) {
	d := NewVolumeDetector(config.DefaultCalibration().Detectors)
	dryUp := func(i int) int64 {
		if i < 50 {
			return 2_000_000
		}
		return 1_000_000
	}
	expand := func(i int) int64 {
		if i < 50 {
			return 1_000_000
		}
		return 2_000_000
	}

	rising := func(i int) float64 { return 50000 * math.Pow(1.005, float64(i)) }
	contraction := d.Score(newWindow(t, 60, rising, dryUp))
	expansion := d.Score(newWindow(t, 60, rising, expand))
	if math.Abs(contraction-50) >= math.Abs(expansion-50) {
		t.Fatalf("contraction %.2f should move less than expansion %.2f", contraction, expansion)
	}
}

func TestAccumulationDetectorClosePosition(t *testing.T) {
	d := NewAccumulationDetector(config.DefaultCalibration().Detectors)

	// Closes pinned to the highs: buyers absorbing supply.
	atHigh := newWindow(t, 30, func(i int) float64 { return 50000 }, func(int) int64 { return 1_000_000 })
	for i := range atHigh.Bars {
		atHigh.Bars[i].Low = 49000
		atHigh.Bars[i].High = 50000
	}
	if s := d.Score(atHigh); s <= 90 {
		t.Fatalf("closes at highs should max the accumulation line, got %.2f", s)
	}

	atLow := newWindow(t, 30, func(i int) float64 { return 50000 }, func(int) int64 { return 1_000_000 })
	for i := range atLow.Bars {
		atLow.Bars[i].Open = 50500
		atLow.Bars[i].Low = 50000
		atLow.Bars[i].High = 51000
	}
	if s := d.Score(atLow); s >= 10 {
		t.Fatalf("closes at lows should floor the accumulation line, got %.2f", s)
	}
}

func TestDetectorsNeutralOnFlat(t *testing.T) {
	cal := config.DefaultCalibration()
	w, err := NewWindow(flatBars(40, 50000, 1_000_000), cal.MinWindow)
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	for _, d := range []Detector{
		NewVolumeDetector(cal.Detectors),
		NewPriceActionDetector(cal.Detectors),
		NewMomentumDetector(cal.Detectors),
		NewAccumulationDetector(cal.Detectors),
	} {
		if s := d.Score(w); s != 50 {
			t.Fatalf("%s on flat series = %.2f, want 50", d.Name(), s)
		}
	}
}
