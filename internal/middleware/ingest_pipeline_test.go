package middleware

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"VNFlow/internal/domain/models"
)

type recordProc struct {
	mu   sync.Mutex
	bars []*models.PriceBar
	err  error
}

func (p *recordProc) Process(ctx context.Context, b *models.PriceBar) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.bars = append(p.bars, b)
	return nil
}

func (p *recordProc) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.bars)
}

func (p *recordProc) heal() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = nil
}

type nopMetrics struct{}

func (nopMetrics) RecordBarStored(string, string)  {}
func (nopMetrics) RecordError(string)              {}
func (nopMetrics) RecordLastClose(string, float64) {}
func (nopMetrics) RecordLatency(string, float64)   {}

func testBar(symbol string, date time.Time) *models.PriceBar {
	return &models.PriceBar{
		Symbol: symbol,
		Date:   date,
		Open:   55800,
		High:   56900,
		Low:    55500,
		Close:  56500,
		Volume: 1_200_000,
	}
}

func TestPipelineRejectsInvalidBars(t *testing.T) {
	proc := &recordProc{}
	p := NewIngestPipeline(proc, nopMetrics{})
	date := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	cases := []*models.PriceBar{
		nil,
		testBar("", date),
		{Symbol: "VNM", Date: date, Open: -1, High: 1, Low: 1, Close: 1},
		{Symbol: "VNM", Date: date, Open: 1, High: 1, Low: 2, Close: 1},
		{Symbol: "VNM", Open: 1, High: 1, Low: 1, Close: 1},
		testBar("VNM", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)), // Sunday
	}
	for i, b := range cases {
		if err := p.Process(context.Background(), b); err == nil {
			t.Fatalf("case %d: invalid bar accepted", i)
		}
	}
	if proc.count() != 0 {
		t.Fatalf("downstream saw %d bars, want 0", proc.count())
	}
}

func TestPipelineDropsDuplicateDelivery(t *testing.T) {
	proc := &recordProc{}
	p := NewIngestPipeline(proc, nopMetrics{}, WithDedupeWindow(time.Hour))
	date := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		if err := p.Process(context.Background(), testBar("VNM", date)); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	if proc.count() != 1 {
		t.Fatalf("downstream saw %d bars, want 1", proc.count())
	}
}

func TestPipelineAcceptsCorrectionAfterWindow(t *testing.T) {
	proc := &recordProc{}
	p := NewIngestPipeline(proc, nopMetrics{}, WithDedupeWindow(10*time.Millisecond))
	date := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	if err := p.Process(context.Background(), testBar("VNM", date)); err != nil {
		t.Fatalf("first send: %v", err)
	}
	time.Sleep(25 * time.Millisecond)
	if err := p.Process(context.Background(), testBar("VNM", date)); err != nil {
		t.Fatalf("correction send: %v", err)
	}
	if proc.count() != 2 {
		t.Fatalf("downstream saw %d bars, want 2", proc.count())
	}
}

func TestPipelineDropsStaleDate(t *testing.T) {
	proc := &recordProc{}
	p := NewIngestPipeline(proc, nopMetrics{}, WithDedupeWindow(time.Hour))
	newer := time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC)
	older := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	if err := p.Process(context.Background(), testBar("VNM", newer)); err != nil {
		t.Fatalf("newer bar: %v", err)
	}
	if err := p.Process(context.Background(), testBar("VNM", older)); err != nil {
		t.Fatalf("stale bar should be dropped silently, got %v", err)
	}
	if proc.count() != 1 {
		t.Fatalf("downstream saw %d bars, want 1", proc.count())
	}

	// another symbol is tracked independently
	if err := p.Process(context.Background(), testBar("FPT", older)); err != nil {
		t.Fatalf("other symbol: %v", err)
	}
	if proc.count() != 2 {
		t.Fatalf("downstream saw %d bars, want 2", proc.count())
	}
}

func TestPipelineBuffersWhenBackendDown(t *testing.T) {
	proc := &recordProc{err: fmt.Errorf("backend down")}
	p := NewIngestPipeline(proc, nopMetrics{}, WithBufferSize(10))
	p.Start(context.Background())
	defer p.Stop()

	date := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	if err := p.Process(context.Background(), testBar("VNM", date)); err == nil {
		t.Fatal("expected downstream error")
	}

	proc.heal()
	deadline := time.Now().Add(3 * time.Second)
	for proc.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("buffered bar never flushed after backend recovery")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestPipelineTransformNormalizes(t *testing.T) {
	proc := &recordProc{}
	p := NewIngestPipeline(proc, nopMetrics{}, WithTransform(func(b *models.PriceBar) *models.PriceBar {
		if b != nil {
			b.Symbol = "VNM"
		}
		return b
	}))
	date := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	if err := p.Process(context.Background(), testBar("vnm-raw", date)); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if proc.count() != 1 || proc.bars[0].Symbol != "VNM" {
		t.Fatalf("transform not applied: %+v", proc.bars)
	}
}
