package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"VNFlow/internal/domain/models"
	mid "VNFlow/internal/middleware"
)

type stubPublisher struct {
	mu        sync.Mutex
	published []*models.PriceBar
}

func (s *stubPublisher) Publish(ctx context.Context, b *models.PriceBar) error {
	s.mu.Lock()
	s.published = append(s.published, b)
	s.mu.Unlock()
	return nil
}

func (s *stubPublisher) PublishBatch(ctx context.Context, bars []*models.PriceBar) error {
	s.mu.Lock()
	s.published = append(s.published, bars...)
	s.mu.Unlock()
	return nil
}

func (s *stubPublisher) Close() error { return nil }

type stubStorage struct {
	mu     sync.Mutex
	stored []*models.PriceBar
}

func (s *stubStorage) Init(ctx context.Context) error { return nil }

func (s *stubStorage) Store(ctx context.Context, b *models.PriceBar) error {
	s.mu.Lock()
	s.stored = append(s.stored, b)
	s.mu.Unlock()
	return nil
}

func (s *stubStorage) StoreBatch(ctx context.Context, bars []*models.PriceBar) error {
	s.mu.Lock()
	s.stored = append(s.stored, bars...)
	s.mu.Unlock()
	return nil
}

func (s *stubStorage) Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.PriceBar, error) {
	return nil, nil
}

func (s *stubStorage) Health(ctx context.Context) error { return nil }

func (s *stubStorage) Close() error { return nil }

func ingestBar(symbol string) *models.PriceBar {
	return &models.PriceBar{
		Symbol: symbol,
		Date:   time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
		Open:   55800,
		High:   56900,
		Low:    55500,
		Close:  56500,
		Volume: 1_200_000,
	}
}

func TestBarProcessorRoutesToClickHouse(t *testing.T) {
	pub := &stubPublisher{}
	store := &stubStorage{}
	p := NewBarProcessor(pub, store, nopMetrics{}, "clickhouse", 100, time.Second)

	if err := p.Process(context.Background(), ingestBar("VNM")); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(store.stored) != 1 || len(pub.published) != 0 {
		t.Fatalf("stored=%d published=%d, want 1/0", len(store.stored), len(pub.published))
	}
}

func TestBarProcessorRoutesToKafka(t *testing.T) {
	pub := &stubPublisher{}
	store := &stubStorage{}
	p := NewBarProcessor(pub, store, nopMetrics{}, "kafka", 100, time.Second)

	bars := []*models.PriceBar{ingestBar("VNM"), ingestBar("FPT")}
	if err := p.ProcessBatch(context.Background(), bars); err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if len(pub.published) != 2 || len(store.stored) != 0 {
		t.Fatalf("published=%d stored=%d, want 2/0", len(pub.published), len(store.stored))
	}
}

func TestBarProcessorUnknownBackend(t *testing.T) {
	p := NewBarProcessor(&stubPublisher{}, &stubStorage{}, nopMetrics{}, "postgres", 100, time.Second)
	if err := p.Process(context.Background(), ingestBar("VNM")); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestKafkaBarsHandlerParsesMessage(t *testing.T) {
	store := &stubStorage{}
	proc := NewBarProcessor(nil, store, nopMetrics{}, "clickhouse", 100, time.Second)
	pipe := mid.NewIngestPipeline(proc, nopMetrics{})
	h := NewKafkaBarsHandler("vnflow.bars.eod", pipe, nopMetrics{})

	msg := []byte(`{"symbol":"vnm","date":"2025-06-02","o":55800,"h":56900,"l":55500,"c":56500,"v":1200000,"fb":350000,"fs":120000}`)
	if err := h.Handle(context.Background(), msg); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if len(store.stored) != 1 {
		t.Fatalf("stored %d bars, want 1", len(store.stored))
	}
	b := store.stored[0]
	if b.Symbol != "VNM" {
		t.Fatalf("symbol = %q, want VNM", b.Symbol)
	}
	if b.Date.Year() != 2025 || b.Date.Month() != time.June || b.Date.Day() != 2 {
		t.Fatalf("date = %v, want 2025-06-02", b.Date)
	}
	if b.Close != 56500 || b.Volume != 1200000 || b.ForeignBuy != 350000 {
		t.Fatalf("bar fields lost in translation: %+v", b)
	}
}

func TestKafkaBarsHandlerRejectsBadPayload(t *testing.T) {
	proc := NewBarProcessor(nil, &stubStorage{}, nopMetrics{}, "clickhouse", 100, time.Second)
	pipe := mid.NewIngestPipeline(proc, nopMetrics{})
	h := NewKafkaBarsHandler("vnflow.bars.eod", pipe, nopMetrics{})

	if err := h.Handle(context.Background(), []byte(`{not json`)); err == nil {
		t.Fatal("expected unmarshal error")
	}
	if err := h.Handle(context.Background(), []byte(`{"symbol":"VNM","date":"02/06/2025"}`)); err == nil {
		t.Fatal("expected date parse error")
	}
}
