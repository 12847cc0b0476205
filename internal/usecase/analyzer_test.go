package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"VNFlow/internal/domain/models"
	domsvc "VNFlow/internal/domain/service"
	"VNFlow/internal/services/analytics"
	"VNFlow/pkg/config"
	"VNFlow/pkg/logger"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func dailyBars(symbol string, n int) []models.PriceBar {
	base := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	bars := make([]models.PriceBar, n)
	c := 20000.0
	for i := 0; i < n; i++ {
		c *= 1.002
		bars[i] = models.PriceBar{
			Symbol: symbol,
			Date:   base.AddDate(0, 0, i),
			Open:   c * 0.995,
			High:   c * 1.005,
			Low:    c * 0.99,
			Close:  c,
			Volume: 1_000_000,
		}
	}
	return bars
}

type stubBarStore struct {
	mu   sync.Mutex
	bars map[string][]models.PriceBar
	seen []string
	err  error
}

func (s *stubBarStore) GetDailyBars(ctx context.Context, symbol string, from, to time.Time) ([]models.PriceBar, error) {
	s.mu.Lock()
	s.seen = append(s.seen, symbol)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.bars[symbol], nil
}

func (s *stubBarStore) GetLatestBars(ctx context.Context, symbol string, n int) ([]models.PriceBar, error) {
	bs := s.bars[symbol]
	if len(bs) > n {
		bs = bs[len(bs)-n:]
	}
	return bs, nil
}

type stubInstrumentStore struct {
	meta     map[string]*models.InstrumentMetadata
	universe []string
	metaErr  error
	listErr  error
}

func (s *stubInstrumentStore) GetInstrument(ctx context.Context, symbol string) (*models.InstrumentMetadata, error) {
	if s.metaErr != nil {
		return nil, s.metaErr
	}
	m, ok := s.meta[symbol]
	if !ok {
		return nil, domsvc.ErrMetadataUnavailable
	}
	return m, nil
}

func (s *stubInstrumentStore) GetInstruments(ctx context.Context, symbols []string) (map[string]*models.InstrumentMetadata, error) {
	out := make(map[string]*models.InstrumentMetadata, len(symbols))
	for _, sym := range symbols {
		if m, ok := s.meta[sym]; ok {
			out[sym] = m
		}
	}
	return out, nil
}

func (s *stubInstrumentStore) ListUniverse(ctx context.Context) ([]string, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.universe, nil
}

func newTestAnalyzer(t *testing.T, bars *stubBarStore, instruments *stubInstrumentStore) *AnalyzerUseCase {
	t.Helper()
	engine := analytics.NewEngine(config.DefaultCalibration())
	return NewAnalyzerUseCase(bars, instruments, engine, newTestLogger(t))
}

func TestAnalyzeRequiresSymbol(t *testing.T) {
	uc := newTestAnalyzer(t, &stubBarStore{}, &stubInstrumentStore{})
	if _, err := uc.Analyze(context.Background(), AnalyzeParams{}); err == nil {
		t.Fatal("expected error for empty symbol")
	}
}

func TestAnalyzeNormalizesSymbol(t *testing.T) {
	store := &stubBarStore{bars: map[string][]models.PriceBar{"VNM": dailyBars("VNM", 60)}}
	uc := newTestAnalyzer(t, store, &stubInstrumentStore{})

	res, err := uc.Analyze(context.Background(), AnalyzeParams{Symbol: "  vnm "})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.Symbol != "VNM" {
		t.Fatalf("symbol = %q, want VNM", res.Symbol)
	}
	if len(store.seen) != 1 || store.seen[0] != "VNM" {
		t.Fatalf("store queried with %v, want [VNM]", store.seen)
	}
}

func TestAnalyzeMetadataDegradesToNeutral(t *testing.T) {
	store := &stubBarStore{bars: map[string][]models.PriceBar{"FPT": dailyBars("FPT", 60)}}
	instruments := &stubInstrumentStore{metaErr: fmt.Errorf("clickhouse down")}
	uc := newTestAnalyzer(t, store, instruments)

	res, err := uc.Analyze(context.Background(), AnalyzeParams{Symbol: "FPT"})
	if err != nil {
		t.Fatalf("Analyze should survive a metadata outage, got %v", err)
	}
	if got := res.Context.TotalAdjustment(); got != 0 {
		t.Fatalf("adjustment without metadata = %v, want 0", got)
	}
	if res.Context.AdjustedScore != res.Composite.Score {
		t.Fatalf("adjusted %v != composite %v without metadata",
			res.Context.AdjustedScore, res.Composite.Score)
	}
}

func TestAnalyzeInsufficientData(t *testing.T) {
	store := &stubBarStore{bars: map[string][]models.PriceBar{"HAG": dailyBars("HAG", 3)}}
	uc := newTestAnalyzer(t, store, &stubInstrumentStore{})

	_, err := uc.Analyze(context.Background(), AnalyzeParams{Symbol: "HAG"})
	if !errors.Is(err, domsvc.ErrInsufficientData) {
		t.Fatalf("err = %v, want ErrInsufficientData", err)
	}
}

func TestAnalyzeWrapsStoreFailure(t *testing.T) {
	store := &stubBarStore{err: fmt.Errorf("connection refused")}
	uc := newTestAnalyzer(t, store, &stubInstrumentStore{})

	_, err := uc.Analyze(context.Background(), AnalyzeParams{Symbol: "SSI"})
	if err == nil || !strings.Contains(err.Error(), "load bars for SSI") {
		t.Fatalf("err = %v, want wrapped store failure", err)
	}
}
