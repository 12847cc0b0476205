package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"VNFlow/internal/domain/models"
	domsvc "VNFlow/internal/domain/service"
	icache "VNFlow/internal/service/cache"
	"VNFlow/internal/services/analytics"
	"VNFlow/internal/usecase"
	"VNFlow/pkg/config"
	"VNFlow/pkg/logger"

	"github.com/labstack/echo/v4"
)

type stubBars struct {
	mu    sync.Mutex
	bars  map[string][]models.PriceBar
	calls int
}

func (s *stubBars) GetDailyBars(ctx context.Context, symbol string, from, to time.Time) ([]models.PriceBar, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.bars[symbol], nil
}

func (s *stubBars) GetLatestBars(ctx context.Context, symbol string, n int) ([]models.PriceBar, error) {
	return s.bars[symbol], nil
}

type stubInstruments struct {
	universe []string
}

func (s *stubInstruments) GetInstrument(ctx context.Context, symbol string) (*models.InstrumentMetadata, error) {
	return nil, domsvc.ErrMetadataUnavailable
}

func (s *stubInstruments) GetInstruments(ctx context.Context, symbols []string) (map[string]*models.InstrumentMetadata, error) {
	return map[string]*models.InstrumentMetadata{}, nil
}

func (s *stubInstruments) ListUniverse(ctx context.Context) ([]string, error) {
	return s.universe, nil
}

type stubQueue struct {
	mu       sync.Mutex
	types    []string
	payloads []map[string]interface{}
	err      error
}

func (q *stubQueue) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	if q.err != nil {
		return q.err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.types = append(q.types, msgType)
	if m, ok := payload.(map[string]interface{}); ok {
		q.payloads = append(q.payloads, m)
	}
	return nil
}

func testBars(symbol string, n int) []models.PriceBar {
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

func newTestHandler(t *testing.T, bars *stubBars, universe []string, q *stubQueue) *AnalysisHandler {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	instruments := &stubInstruments{universe: universe}
	engine := analytics.NewEngine(config.DefaultCalibration())
	analyzer := usecase.NewAnalyzerUseCase(bars, instruments, engine, log)
	overview := usecase.NewOverviewUseCase(analyzer, instruments, analytics.NewOverviewBuilder(config.DefaultCalibration()), 4, log)
	h := NewAnalysisHandler(analyzer, overview, q)
	h.SetLogger(log)
	return h
}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func doGET(t *testing.T, h func(echo.Context) error, target string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	if err := h(e.NewContext(req, rec)); err != nil {
		t.Fatalf("handler: %v", err)
	}
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (body %s)", err, rec.Body.String())
	}
	return rec, env
}

func doPOST(t *testing.T, h func(echo.Context) error, target, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	if err := h(e.NewContext(req, rec)); err != nil {
		t.Fatalf("handler: %v", err)
	}
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (body %s)", err, rec.Body.String())
	}
	return rec, env
}

func TestAnalyzeEndpoint(t *testing.T) {
	bars := &stubBars{bars: map[string][]models.PriceBar{"VNM": testBars("VNM", 60)}}
	h := newTestHandler(t, bars, nil, &stubQueue{})

	_, env := doGET(t, h.Analyze, "/api/analyze?symbol=VNM&days=90")
	if env.Status != http.StatusOK {
		t.Fatalf("status = %d, want 200 (data %s)", env.Status, env.Data)
	}
	var res models.AnalysisResult
	if err := json.Unmarshal(env.Data, &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.Symbol != "VNM" {
		t.Fatalf("symbol = %q, want VNM", res.Symbol)
	}
	if res.Composite.Score < 0 || res.Composite.Score > 100 {
		t.Fatalf("composite score %v out of range", res.Composite.Score)
	}
	if res.Bars != 60 {
		t.Fatalf("bars = %d, want 60", res.Bars)
	}
}

func TestAnalyzeEndpointRequiresSymbol(t *testing.T) {
	h := newTestHandler(t, &stubBars{}, nil, &stubQueue{})

	_, env := doGET(t, h.Analyze, "/api/analyze")
	if env.Status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", env.Status)
	}
}

func TestAnalyzeEndpointInsufficientData(t *testing.T) {
	bars := &stubBars{bars: map[string][]models.PriceBar{"ROS": testBars("ROS", 3)}}
	h := newTestHandler(t, bars, nil, &stubQueue{})

	_, env := doGET(t, h.Analyze, "/api/analyze?symbol=ROS")
	if env.Status != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422 (data %s)", env.Status, env.Data)
	}
	if !strings.Contains(string(env.Data), "ERR_INSUFFICIENT_DATA") {
		t.Fatalf("data %s missing ERR_INSUFFICIENT_DATA", env.Data)
	}
}

func TestAnalyzeEndpointCachesResponse(t *testing.T) {
	bars := &stubBars{bars: map[string][]models.PriceBar{"VNM": testBars("VNM", 60)}}
	h := newTestHandler(t, bars, nil, &stubQueue{})
	h.SetCache(icache.NewTTLCache())

	_, first := doGET(t, h.Analyze, "/api/analyze?symbol=VNM")
	_, second := doGET(t, h.Analyze, "/api/analyze?symbol=VNM")
	if bars.calls != 1 {
		t.Fatalf("store calls = %d, want 1 (second request should hit the cache)", bars.calls)
	}
	if string(first.Data) != string(second.Data) {
		t.Fatalf("cached payload differs:\n%s\n%s", first.Data, second.Data)
	}
}

func TestOverviewEndpoint(t *testing.T) {
	bars := &stubBars{bars: map[string][]models.PriceBar{
		"VNM": testBars("VNM", 60),
		"FPT": testBars("FPT", 60),
	}}
	h := newTestHandler(t, bars, []string{"VNM", "FPT"}, &stubQueue{})

	_, env := doGET(t, h.Overview, "/api/overview?top=5")
	if env.Status != http.StatusOK {
		t.Fatalf("status = %d, want 200 (data %s)", env.Status, env.Data)
	}
	var ov models.MarketOverview
	if err := json.Unmarshal(env.Data, &ov); err != nil {
		t.Fatalf("decode overview: %v", err)
	}
	if ov.Universe != 2 || ov.Analyzed != 2 {
		t.Fatalf("universe/analyzed = %d/%d, want 2/2", ov.Universe, ov.Analyzed)
	}
}

func TestOverviewEndpointExplicitSymbols(t *testing.T) {
	bars := &stubBars{bars: map[string][]models.PriceBar{
		"VNM": testBars("VNM", 60),
		"FPT": testBars("FPT", 60),
	}}
	h := newTestHandler(t, bars, []string{"VNM", "FPT", "SSI"}, &stubQueue{})

	_, env := doGET(t, h.Overview, "/api/overview?symbols=vnm,%20fpt%20")
	if env.Status != http.StatusOK {
		t.Fatalf("status = %d, want 200 (data %s)", env.Status, env.Data)
	}
	var ov models.MarketOverview
	if err := json.Unmarshal(env.Data, &ov); err != nil {
		t.Fatalf("decode overview: %v", err)
	}
	if ov.Universe != 2 {
		t.Fatalf("universe = %d, want 2 (explicit symbols ignore the stored universe)", ov.Universe)
	}
}

func TestRefreshEndpointQueues(t *testing.T) {
	q := &stubQueue{}
	bars := &stubBars{bars: map[string][]models.PriceBar{"VNM": testBars("VNM", 60)}}
	h := newTestHandler(t, bars, nil, q)

	_, env := doPOST(t, h.Refresh, "/api/refresh", `{"symbol":"vnm"}`)
	if env.Status != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (data %s)", env.Status, env.Data)
	}
	if len(q.types) != 1 || q.types[0] != usecase.RefreshJobType {
		t.Fatalf("queued types = %v, want [%s]", q.types, usecase.RefreshJobType)
	}
	p := q.payloads[0]
	if p["symbol"] != "VNM" {
		t.Fatalf("payload symbol = %v, want VNM", p["symbol"])
	}
	if p["days_back"] != 90 {
		t.Fatalf("payload days_back = %v, want default 90", p["days_back"])
	}
}

func TestRefreshEndpointValidates(t *testing.T) {
	q := &stubQueue{}
	h := newTestHandler(t, &stubBars{}, nil, q)

	_, env := doPOST(t, h.Refresh, "/api/refresh", `{"days":30}`)
	if env.Status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", env.Status)
	}
	if len(q.types) != 0 {
		t.Fatalf("queue touched on invalid request: %v", q.types)
	}
}

func TestRefreshEndpointRateLimited(t *testing.T) {
	q := &stubQueue{}
	h := newTestHandler(t, &stubBars{}, nil, q)

	var last envelope
	for i := 0; i < 3; i++ {
		_, last = doPOST(t, h.Refresh, "/api/refresh", `{"symbol":"VNM"}`)
	}
	if last.Status != http.StatusTooManyRequests {
		t.Fatalf("third burst request status = %d, want 429", last.Status)
	}
	if len(q.types) != 2 {
		t.Fatalf("queued = %d, want 2 before the limiter kicks in", len(q.types))
	}
}

func TestHealthzEndpoint(t *testing.T) {
	h := newTestHandler(t, &stubBars{}, nil, &stubQueue{})

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	if err := h.Healthz(e.NewContext(req, rec)); err != nil {
		t.Fatalf("healthz: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200", rec.Code)
	}

	h.SetHealthCheck(func(ctx context.Context) error { return fmt.Errorf("clickhouse unreachable") })
	rec = httptest.NewRecorder()
	if err := h.Healthz(e.NewContext(httptest.NewRequest(http.MethodGet, "/healthz", nil), rec)); err != nil {
		t.Fatalf("healthz: %v", err)
	}
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("code = %d, want 503 when the probe fails", rec.Code)
	}
}
