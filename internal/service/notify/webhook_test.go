package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"VNFlow/internal/domain/models"
	"VNFlow/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func strongResult() *models.AnalysisResult {
	return &models.AnalysisResult{
		Symbol: "HPG",
		AsOf:   time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
		Bars:   60,
		Composite: models.CompositeResult{
			Score:    86.2,
			Class:    models.StrongBuy,
			Strength: models.Strong,
			Action:   models.StrongBuy.Action(),
		},
		Context: models.MarketContext{AdjustedScore: 88.1},
		Signals: models.EntryExitSignals{
			Entries: []models.TradeSignal{{Code: "ENTRY_SCORE_CROSS", Description: "x"}},
			Sizing:  models.PositionSizing{Tier: models.SizingFull, Fraction: 0.2},
		},
	}
}

func TestWebhookPostsStrongSignal(t *testing.T) {
	var got struct {
		Event   string   `json:"event"`
		Symbol  string   `json:"symbol"`
		AsOf    string   `json:"as_of"`
		Class   string   `json:"class"`
		Score   float64  `json:"score"`
		Entries []string `json:"entries"`
	}
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, time.Second, 1, testLogger(t))
	if err := n.Notify(context.Background(), strongResult()); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("webhook hit %d times, want 1", calls)
	}
	if got.Event != "signal" || got.Symbol != "HPG" || got.Class != "STRONG_BUY" {
		t.Fatalf("payload mangled: %+v", got)
	}
	if got.AsOf != "2025-06-02" {
		t.Fatalf("as_of = %q, want 2025-06-02", got.AsOf)
	}
	if len(got.Entries) != 1 || got.Entries[0] != "ENTRY_SCORE_CROSS" {
		t.Fatalf("entries = %v", got.Entries)
	}
}

func TestWebhookSkipsOrdinarySignals(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, time.Second, 1, testLogger(t))
	res := strongResult()
	res.Composite.Class = models.Hold

	if err := n.Notify(context.Background(), res); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatalf("webhook hit %d times for HOLD, want 0", calls)
	}
}

func TestWebhookRetriesOnFailure(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, time.Second, 3, testLogger(t))
	n.backoff = time.Millisecond

	if err := n.Notify(context.Background(), strongResult()); err != nil {
		t.Fatalf("Notify should succeed on third attempt: %v", err)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("webhook hit %d times, want 3", calls)
	}
}

func TestWebhookDisabledWithoutURL(t *testing.T) {
	n := NewWebhookNotifier("", time.Second, 3, testLogger(t))
	if err := n.Notify(context.Background(), strongResult()); err != nil {
		t.Fatalf("Notify with empty URL: %v", err)
	}
}
