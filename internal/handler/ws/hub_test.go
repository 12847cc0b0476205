package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"VNFlow/internal/domain/models"
	"VNFlow/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

func newTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	hub := NewHub(log)
	e := echo.New()
	hub.RegisterRoutes(e)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/signals"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if hub.Clients() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("clients = %d, want %d", hub.Clients(), want)
}

func TestHubBroadcastsOverview(t *testing.T) {
	hub, srv := newTestHub(t)
	conn := dial(t, srv)
	waitClients(t, hub, 1)

	hub.BroadcastOverview(&models.MarketOverview{
		GeneratedAt: time.Date(2025, 6, 2, 16, 0, 0, 0, time.UTC),
		Universe:    12,
		Analyzed:    11,
		Sentiment:   models.SentimentNeutral,
	})

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg struct {
		Type    string `json:"type"`
		Payload struct {
			Universe int `json:"Universe"`
			Analyzed int `json:"Analyzed"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Type != "overview" {
		t.Fatalf("type = %q, want overview", msg.Type)
	}
	if msg.Payload.Universe != 12 || msg.Payload.Analyzed != 11 {
		t.Fatalf("payload = %+v", msg.Payload)
	}
}

func TestHubBroadcastsResultToAllClients(t *testing.T) {
	hub, srv := newTestHub(t)
	a := dial(t, srv)
	b := dial(t, srv)
	waitClients(t, hub, 2)

	hub.BroadcastResult(&models.AnalysisResult{Symbol: "VNM", Bars: 60})

	for _, conn := range []*websocket.Conn{a, b} {
		conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if msg.Type != "result" {
			t.Fatalf("type = %q, want result", msg.Type)
		}
	}
}

func TestHubDropsDisconnectedClient(t *testing.T) {
	hub, srv := newTestHub(t)
	conn := dial(t, srv)
	waitClients(t, hub, 1)

	conn.Close()
	waitClients(t, hub, 0)

	// Broadcasting into an empty hub is a no-op, not a panic.
	hub.BroadcastResult(&models.AnalysisResult{Symbol: "FPT"})
}

func TestHubCloseRefusesNewClients(t *testing.T) {
	hub, srv := newTestHub(t)
	conn := dial(t, srv)
	waitClients(t, hub, 1)

	hub.Close()
	waitClients(t, hub, 0)

	// The server should hang up on a post-Close connection attempt.
	late := dial(t, srv)
	late.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, _, err := late.ReadMessage(); err == nil {
		t.Fatal("expected read to fail after hub close")
	}
	_ = conn
}
