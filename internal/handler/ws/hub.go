package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"VNFlow/internal/domain/models"
	applogger "VNFlow/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message is the wire envelope for pushed analysis output.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Hub fans fresh analysis output out to connected websocket clients. Writes
// to one connection never block another: each client has its own write lock
// and a failed write only costs that client its connection.
type Hub struct {
	l       *applogger.Logger
	mu      sync.RWMutex
	clients map[*websocket.Conn]*sync.Mutex
	closed  bool
}

func NewHub(l *applogger.Logger) *Hub {
	return &Hub{l: l, clients: make(map[*websocket.Conn]*sync.Mutex)}
}

func (h *Hub) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/signals", h.Serve)
}

// Serve upgrades the request and parks it until the client disconnects.
func (h *Hub) Serve(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		if h.l != nil {
			h.l.Warn("ws upgrade failed", applogger.Error(err))
		}
		return nil
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return nil
	}
	h.clients[conn] = &sync.Mutex{}
	total := len(h.clients)
	h.mu.Unlock()

	if h.l != nil {
		h.l.Debug("ws client connected", applogger.Int("total", total))
	}

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		remaining := len(h.clients)
		h.mu.Unlock()
		conn.Close()
		if h.l != nil {
			h.l.Debug("ws client disconnected", applogger.Int("remaining", remaining))
		}
	}()

	// Drain client frames to detect disconnects; inbound payloads are ignored.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				if h.l != nil {
					h.l.Warn("ws read error", applogger.Error(err))
				}
			}
			return nil
		}
	}
}

// Clients returns the current connection count.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastResult pushes one symbol's fresh analysis to every client.
func (h *Hub) BroadcastResult(res *models.AnalysisResult) {
	if res == nil {
		return
	}
	h.broadcast(Message{Type: "result", Payload: res})
}

// BroadcastOverview pushes a completed market overview to every client.
func (h *Hub) BroadcastOverview(ov *models.MarketOverview) {
	if ov == nil {
		return
	}
	h.broadcast(Message{Type: "overview", Payload: ov})
}

func (h *Hub) broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		if h.l != nil {
			h.l.Error("ws marshal error", applogger.String("type", msg.Type), applogger.Error(err))
		}
		return
	}

	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	locks := make([]*sync.Mutex, 0, len(h.clients))
	for conn, lock := range h.clients {
		conns = append(conns, conn)
		locks = append(locks, lock)
	}
	h.mu.RUnlock()

	for i, conn := range conns {
		locks[i].Lock()
		err := conn.WriteMessage(websocket.TextMessage, data)
		locks[i].Unlock()
		if err != nil && h.l != nil {
			// The read loop notices the broken pipe and removes the client.
			h.l.Warn("ws write error", applogger.Error(err))
		}
	}
}

// Close drops every client connection. New connections are refused afterwards.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.clients = make(map[*websocket.Conn]*sync.Mutex)
	h.mu.Unlock()

	for _, conn := range conns {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
			time.Now().Add(time.Second))
		conn.Close()
	}
}
