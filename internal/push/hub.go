package push

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"xnom/internal/logging"
	"xnom/internal/metrics"
)

const writeWait = 5 * time.Second

// Hub is the WebSocket endpoint clients connect to for live events.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	closed  bool
	wg      sync.WaitGroup
}

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) write(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

func (c *wsClient) writeEvent(ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return c.write(b)
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*wsClient]struct{}),
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and serves the client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("ws_upgrade_error", map[string]any{"error": err})
		return
	}
	client := &wsClient{conn: conn}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[client] = struct{}{}
	n := len(h.clients)
	h.wg.Add(1)
	h.mu.Unlock()
	metrics.PushClients.Set(float64(n))
	logging.Info("ws_client_connected", map[string]any{"remote": r.RemoteAddr, "clients": n})

	_ = client.writeEvent(NewEvent(TypeConnection, map[string]any{"message": "Connected to xnom"}))
	go h.readLoop(client)
}

type incoming struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (h *Hub) readLoop(c *wsClient) {
	defer h.wg.Done()
	defer h.remove(c)
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.Debug("ws_read_error", map[string]any{"error": err})
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		var msg incoming
		if err := json.Unmarshal(data, &msg); err != nil {
			logging.Debug("ws_bad_message", map[string]any{"error": err})
			continue
		}
		switch msg.Type {
		case "ping":
			_ = c.writeEvent(NewEvent(TypePong, nil))
		case "subscribe":
			var payload any
			_ = json.Unmarshal(msg.Payload, &payload)
			_ = c.writeEvent(NewEvent(TypeSubscribed, payload))
		default:
			logging.Debug("ws_unknown_message", map[string]any{"type": msg.Type})
		}
	}
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	_ = c.conn.Close()
	if ok {
		metrics.PushClients.Set(float64(n))
		logging.Info("ws_client_disconnected", map[string]any{"clients": n})
	}
}

// Broadcast writes ev to every client. Clients whose write fails are dropped.
func (h *Hub) Broadcast(ev Event) {
	b, err := json.Marshal(ev)
	if err != nil {
		logging.Error("ws_encode_error", map[string]any{"type": ev.Type, "error": err})
		return
	}
	h.mu.RLock()
	targets := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.write(b); err != nil {
			logging.Warn("ws_write_error", map[string]any{"type": ev.Type, "error": err})
			h.remove(c)
		}
	}
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	targets := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()
	for _, c := range targets {
		c.mu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"), time.Now().Add(time.Second))
		c.mu.Unlock()
		h.remove(c)
	}
	h.wg.Wait()
}
