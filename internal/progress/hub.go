// Package progress streams article generation progress to dashboard clients
// over WebSocket.
package progress

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Event is one progress update for a generation job
type Event struct {
	ArticleID uuid.UUID `json:"article_id"`
	Status    string    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Client is one connected dashboard session. send is never closed; done is
// closed exactly once on removal so publishers and the write loop can both
// observe shutdown without racing a channel close.
type client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
}

// Hub fans generation events out to the owning user's connections
type Hub struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[uuid.UUID]map[*client]struct{}
}

// NewHub creates a progress hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger: logger.Named("progress"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[uuid.UUID]map[*client]struct{}),
	}
}

// ServeWS upgrades the request for an authenticated user and keeps the
// connection until the client goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 64), done: make(chan struct{})}

	h.mu.Lock()
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*client]struct{})
	}
	h.clients[userID][c] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(c)
	h.readLoop(userID, c)
}

// Publish sends an event to every connection owned by userID. Slow clients
// are disconnected rather than blocking the publisher.
func (h *Hub) Publish(userID uuid.UUID, ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("Failed to marshal progress event", zap.Error(err))
		return
	}

	h.mu.RLock()
	conns := make([]*client, 0, len(h.clients[userID]))
	for c := range h.clients[userID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		select {
		case c.send <- data:
		case <-c.done:
		default:
			h.drop(userID, c)
		}
	}
}

// Subscribers returns the number of open connections for a user
func (h *Hub) Subscribers(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

func (h *Hub) writeLoop(c *client) {
	ping := time.NewTicker(54 * time.Second)
	defer ping.Stop()
	for {
		select {
		case <-c.done:
			c.conn.WriteMessage(websocket.CloseMessage, nil)
			return
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ping.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) readLoop(userID uuid.UUID, c *client) {
	defer h.drop(userID, c)
	c.conn.SetReadLimit(4096)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) drop(userID uuid.UUID, c *client) {
	h.mu.Lock()
	if set, ok := h.clients[userID]; ok {
		if _, present := set[c]; present {
			delete(set, c)
			close(c.done)
			if len(set) == 0 {
				delete(h.clients, userID)
			}
		}
	}
	h.mu.Unlock()
	c.conn.Close()
}
