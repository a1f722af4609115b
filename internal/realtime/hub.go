// Package realtime broadcasts MCP server status changes to subscribed
// WebSocket clients, supplementing the request/response control-plane API
// with a live status feed.
package realtime

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/langconnect/mcp-control-plane/internal/obslog"
	"github.com/langconnect/mcp-control-plane/internal/status"
)

// StatusEvent is broadcast to subscribers whenever a managed server's
// lifecycle status changes.
type StatusEvent struct {
	ServerID  string       `json:"server_id"`
	Status    status.State `json:"status"`
	Detail    string       `json:"detail,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

type subscriber struct {
	id     uuid.UUID
	userID string
	conn   *websocket.Conn
	send   chan StatusEvent
}

// Hub fans out status events to every subscriber scoped to the owning
// user, so one user's server activity is never visible to another.
type Hub struct {
	upgrader websocket.Upgrader

	mu          sync.RWMutex
	subscribers map[string]map[uuid.UUID]*subscriber // userID -> connID -> subscriber

	log zerolog.Logger
}

// NewHub builds an empty Hub. allowedOrigins mirrors the teacher's
// configurable CORS allow-list for WebSocket upgrades; an empty list
// allows every origin.
func NewHub(allowedOrigins []string) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowedOrigins) == 0 {
					return true
				}
				origin := r.Header.Get("Origin")
				for _, allowed := range allowedOrigins {
					if allowed == "*" || allowed == origin {
						return true
					}
				}
				return false
			},
		},
		subscribers: make(map[string]map[uuid.UUID]*subscriber),
		log:         obslog.Component("realtime"),
	}
}

// Serve upgrades an HTTP request to a WebSocket connection and registers
// it as a subscriber for userID until the connection closes.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	sub := &subscriber{id: uuid.New(), userID: userID, conn: conn, send: make(chan StatusEvent, 16)}
	h.add(sub)
	defer h.remove(sub)

	go h.writeLoop(sub)
	return h.readLoop(sub)
}

func (h *Hub) add(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subscribers[sub.userID] == nil {
		h.subscribers[sub.userID] = make(map[uuid.UUID]*subscriber)
	}
	h.subscribers[sub.userID][sub.id] = sub
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subscribers[sub.userID], sub.id)
	if len(h.subscribers[sub.userID]) == 0 {
		delete(h.subscribers, sub.userID)
	}
	close(sub.send)
	sub.conn.Close()
}

// readLoop drains (and discards) client frames purely to detect
// disconnects and respond to pings; this feed is server-to-client only.
func (h *Hub) readLoop(sub *subscriber) error {
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return err
		}
	}
}

func (h *Hub) writeLoop(sub *subscriber) {
	for event := range sub.send {
		payload, err := json.Marshal(event)
		if err != nil {
			continue
		}
		if err := sub.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

// Broadcast delivers event to every subscriber owned by userID. When a
// subscriber's send buffer is full the event is dropped for that subscriber
// rather than allowed to block the publisher; the subscriber stays connected.
func (h *Hub) Broadcast(userID string, event StatusEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subscribers[userID] {
		select {
		case sub.send <- event:
		default:
			h.log.Warn().Str("user_id", userID).Msg("dropping status event for slow subscriber")
		}
	}
}
