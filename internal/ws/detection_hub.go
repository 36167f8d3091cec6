package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"cvcounter/internal/eventbus"
)

// Hub manages WebSocket connections for real-time event delivery, keyed by
// location rather than camera, and bridges each location's event bus
// subscription onto its connected clients.
type Hub struct {
	clients map[string]map[*websocket.Conn]bool
	mu      sync.RWMutex
	logger  *log.Logger
}

// NewHub creates a new event hub. A nil logger discards log output.
func NewHub(logger *log.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*websocket.Conn]bool),
		logger:  logger,
	}
}

func (h *Hub) log(format string, args ...interface{}) {
	if h.logger != nil {
		h.logger.Printf(format, args...)
	}
}

// Register adds a connection for a specific location.
func (h *Hub) Register(location string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[location] == nil {
		h.clients[location] = make(map[*websocket.Conn]bool)
	}
	h.clients[location][conn] = true
	h.log("[ws] client registered for %s (total: %d)", location, len(h.clients[location]))
}

// Unregister removes a connection for a specific location.
func (h *Hub) Unregister(location string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.clients[location]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.clients, location)
		}
		h.log("[ws] client unregistered for %s", location)
	}
}

// HasClients returns true if there are any clients connected for a location.
func (h *Hub) HasClients(location string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	conns, ok := h.clients[location]
	return ok && len(conns) > 0
}

// BroadcastToLocation sends a raw message to all clients subscribed to a
// location.
func (h *Hub) BroadcastToLocation(location string, message []byte) {
	h.mu.RLock()
	conns := h.clients[location]
	h.mu.RUnlock()

	for conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
			h.log("[ws] write error for %s: %v", location, err)
			h.Unregister(location, conn)
			conn.Close()
		}
	}
}

// BroadcastEvent encodes and delivers one bus event to every client
// subscribed to its location.
func (h *Hub) BroadcastEvent(ev eventbus.Event) {
	if !h.HasClients(ev.Location) {
		return
	}
	data, err := json.Marshal(FromEvent(ev))
	if err != nil {
		h.log("[ws] marshal error: %v", err)
		return
	}
	h.BroadcastToLocation(ev.Location, data)
}

// Pump subscribes to bus for location and forwards every event to connected
// clients until stop is closed or the subscription channel closes. Run it in its own
// goroutine, one per location that has ever had a client connect.
func (h *Hub) Pump(stop <-chan struct{}, bus *eventbus.Bus, location string) {
	ch, unsubscribe := bus.Subscribe(location, 64)
	defer unsubscribe()

	for {
		select {
		case <-stop:
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			h.BroadcastEvent(ev)
		}
	}
}

// ClientCount returns the total number of connected clients across all
// locations.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, conns := range h.clients {
		count += len(conns)
	}
	return count
}
