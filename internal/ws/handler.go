package ws

import (
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"cvcounter/internal/eventbus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler upgrades HTTP connections to WebSocket and bridges them onto the
// event bus for one location each. Expected URL format:
// /ws/events/{location}.
type Handler struct {
	hub    *Hub
	bus    *eventbus.Bus
	logger *log.Logger

	mu     sync.Mutex
	pumps  map[string]chan struct{} // one Pump goroutine per location that has ever had a client
}

// NewHandler creates a new WebSocket handler bridging bus events for
// locations onto connected clients via hub.
func NewHandler(hub *Hub, bus *eventbus.Bus, logger *log.Logger) *Handler {
	return &Handler{
		hub:    hub,
		bus:    bus,
		logger: logger,
		pumps:  make(map[string]chan struct{}),
	}
}

func (h *Handler) log(format string, args ...interface{}) {
	if h.logger != nil {
		h.logger.Printf(format, args...)
	}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/ws/events/")
	location := strings.TrimSuffix(path, "/")

	if location == "" {
		http.Error(w, "location required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log("[ws] upgrade error: %v", err)
		return
	}

	h.log("[ws] new connection for %s from %s", location, r.RemoteAddr)
	h.hub.Register(location, conn)
	h.ensurePump(location)

	go h.readPump(location, conn)
}

// ensurePump starts a Hub.Pump goroutine for location the first time it is
// needed, and is a no-op on subsequent clients for the same location.
func (h *Handler) ensurePump(location string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.pumps[location]; ok {
		return
	}
	stop := make(chan struct{})
	h.pumps[location] = stop
	go h.hub.Pump(stop, h.bus, location)
}

// readPump reads messages from the WebSocket connection to detect
// disconnection and keep it alive with periodic pings.
func (h *Handler) readPump(location string, conn *websocket.Conn) {
	defer func() {
		h.hub.Unregister(location, conn)
		conn.Close()
	}()

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	go func() {
		for range ticker.C {
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}()

	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log("[ws] read error for %s: %v", location, err)
			}
			break
		}
	}
}
