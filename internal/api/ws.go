package api

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/lodpnet/lodp/internal/node"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// eventClient is one connected event-feed subscriber.
type eventClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *eventClient) sendJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(v)
}

// EventHub fans node lifecycle events out to websocket subscribers.
type EventHub struct {
	clients map[*eventClient]struct{}
	mu      sync.RWMutex
	log     *slog.Logger
}

// NewEventHub creates an empty hub.
func NewEventHub(log *slog.Logger) *EventHub {
	return &EventHub{
		clients: make(map[*eventClient]struct{}),
		log:     log.With("component", "events"),
	}
}

// Publish broadcasts one event to every subscriber. Safe to hand to
// node.Options.Publish directly.
func (h *EventHub) Publish(ev node.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if err := c.sendJSON(ev); err != nil {
			h.log.Debug("event push failed", "err", err)
		}
	}
}

// HandleEvents upgrades the connection and streams events until the
// client goes away.
func (h *EventHub) HandleEvents(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error("websocket upgrade failed", "err", err)
		return
	}

	client := &eventClient{conn: conn}
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.log.Info("event subscriber connected", "remote", c.Request.RemoteAddr)

	defer func() {
		h.mu.Lock()
		delete(h.clients, client)
		h.mu.Unlock()
		conn.Close()
		h.log.Info("event subscriber disconnected", "remote", c.Request.RemoteAddr)
	}()

	// Reads are drained only to notice the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("event subscriber error", "err", err)
			}
			return
		}
	}
}
