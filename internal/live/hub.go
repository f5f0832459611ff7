// Package live pushes committed account events to connected browser clients
// over WebSockets. Each connection only receives events for its own user.
package live

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DukeRupert/dialpool/internal/domain"
	"github.com/DukeRupert/dialpool/internal/metrics"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 32
	eventBuffer    = 256
)

// MessageConnected is sent once when a connection is registered.
const MessageConnected = "connected"

// Message is the envelope written to clients.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	send   chan []byte
}

// Hub tracks live connections per user and fans events out to them.
// It implements service.Publisher.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	clients    map[string]map[*client]struct{}
	register   chan *client
	unregister chan *client
	events     chan domain.AccountEvent

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	count    atomic.Int64
}

// NewHub creates a hub. Browser connections are accepted from allowedOrigins
// ("*" admits any) and from the server's own host.
func NewHub(allowedOrigins []string, logger *slog.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
		logger:     logger,
		clients:    make(map[string]map[*client]struct{}),
		register:   make(chan *client),
		unregister: make(chan *client),
		events:     make(chan domain.AccountEvent, eventBuffer),
		stopCh:     make(chan struct{}),
	}
}

// Start runs the dispatch loop in the background.
func (h *Hub) Start() {
	h.wg.Add(1)
	go h.run()
	h.logger.Info("live hub started")
}

// Stop disconnects every client and waits for the dispatch loop to exit.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
	})
	h.wg.Wait()
	h.logger.Info("live hub stopped")
}

// Publish queues event for delivery. It never blocks; events are dropped when
// the queue is full.
func (h *Hub) Publish(event domain.AccountEvent) {
	select {
	case h.events <- event:
	default:
		h.logger.Warn("live event dropped", "type", string(event.Type), "user_id", event.UserID)
	}
}

// ClientCount returns the number of registered connections.
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

// ServeWS upgrades the request and registers the connection for userID.
// The caller is responsible for authenticating userID.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		h.logger.Info("live upgrade failed", "user_id", userID, "error", err)
		return
	}

	c := &client{
		hub:    h,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, sendBuffer),
	}

	select {
	case h.register <- c:
	case <-h.stopCh:
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func (h *Hub) run() {
	defer h.wg.Done()

	for {
		select {
		case c := <-h.register:
			h.add(c)

		case c := <-h.unregister:
			h.remove(c)

		case event := <-h.events:
			h.dispatch(event)

		case <-h.stopCh:
			for _, set := range h.clients {
				for c := range set {
					h.remove(c)
				}
			}
			return
		}
	}
}

func (h *Hub) add(c *client) {
	set, ok := h.clients[c.userID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
	h.count.Add(1)
	metrics.LiveConnections.Inc()

	h.logger.Debug("live client connected", "user_id", c.userID, "total_clients", h.ClientCount())

	if data, err := encode(MessageConnected, map[string]string{"userId": c.userID}); err == nil {
		select {
		case c.send <- data:
		default:
		}
	}
}

func (h *Hub) remove(c *client) {
	set, ok := h.clients[c.userID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.userID)
	}
	close(c.send)
	h.count.Add(-1)
	metrics.LiveConnections.Dec()

	h.logger.Debug("live client disconnected", "user_id", c.userID, "remaining_clients", h.ClientCount())
}

func (h *Hub) dispatch(event domain.AccountEvent) {
	set := h.clients[event.UserID]
	if len(set) == 0 {
		return
	}

	data, err := encode(string(event.Type), event)
	if err != nil {
		h.logger.Error("failed to encode live event", "type", string(event.Type), "error", err)
		return
	}

	for c := range set {
		select {
		case c.send <- data:
		default:
			// Slow consumer
			h.remove(c)
		}
	}
}

func encode(msgType string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Type: msgType, Data: raw})
}

// readPump discards client frames and keeps the read deadline fresh via pongs.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.stopCh:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("live read error", "user_id", c.userID, "error", err)
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}
