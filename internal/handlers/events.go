package handlers

import (
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	appErrors "github.com/example/fileuploader/internal/errors"
	"github.com/example/fileuploader/internal/uploader"
)

const (
	// AllBatches subscribes a client to every batch.
	AllBatches = "*"

	sendBuffer     = 256
	broadcastQueue = 1024
	maxMessageSize = 32 * 1024
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	writeWait      = 10 * time.Second
)

// ClientMessage represents a message from a client
type ClientMessage struct {
	Type   string `json:"type"`
	TaskID string `json:"taskId,omitempty"`
}

// ServerMessage represents a message to a client. TaskID carries the batch id.
type ServerMessage struct {
	Type      string `json:"type"`
	TaskID    string `json:"taskId,omitempty"`
	Content   any    `json:"content,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// BatchSummary is the content of a "batch" event.
type BatchSummary struct {
	Stored int              `json:"stored"`
	Failed int              `json:"failed"`
	Error  *appErrors.Error `json:"error,omitempty"`
}

type client struct {
	hub   *EventHub
	conn  *websocket.Conn
	send  chan ServerMessage
	id    string
	tasks map[string]struct{}
}

// EventHub streams per-item and per-batch upload outcomes to websocket
// clients. It implements uploader.Observer; publishing never blocks the
// uploader, events are dropped when the queue is full.
type EventHub struct {
	upgrader websocket.Upgrader
	logger   *zap.Logger

	// mu guards clients, tasks and every send channel.
	mu      sync.RWMutex
	clients map[string]*client
	tasks   map[string]map[string]*client

	register   chan *client
	unregister chan *client
	broadcast  chan ServerMessage

	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewEventHub creates a hub accepting websocket connections from
// allowedOrigins. An empty list allows same-origin requests only; "*" allows
// any origin.
func NewEventHub(allowedOrigins []string, logger *zap.Logger) *EventHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &EventHub{
		logger:     logger,
		clients:    make(map[string]*client),
		tasks:      make(map[string]map[string]*client),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan ServerMessage, broadcastQueue),
		shutdown:   make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      originChecker(allowedOrigins, logger),
	}
	return h
}

func originChecker(allowed []string, logger *zap.Logger) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		if len(allowed) == 0 {
			if u, err := url.Parse(origin); err == nil && u.Host == r.Host {
				return true
			}
		}
		logger.Warn("rejected websocket origin", zap.String("origin", origin))
		return false
	}
}

// Run starts the hub loop. It returns immediately.
func (h *EventHub) Run() {
	go func() {
		for {
			select {
			case <-h.shutdown:
				h.mu.Lock()
				for _, c := range h.clients {
					h.dropLocked(c)
				}
				h.mu.Unlock()
				return

			case c := <-h.register:
				h.mu.Lock()
				h.clients[c.id] = c
				for task := range c.tasks {
					h.linkLocked(c, task)
				}
				h.mu.Unlock()
				h.reply(c, ServerMessage{Type: "connected", Content: map[string]any{"clientId": c.id}})

			case c := <-h.unregister:
				h.mu.Lock()
				h.dropLocked(c)
				h.mu.Unlock()

			case msg := <-h.broadcast:
				h.deliver(msg)
			}
		}
	}()
}

// Shutdown closes every client connection and stops the hub.
func (h *EventHub) Shutdown() {
	h.shutdownOnce.Do(func() { close(h.shutdown) })
}

// Clients returns the number of connected clients.
func (h *EventHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ItemDone implements uploader.Observer.
func (h *EventHub) ItemDone(batchID string, res uploader.Result) {
	h.publish(ServerMessage{Type: "item", TaskID: batchID, Content: res})
}

// BatchDone implements uploader.Observer.
func (h *EventHub) BatchDone(batchID string, results *uploader.Results, err error) {
	summary := BatchSummary{Error: appErrors.FromError(err)}
	if results != nil {
		summary.Stored = len(results.Files())
		summary.Failed = len(results.Errors())
	}
	h.publish(ServerMessage{Type: "batch", TaskID: batchID, Content: summary})
}

func (h *EventHub) publish(msg ServerMessage) {
	msg.Timestamp = time.Now().UnixMilli()
	select {
	case <-h.shutdown:
		return
	default:
	}
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("event queue full, dropping event", zap.String("type", msg.Type), zap.String("batch", msg.TaskID))
	}
}

func (h *EventHub) deliver(msg ServerMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	targets := make(map[string]*client)
	for id, c := range h.tasks[msg.TaskID] {
		targets[id] = c
	}
	for id, c := range h.tasks[AllBatches] {
		targets[id] = c
	}
	for _, c := range targets {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("websocket client too slow, disconnecting", zap.String("client", c.id))
			h.dropLocked(c)
		}
	}
}

// dropLocked removes c and closes its send channel. h.mu must be held.
func (h *EventHub) dropLocked(c *client) {
	if _, ok := h.clients[c.id]; !ok {
		return
	}
	delete(h.clients, c.id)
	for task := range c.tasks {
		if subs := h.tasks[task]; subs != nil {
			delete(subs, c.id)
			if len(subs) == 0 {
				delete(h.tasks, task)
			}
		}
	}
	close(c.send)
}

// reply sends msg to c if it is still connected.
func (h *EventHub) reply(c *client, msg ServerMessage) {
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMilli()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c.id]; !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (h *EventHub) subscribe(c *client, task string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.id]; !ok {
		return
	}
	h.linkLocked(c, task)
}

// linkLocked adds c to the subscribers of task. h.mu must be held.
func (h *EventHub) linkLocked(c *client, task string) {
	subs := h.tasks[task]
	if subs == nil {
		subs = make(map[string]*client)
		h.tasks[task] = subs
	}
	subs[c.id] = c
	c.tasks[task] = struct{}{}
}

func (h *EventHub) unsubscribe(c *client, task string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(c.tasks, task)
	if subs := h.tasks[task]; subs != nil {
		delete(subs, c.id)
		if len(subs) == 0 {
			delete(h.tasks, task)
		}
	}
}

// ServeWS handles websocket requests from clients
func (h *EventHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.shutdown:
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &client{
		hub:   h,
		conn:  conn,
		send:  make(chan ServerMessage, sendBuffer),
		id:    uuid.NewString(),
		tasks: make(map[string]struct{}),
	}
	// The hub loop links query subscriptions together with the client.
	if batch := r.URL.Query().Get("batch"); batch != "" {
		c.tasks[batch] = struct{}{}
	}
	select {
	case h.register <- c:
	case <-h.shutdown:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// readPump pumps messages from the websocket to the hub
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.shutdown:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNoStatusReceived) {
				c.hub.logger.Debug("websocket read failed", zap.String("client", c.id), zap.Error(err))
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.hub.reply(c, ServerMessage{Type: "error", Content: map[string]string{"error": "Invalid message format"}})
			continue
		}

		switch msg.Type {
		case "subscribe", "unsubscribe":
			if msg.TaskID == "" {
				c.hub.reply(c, ServerMessage{Type: "error", Content: map[string]string{"error": "taskId is required"}})
				continue
			}
			if msg.Type == "subscribe" {
				c.hub.subscribe(c, msg.TaskID)
			} else {
				c.hub.unsubscribe(c, msg.TaskID)
			}
			c.hub.reply(c, ServerMessage{Type: msg.Type + "d", TaskID: msg.TaskID})
		case "ping":
			c.hub.reply(c, ServerMessage{Type: "pong"})
		default:
			c.hub.reply(c, ServerMessage{Type: "error", Content: map[string]string{"error": "Unknown message type"}})
		}
	}
}

// writePump pumps messages from the hub to the websocket
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
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
