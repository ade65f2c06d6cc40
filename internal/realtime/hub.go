// Package realtime pushes calendar domain events to connected WebSocket clients.
package realtime

import (
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/charlesng35/calsched/internal/monitoring"
	"github.com/charlesng35/calsched/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxControlSize = 64 << 10

	sendBuffer = 64
)

// Message is the JSON frame written to subscribers.
type Message struct {
	Stream string         `json:"stream"`
	Event  string         `json:"event"`
	Data   any            `json:"data,omitempty"`
	Meta   map[string]any `json:"meta,omitempty"`
}

type control struct {
	Action  string   `json:"action"`
	Streams []string `json:"streams"`
}

// Hub tracks subscriptions by stream and user.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[string]map[*client]struct{}

	upgrader websocket.Upgrader
	log      *zap.Logger
	active   atomic.Int64
}

// NewHub returns an empty hub. Cross-origin upgrades are refused unless the origin is loopback.
func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[string]map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     sameOriginOrLoopback,
		},
		log: logger.WithModule("realtime"),
	}
}

// Serve upgrades the request and blocks until the client disconnects. A nil or empty allowed set
// permits every stream.
func (h *Hub) Serve(userID string, streams []string, allowed map[string]struct{}, w http.ResponseWriter, r *http.Request) {
	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		hub:     h,
		socket:  socket,
		userID:  userID,
		allowed: allowed,
		streams: make(map[string]struct{}),
		send:    make(chan Message, sendBuffer),
	}
	h.subscribe(c, streams)
	h.active.Add(1)
	monitoring.RecordRealtimeConnection(1)
	defer func() {
		h.active.Add(-1)
		monitoring.RecordRealtimeConnection(-1)
	}()
	h.log.Debug("client connected", zap.String("user_id", userID), zap.Strings("streams", streams))

	go c.writeLoop()
	c.readLoop()
}

// BroadcastToUser delivers message to every connection userID holds on stream.
func (h *Hub) BroadcastToUser(stream, userID string, message Message) {
	stream = normalizeStream(stream)
	if stream == "" || userID == "" {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	targets := h.subs[stream][userID]
	if len(targets) == 0 {
		return
	}
	message.Stream = stream
	for c := range targets {
		h.enqueue(c, message)
	}
	monitoring.RecordRealtimeBroadcast(stream)
}

// BroadcastToUsers fans message out to each user id once.
func (h *Hub) BroadcastToUsers(stream string, userIDs []string, message Message) {
	seen := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		h.BroadcastToUser(stream, id, message)
	}
}

// ActiveConnections reports the number of open sockets.
func (h *Hub) ActiveConnections() int64 {
	return h.active.Load()
}

// Subscribers reports how many connections userID has open on stream.
func (h *Hub) Subscribers(stream, userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[normalizeStream(stream)][userID])
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	var clients []*client
	for _, byUser := range h.subs {
		for _, set := range byUser {
			for c := range set {
				clients = append(clients, c)
			}
		}
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.close()
	}
}

func (h *Hub) subscribe(c *client, streams []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c.isClosed() {
		return
	}
	for _, stream := range uniqueStreams(streams) {
		if !c.isAllowed(stream) {
			h.log.Debug("ignoring stream", zap.String("stream", stream), zap.String("user_id", c.userID))
			continue
		}
		if _, exists := c.streams[stream]; exists {
			continue
		}
		if h.subs[stream] == nil {
			h.subs[stream] = make(map[string]map[*client]struct{})
		}
		if h.subs[stream][c.userID] == nil {
			h.subs[stream][c.userID] = make(map[*client]struct{})
		}
		h.subs[stream][c.userID][c] = struct{}{}
		c.streams[stream] = struct{}{}
	}
}

func (h *Hub) unsubscribe(c *client, streams []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, stream := range uniqueStreams(streams) {
		h.dropLocked(c, stream)
	}
}

func (h *Hub) dropLocked(c *client, stream string) {
	delete(c.streams, stream)

	byUser, ok := h.subs[stream]
	if !ok {
		return
	}
	set := byUser[c.userID]
	delete(set, c)
	if len(set) == 0 {
		delete(byUser, c.userID)
	}
	if len(byUser) == 0 {
		delete(h.subs, stream)
	}
}

// enqueue must be called with h.mu held for reading. Slow clients are disconnected.
func (h *Hub) enqueue(c *client, message Message) {
	select {
	case c.send <- message:
	default:
		h.log.Warn("dropping slow client", zap.String("user_id", c.userID))
		monitoring.RecordRealtimeFailure(message.Stream, "backpressure", "send buffer full")
		go c.close()
	}
}

type client struct {
	hub     *Hub
	socket  *websocket.Conn
	userID  string
	allowed map[string]struct{}
	streams map[string]struct{}
	send    chan Message

	mu     sync.Mutex
	closed bool
}

func (c *client) readLoop() {
	defer c.close()

	c.socket.SetReadLimit(maxControlSize)
	_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		return c.socket.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Debug("unexpected close", zap.String("user_id", c.userID), zap.Error(err))
			}
			return
		}
		if len(payload) == 0 {
			continue
		}

		var ctrl control
		if err := json.Unmarshal(payload, &ctrl); err != nil {
			c.hub.log.Debug("invalid control frame", zap.String("user_id", c.userID), zap.Error(err))
			continue
		}

		switch strings.ToLower(strings.TrimSpace(ctrl.Action)) {
		case "subscribe":
			c.hub.subscribe(c, ctrl.Streams)
		case "unsubscribe":
			c.hub.unsubscribe(c, ctrl.Streams)
		case "ping":
			c.push(Message{Event: "pong"})
		default:
			c.hub.log.Debug("unsupported control action", zap.String("action", ctrl.Action))
		}
	}
}

func (c *client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.socket.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.socket.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.socket.WriteJSON(message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// push enqueues a direct reply without going through a subscription.
func (c *client) push(message Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- message:
	default:
	}
}

// close removes c from every stream and closes its send channel. The hub lock is taken first so no
// broadcast can hold c while the channel closes.
func (c *client) close() {
	c.hub.mu.Lock()
	defer c.hub.mu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for stream := range c.streams {
		c.hub.dropLocked(c, stream)
	}
	close(c.send)
}

func (c *client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *client) isAllowed(stream string) bool {
	if len(c.allowed) == 0 {
		return true
	}
	_, ok := c.allowed[stream]
	return ok
}

func sameOriginOrLoopback(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	originHost := stripPort(parsed.Host)
	if originHost == stripPort(r.Host) {
		return true
	}
	if ip := net.ParseIP(originHost); ip != nil {
		return ip.IsLoopback()
	}
	return strings.EqualFold(originHost, "localhost")
}

func stripPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func normalizeStream(stream string) string {
	return strings.ToLower(strings.TrimSpace(stream))
}

func uniqueStreams(streams []string) []string {
	seen := make(map[string]struct{}, len(streams))
	out := make([]string, 0, len(streams))
	for _, stream := range streams {
		stream = normalizeStream(stream)
		if stream == "" {
			continue
		}
		if _, dup := seen[stream]; dup {
			continue
		}
		seen[stream] = struct{}{}
		out = append(out, stream)
	}
	return out
}
