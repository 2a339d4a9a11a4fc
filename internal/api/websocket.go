package api

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/housing-backoffice/internal/audit"
	"github.com/nerrad567/housing-backoffice/internal/auth"
	"github.com/nerrad567/housing-backoffice/internal/infrastructure/config"
	"github.com/nerrad567/housing-backoffice/internal/infrastructure/logging"
)

// Activity feed message types.
const (
	FeedTypeEvent  = "event"  // server: an audit event
	FeedTypeFilter = "filter" // client: replace the feed filter
	FeedTypePing   = "ping"   // client: liveness check
	FeedTypePong   = "pong"
	FeedTypeAck    = "ack"
	FeedTypeError  = "error"

	// feedSendBuffer is the per-client outbound queue length. A client that
	// falls further behind misses events.
	feedSendBuffer = 256
)

// FeedMessage is one frame on the activity feed, in either direction.
type FeedMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	EventType string          `json:"event_type,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// FeedFilter narrows the audit events a client receives. An empty list
// matches every value.
type FeedFilter struct {
	Actions  []audit.Action  `json:"actions,omitempty"`
	Outcomes []audit.Outcome `json:"outcomes,omitempty"`
}

// Match reports whether e passes the filter.
func (f FeedFilter) Match(e audit.Event) bool {
	if len(f.Actions) > 0 && !slices.Contains(f.Actions, e.Action) {
		return false
	}
	if len(f.Outcomes) > 0 && !slices.Contains(f.Outcomes, e.Outcome) {
		return false
	}
	return true
}

// filterFromQuery reads repeated action and outcome query parameters.
func filterFromQuery(r *http.Request) FeedFilter {
	var f FeedFilter
	q := r.URL.Query()
	for _, a := range q["action"] {
		f.Actions = append(f.Actions, audit.Action(a))
	}
	for _, o := range q["outcome"] {
		f.Outcomes = append(f.Outcomes, audit.Outcome(o))
	}
	return f
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// The single-use ticket authenticates the upgrade.
		return true
	},
}

// Hub fans audit events out to connected activity feed clients.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*feedClient]struct{}
}

// NewHub creates an empty hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*feedClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
		c.conn.Close() //nolint:errcheck // shutting down
	}
}

func (h *Hub) add(c *feedClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug("activity client connected", "principal_id", c.principal.ID, "clients", n)
}

// remove drops c. Only the caller that finds c in the map closes its
// queue, so shutdown and disconnect never close it twice.
func (h *Hub) remove(c *feedClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		close(c.send)
	}
	h.logger.Debug("activity client disconnected", "principal_id", c.principal.ID, "clients", n)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast implements audit.Broadcaster. Audit events go only to clients
// whose filter matches; other payloads go to everyone.
func (h *Hub) Broadcast(msgType string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("encoding activity payload failed", "error", err)
		return
	}
	frame, err := json.Marshal(FeedMessage{
		Type:      FeedTypeEvent,
		EventType: msgType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   body,
	})
	if err != nil {
		h.logger.Error("encoding activity frame failed", "error", err)
		return
	}
	event, isEvent := payload.(audit.Event)

	h.mu.RLock()
	targets := make([]*feedClient, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if isEvent && !c.currentFilter().Match(event) {
			continue
		}
		c.enqueue(frame)
	}
}

// feedClient is one connected activity feed socket.
type feedClient struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	principal auth.Subject

	mu     sync.RWMutex
	filter FeedFilter
}

func newFeedClient(h *Hub, conn *websocket.Conn, principal auth.Subject, filter FeedFilter) *feedClient {
	return &feedClient{
		hub:       h,
		conn:      conn,
		send:      make(chan []byte, feedSendBuffer),
		principal: principal,
		filter:    filter,
	}
}

func (c *feedClient) currentFilter() FeedFilter {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.filter
}

// enqueue drops the frame when the queue is full or already closed.
func (c *feedClient) enqueue(frame []byte) {
	defer func() {
		recover() //nolint:errcheck // send on a queue closed by remove
	}()
	select {
	case c.send <- frame:
	default:
	}
}

func (c *feedClient) reply(id, msgType string, payload any) {
	var body json.RawMessage
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return
		}
	}
	frame, err := json.Marshal(FeedMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   body,
	})
	if err != nil {
		return
	}
	c.enqueue(frame)
}

// readLoop handles client frames until the socket fails, keeping the read
// deadline alive on pongs and on any client frame.
func (c *feedClient) readLoop() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close() //nolint:errcheck // already failing
	}()

	cfg := c.hub.cfg
	wait := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(wait)) }

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	extend() //nolint:errcheck // a failed deadline surfaces on read
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("activity client read failed", "principal_id", c.principal.ID, "error", err)
			}
			return
		}
		extend() //nolint:errcheck // a failed deadline surfaces on read
		c.handle(data)
	}
}

func (c *feedClient) handle(data []byte) {
	var msg FeedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.reply("", FeedTypeError, map[string]string{"message": "invalid JSON message"})
		return
	}

	switch msg.Type {
	case FeedTypePing:
		c.reply(msg.ID, FeedTypePong, nil)
	case FeedTypeFilter:
		var f FeedFilter
		if len(msg.Payload) > 0 {
			if err := json.Unmarshal(msg.Payload, &f); err != nil {
				c.reply(msg.ID, FeedTypeError, map[string]string{"message": "invalid filter"})
				return
			}
		}
		c.mu.Lock()
		c.filter = f
		c.mu.Unlock()
		c.reply(msg.ID, FeedTypeAck, f)
	default:
		c.reply(msg.ID, FeedTypeError, map[string]string{"message": "unknown message type: " + msg.Type})
	}
}

// writeLoop drains the queue and pings on the configured interval.
func (c *feedClient) writeLoop() {
	cfg := c.hub.cfg
	ping := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	writeWait := time.Duration(cfg.PongTimeout) * time.Second
	defer func() {
		ping.Stop()
		c.conn.Close() //nolint:errcheck // loop is exiting
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // write error caught below
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil) //nolint:errcheck // best effort
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ping.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // write error caught below
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
