// Package hub is the real-time notification bus. Connected clients subscribe
// to named topics and receive scheduling state-change events as they happen.
// Delivery is best-effort and at-most-once: this is not a durable queue, and
// a disconnected client simply re-fetches state when it reconnects.
package hub

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Recognized topics. Clients may subscribe to arbitrary names; these are the
// ones the service publishes on.
const (
	TopicScheduling = "scheduling"
	TopicSystem     = "system"
)

// Event is a broadcast message as seen on the wire.
type Event struct {
	Type      string    `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
}

type clientMessage struct {
	Type         string `json:"type"`
	Subscription string `json:"subscription,omitempty"`
}

type serverMessage struct {
	Type         string    `json:"type"`
	Subscription string    `json:"subscription,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

const (
	sendBuffer   = 32
	writeTimeout = 5 * time.Second
)

// conn is one subscriber connection. The send channel is drained by a single
// writer goroutine, so messages published to one connection keep their order.
type conn struct {
	id     uuid.UUID
	ws     *websocket.Conn
	send   chan []byte
	topics map[string]struct{}

	mu         sync.Mutex
	lastActive time.Time
	closed     bool
}

func (c *conn) touch(now time.Time) {
	c.mu.Lock()
	c.lastActive = now
	c.mu.Unlock()
}

func (c *conn) idleSince() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActive
}

// enqueue hands a frame to the writer. A full buffer or closed connection
// reports failure so the broadcast pass can prune the connection afterwards.
// The lock is held across the send so the channel cannot be closed between
// the state check and the send.
func (c *conn) enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Hub owns the connection registry. All registry mutation happens under mu;
// broadcast iterates a snapshot so concurrent disconnects cannot corrupt the
// pass.
type Hub struct {
	mu     sync.RWMutex
	conns  map[uuid.UUID]*conn
	source string

	staleAfter time.Duration
	now        func() time.Time

	upgrader websocket.Upgrader
}

func New(source string, staleAfter time.Duration) *Hub {
	if staleAfter <= 0 {
		staleAfter = time.Hour
	}
	return &Hub{
		conns:      make(map[uuid.UUID]*conn),
		source:     source,
		staleAfter: staleAfter,
		now:        time.Now,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Run sweeps stale connections until ctx is cancelled.
func (h *Hub) Run(ctx context.Context, sweepInterval time.Duration) {
	if sweepInterval <= 0 {
		sweepInterval = 5 * time.Minute
	}
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-ticker.C:
			h.sweep()
		}
	}
}

// ServeWS upgrades an HTTP request and runs the connection until it closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}

	c := &conn{
		id:         uuid.New(),
		ws:         ws,
		send:       make(chan []byte, sendBuffer),
		topics:     make(map[string]struct{}),
		lastActive: h.now(),
	}

	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()

	log.Printf("ws connected conn_id=%s remote=%s", c.id, ws.RemoteAddr())

	go h.writeLoop(c)
	h.readLoop(c)
}

func (h *Hub) writeLoop(c *conn) {
	for frame := range c.send {
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
			h.remove(c, "write error: "+err.Error())
			// Drain remaining frames so publishers never block.
			for range c.send {
			}
			return
		}
	}
}

func (h *Hub) readLoop(c *conn) {
	defer h.remove(c, "closed")

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		c.touch(h.now())

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("ws bad message conn_id=%s: %v", c.id, err)
			continue
		}

		switch msg.Type {
		case "subscribe":
			if msg.Subscription == "" {
				continue
			}
			h.mu.Lock()
			c.topics[msg.Subscription] = struct{}{}
			h.mu.Unlock()
			h.reply(c, serverMessage{Type: "subscription_confirmed", Subscription: msg.Subscription, Timestamp: h.now()})
		case "unsubscribe":
			h.mu.Lock()
			delete(c.topics, msg.Subscription)
			h.mu.Unlock()
			h.reply(c, serverMessage{Type: "subscription_removed", Subscription: msg.Subscription, Timestamp: h.now()})
		case "ping":
			h.reply(c, serverMessage{Type: "pong", Timestamp: h.now()})
		default:
			log.Printf("ws unknown message type %q conn_id=%s", msg.Type, c.id)
		}
	}
}

func (h *Hub) reply(c *conn, msg serverMessage) {
	frame, err := json.Marshal(msg)
	if err != nil {
		log.Printf("ws marshal reply: %v", err)
		return
	}
	if !c.enqueue(frame) {
		h.remove(c, "send buffer full")
	}
}

// Broadcast publishes an event to every connection subscribed to topic. One
// broken subscriber never aborts delivery to the rest: each send is isolated
// and failing connections are pruned after the pass.
func (h *Hub) Broadcast(topic, eventType string, data any) {
	ev := Event{
		Type:      eventType,
		Data:      data,
		Timestamp: h.now(),
		Source:    h.source,
	}
	frame, err := json.Marshal(ev)
	if err != nil {
		log.Printf("broadcast marshal %s: %v", eventType, err)
		return
	}

	h.mu.RLock()
	targets := make([]*conn, 0, len(h.conns))
	for _, c := range h.conns {
		if _, ok := c.topics[topic]; ok {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	var failed []*conn
	for _, c := range targets {
		if !c.enqueue(frame) {
			failed = append(failed, c)
		}
	}
	for _, c := range failed {
		h.remove(c, "broadcast delivery failed")
	}
}

// Stats exposes connection health for readiness reporting.
type Stats struct {
	Connections   int            `json:"connections"`
	Subscriptions map[string]int `json:"subscriptions"`
}

func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s := Stats{Connections: len(h.conns), Subscriptions: make(map[string]int)}
	for _, c := range h.conns {
		for topic := range c.topics {
			s.Subscriptions[topic]++
		}
	}
	return s
}

func (h *Hub) remove(c *conn, reason string) {
	h.mu.Lock()
	_, present := h.conns[c.id]
	delete(h.conns, c.id)
	h.mu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()

	if c.ws != nil {
		_ = c.ws.Close()
	}
	if present {
		log.Printf("ws disconnected conn_id=%s reason=%s", c.id, reason)
	}
}

// sweep prunes connections idle beyond the staleness threshold to bound
// registry growth.
func (h *Hub) sweep() {
	cutoff := h.now().Add(-h.staleAfter)

	h.mu.RLock()
	var stale []*conn
	for _, c := range h.conns {
		if c.idleSince().Before(cutoff) {
			stale = append(stale, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range stale {
		h.remove(c, "stale")
	}
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	all := make([]*conn, 0, len(h.conns))
	for _, c := range h.conns {
		all = append(all, c)
	}
	h.mu.RUnlock()

	for _, c := range all {
		h.remove(c, "shutdown")
	}
}
