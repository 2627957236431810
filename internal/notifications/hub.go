package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"pulsefeed/internal/models"
	"pulsefeed/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	// Max total connections
	defaultMaxConns = 10000
	// Max topics a single client may follow
	maxTopicsPerClient = 32
	maxTopicLength     = 64
)

// ErrConnectionLimit is returned by Register when the hub is full.
var ErrConnectionLimit = errors.New("server connection limit reached")

// Hub fans frames out to the websocket clients subscribed to each topic.
// It implements Transport for a single process.
type Hub struct {
	mu       sync.RWMutex
	topics   map[string]map[*Client]struct{}
	clients  map[*Client]map[string]struct{}
	maxConns int
	closed   bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return NewHubWithLimit(defaultMaxConns)
}

// NewHubWithLimit creates an empty hub accepting at most maxConns clients.
func NewHubWithLimit(maxConns int) *Hub {
	if maxConns <= 0 {
		maxConns = defaultMaxConns
	}
	return &Hub{
		topics:   make(map[string]map[*Client]struct{}),
		clients:  make(map[*Client]map[string]struct{}),
		maxConns: maxConns,
	}
}

// Name returns a human-readable identifier for this hub.
func (h *Hub) Name() string { return "broadcast hub" }

// Register attaches a connection and subscribes it to topics.
func (h *Hub) Register(conn *websocket.Conn, userID uint, topics ...string) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, errors.New("hub is shut down")
	}
	if len(h.clients) >= h.maxConns {
		return nil, ErrConnectionLimit
	}

	client := NewClient(h, conn, userID)
	h.clients[client] = make(map[string]struct{})
	for _, topic := range topics {
		h.subscribeLocked(client, topic)
	}
	observability.WebSocketConnections.Inc()
	return client, nil
}

// UnregisterClient detaches client from every topic and closes its queue.
func (h *Hub) UnregisterClient(client *Client) {
	h.mu.Lock()
	subs, ok := h.clients[client]
	if ok {
		for topic := range subs {
			h.removeLocked(client, topic)
		}
		delete(h.clients, client)
		client.closeSend()
	}
	h.mu.Unlock()

	if ok {
		observability.WebSocketConnections.Dec()
	}
}

// Subscribe adds client to topic, ignoring surrounding whitespace. It is a
// no-op for unknown clients.
func (h *Hub) Subscribe(client *Client, topic string) error {
	topic = strings.TrimSpace(topic)
	if err := validateTopic(topic); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.clients[client]
	if !ok {
		return nil
	}
	if _, already := subs[topic]; !already && len(subs) >= maxTopicsPerClient {
		return models.NewValidationError("too many subscriptions")
	}
	h.subscribeLocked(client, topic)
	return nil
}

// Unsubscribe removes client from topic.
func (h *Hub) Unsubscribe(client *Client, topic string) {
	topic = strings.TrimSpace(topic)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(client, topic)
}

func (h *Hub) subscribeLocked(client *Client, topic string) {
	m, ok := h.topics[topic]
	if !ok {
		m = make(map[*Client]struct{})
		h.topics[topic] = m
	}
	m[client] = struct{}{}
	if subs, ok := h.clients[client]; ok {
		subs[topic] = struct{}{}
	}
}

func (h *Hub) removeLocked(client *Client, topic string) {
	if m, ok := h.topics[topic]; ok {
		delete(m, client)
		if len(m) == 0 {
			delete(h.topics, topic)
		}
	}
	if subs, ok := h.clients[client]; ok {
		delete(subs, topic)
	}
}

// Deliver queues frame on every client subscribed to topic. Frames from one
// caller are enqueued in call order, so each client sees them in order.
func (h *Hub) Deliver(_ context.Context, topic string, frame []byte) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.topics[topic] {
		c.TrySend(frame)
	}
	return nil
}

// SubscriberCount returns the number of clients following topic.
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// ConnectionCount returns the number of registered clients.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// controlMessage is what subscribers may send over the socket.
type controlMessage struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
}

// HandleClientMessage applies subscribe/unsubscribe requests from a client
// and acknowledges them on the client's queue.
func (h *Hub) HandleClientMessage(c *Client, message []byte) {
	var msg controlMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		h.reply(c, "error", map[string]string{"reason": "invalid message"})
		return
	}

	topic := strings.TrimSpace(msg.Topic)
	switch msg.Type {
	case "subscribe":
		if err := h.Subscribe(c, topic); err != nil {
			h.reply(c, "error", map[string]string{"reason": err.Error(), "topic": topic})
			return
		}
		h.reply(c, "subscribed", map[string]string{"topic": topic})
	case "unsubscribe":
		h.Unsubscribe(c, topic)
		h.reply(c, "unsubscribed", map[string]string{"topic": topic})
	case "ping":
		h.reply(c, "pong", nil)
	default:
		h.reply(c, "error", map[string]string{"reason": "unknown message type"})
	}
}

func (h *Hub) reply(c *Client, kind string, payload any) {
	frame, err := EncodeFrame(kind, payload)
	if err != nil {
		return
	}
	c.TrySend(frame)
}

// Shutdown closes every client's send queue, so its write pump sends the
// close frame, and drops all clients.
func (h *Hub) Shutdown(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true

	for client := range h.clients {
		client.closeSend()
		observability.WebSocketConnections.Dec()
	}
	h.clients = make(map[*Client]map[string]struct{})
	h.topics = make(map[string]map[*Client]struct{})
	return nil
}

func validateTopic(topic string) error {
	if topic == "" || len(topic) > maxTopicLength || strings.ContainsAny(topic, "*?[] ") {
		return models.NewValidationError("invalid topic")
	}
	return nil
}

// ParseTopics splits a comma separated topic list, falling back to def.
func ParseTopics(raw string, def ...string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, t := range strings.Split(raw, ",") {
		t = strings.TrimSpace(t)
		if t == "" || validateTopic(t) != nil {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
		if len(out) == maxTopicsPerClient {
			break
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
