// Package sse streams collection change notifications to HTTP clients as
// Server-Sent Events.
package sse

import (
	"fmt"
	"path"
	"sync"

	"github.com/google/uuid"

	"github.com/kbukum/scribe/logger"
)

// Event types.
const (
	EventConnected = "connected"
	EventChanged   = "changed"
)

const clientBuffer = 64

// Event is one message on the stream.
type Event struct {
	Type string
	Data []byte
}

// Client is a connected subscriber to one topic.
type Client struct {
	id     string
	topic  string
	events chan Event
}

// ID returns the client id.
func (c *Client) ID() string { return c.id }

// Topic returns the subscribed topic.
func (c *Client) Topic() string { return c.topic }

// Events returns the client's event channel. It is closed on Unregister.
func (c *Client) Events() <-chan Event { return c.events }

// Hub fans events out to clients by topic.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	closed  bool
	log     *logger.Logger
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[string]*Client), log: logger.Get("sse")}
}

// Register adds a client for topic. It returns an error once the hub is
// closed.
func (h *Hub) Register(topic string) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, fmt.Errorf("sse hub is closed")
	}
	c := &Client{id: uuid.NewString(), topic: topic, events: make(chan Event, clientBuffer)}
	h.clients[c.id] = c
	h.log.Debug("client registered", map[string]interface{}{"client_id": c.id, "topic": topic, logger.FieldCount: len(h.clients)})
	return c, nil
}

// Unregister removes c and closes its channel. Unknown clients are ignored.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.id]; !ok {
		return
	}
	delete(h.clients, c.id)
	close(c.events)
}

// Publish sends ev to every client whose topic matches pattern (path.Match
// syntax) and returns how many received it. It never blocks: a client whose
// buffer is full misses the event.
func (h *Hub) Publish(pattern string, ev Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for _, c := range h.clients {
		if ok, err := path.Match(pattern, c.topic); err != nil || !ok {
			continue
		}
		select {
		case c.events <- ev:
			sent++
		default:
			h.log.Warn("client buffer full, dropping event", map[string]interface{}{"client_id": c.id})
		}
	}
	return sent
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, c := range h.clients {
		close(c.events)
		delete(h.clients, id)
	}
}
