package stream

import (
	"encoding/json"
	"sync"
	"time"
)

// StatusEvent is broadcast to websocket subscribers whenever the watcher
// classifies a capture.
type StatusEvent struct {
	User    string    `json:"user_id"`
	Capture string    `json:"capture"`
	Label   string    `json:"label"`
	Score   float64   `json:"score"`
	At      time.Time `json:"at"`
}

// Hub fans status events out to connected websocket clients. Slow clients
// are dropped rather than blocking the watcher.
type Hub struct {
	mu      sync.Mutex
	clients map[chan []byte]struct{}
	last    []byte
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: map[chan []byte]struct{}{}}
}

// Publish serializes the event and queues it for every subscriber.
func (h *Hub) Publish(event StatusEvent) {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = data
	for client := range h.clients {
		select {
		case client <- data:
		default:
			delete(h.clients, client)
			close(client)
		}
	}
}

// Subscribe registers a new client. The returned channel carries serialized
// events, starting with the most recent one if any. Call the cancel func to
// unsubscribe.
func (h *Hub) Subscribe() (<-chan []byte, func()) {
	client := make(chan []byte, 16)

	h.mu.Lock()
	h.clients[client] = struct{}{}
	if h.last != nil {
		client <- h.last
	}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.clients[client]; ok {
			delete(h.clients, client)
			close(client)
		}
	}
	return client, cancel
}
