// Package sse broadcasts eventbus events to long-lived HTTP client
// connections as server-sent events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

// Event is one server-sent event.
type Event struct {
	Name string
	Data any
}

// Hub fans out events to all currently connected clients. Broadcasts are
// non-blocking: a slow or stuck client is dropped rather than stalling the
// publisher.
type Hub struct {
	mu      sync.Mutex
	clients map[chan Event]struct{}
}

// NewHub builds an empty Hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[chan Event]struct{})}
}

// Broadcast delivers ev to every connected client without blocking on any
// one of them.
func (h *Hub) Broadcast(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- ev:
		default:
			// client too slow to keep up; drop this event for it rather than block.
		}
	}
}

// register adds a new client channel and returns an unregister func. The
// channel is closed by whichever side removes it from the set first, so an
// unregister racing Shutdown never closes twice.
func (h *Hub) register() (chan Event, func()) {
	ch := make(chan Event, 32)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.clients[ch]; ok {
			delete(h.clients, ch)
			close(ch)
		}
	}
}

// ClientCount reports the number of currently connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Shutdown closes every connected client's channel, unblocking their
// ServeHTTP goroutines so the server can drain during graceful shutdown.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		close(ch)
	}
	h.clients = make(map[chan Event]struct{})
}

// ServeHTTP streams events to one client until the request context is
// canceled or the Hub is shut down.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch, unregister := h.register()
	defer unregister()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := writeEvent(w, ev); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, ev Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, data)
	return err
}
