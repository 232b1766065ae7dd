// Package events is a small in-process pub/sub hub for attempt lifecycle
// events, feeding the SSE endpoint and any other observer.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pranavsaji/autoapply-pro/internal/types"
)

// AttemptEvent is published on every attempt state transition.
type AttemptEvent struct {
	AttemptID uuid.UUID          `json:"attempt_id"`
	JobID     string             `json:"job_id"`
	State     types.AttemptState `json:"state"`
	Step      string             `json:"step,omitempty"`
	Detail    string             `json:"detail,omitempty"`
	At        time.Time          `json:"at"`
}

// Hub fans events out to subscribers. Slow subscribers drop events rather
// than block publishers.
type Hub struct {
	mu      sync.Mutex
	clients map[chan AttemptEvent]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[chan AttemptEvent]struct{})}
}

// Subscribe registers a new listener channel.
func (h *Hub) Subscribe() chan AttemptEvent {
	ch := make(chan AttemptEvent, 16)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a listener channel.
func (h *Hub) Unsubscribe(ch chan AttemptEvent) {
	h.mu.Lock()
	if _, ok := h.clients[ch]; ok {
		delete(h.clients, ch)
		close(ch)
	}
	h.mu.Unlock()
}

// Publish delivers the event to every subscriber, dropping it for any whose
// buffer is full.
func (h *Hub) Publish(evt AttemptEvent) {
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- evt:
		default:
			// drop if slow
		}
	}
}
