package track

import (
	"sync"

	"github.com/screenerlab/swl/pkg/swl/types"
)

// Event is one published snapshot of the tracker's view: current state,
// the rows as of the last merge, and the derived counters. Subscribers get
// a copy, never shared slices.
type Event struct {
	State    State
	JobID    string
	Rows     []types.Row
	Counters types.Counters
	Message  string
}

// Hub fans tracker snapshots out to subscribers. Slow subscribers miss
// events rather than block the poll loop.
type Hub struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan Event]struct{})}
}

// Subscribe registers a new subscriber channel.
func (h *Hub) Subscribe() chan Event {
	ch := make(chan Event, 16)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a subscriber channel.
func (h *Hub) Unsubscribe(ch chan Event) {
	h.mu.Lock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
	h.mu.Unlock()
}

// Publish delivers an event to every subscriber that can take it.
func (h *Hub) Publish(evt Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- evt:
		default:
			// drop if slow
		}
	}
}
