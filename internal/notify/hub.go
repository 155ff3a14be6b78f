package notify

import (
	"context"
	"sync"

	"github.com/fleetdiag/log-ingest/internal/domain"
)

// Hub fans progress events out to in-process subscribers. Sends never block;
// a subscriber that stops draining its channel just misses events.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint]map[int]chan domain.ProgressEvent
	global map[int]chan domain.ProgressEvent
	nextID int
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		subs:   make(map[uint]map[int]chan domain.ProgressEvent),
		global: make(map[int]chan domain.ProgressEvent),
	}
}

// Subscribe returns a channel receiving events for one file and a cancel
// function that must be called when the subscriber is done.
func (h *Hub) Subscribe(fileID uint, buffer int) (<-chan domain.ProgressEvent, func()) {
	ch := make(chan domain.ProgressEvent, buffer)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	if h.subs[fileID] == nil {
		h.subs[fileID] = make(map[int]chan domain.ProgressEvent)
	}
	h.subs[fileID][id] = ch
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if m := h.subs[fileID]; m != nil {
			delete(m, id)
			if len(m) == 0 {
				delete(h.subs, fileID)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// SubscribeAll returns a channel receiving events for every file.
func (h *Hub) SubscribeAll(buffer int) (<-chan domain.ProgressEvent, func()) {
	ch := make(chan domain.ProgressEvent, buffer)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.global[id] = ch
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.global, id)
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers an event to all matching subscribers.
func (h *Hub) Publish(ctx context.Context, ev domain.ProgressEvent) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subs[ev.FileID] {
		select {
		case ch <- ev:
		default:
		}
	}
	for _, ch := range h.global {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}
