// Package stream fan-outs shipment status events to live subscribers
// (the SSE feed used by organization dashboards).
package stream

import (
	"context"
	"sync"

	"vyhan.org/internal/shipment"
)

// Hub distributes status events to all active subscribers.
type Hub struct {
	mu   sync.RWMutex
	subs map[int]subscriber
	next int
}

type subscriber struct {
	ch             chan shipment.StatusEvent
	organizationID string
}

// New initialises an empty hub.
func New() *Hub {
	return &Hub{subs: make(map[int]subscriber)}
}

// Subscribe registers a subscriber scoped to one organization and returns a
// channel which will receive its events. The channel is closed when the
// provided context ends.
func (h *Hub) Subscribe(ctx context.Context, organizationID string) <-chan shipment.StatusEvent {
	ch := make(chan shipment.StatusEvent, 16)

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = subscriber{ch: ch, organizationID: organizationID}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, id)
		close(ch)
		h.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the event to subscribers of its organization.
func (h *Hub) Publish(evt shipment.StatusEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if sub.organizationID != evt.OrganizationID {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}
