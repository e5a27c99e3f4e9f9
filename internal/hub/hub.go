// Package hub keeps the set of connected live viewers and fans catalog
// events out to them.
package hub

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// sendTimeout bounds one delivery so a stalled viewer cannot hold up the rest.
const sendTimeout = 5 * time.Second

// Subscriber is one connected viewer.
type Subscriber interface {
	Send(ctx context.Context, payload []byte) error
}

// Delivery reports the outcome of one Broadcast.
type Delivery struct {
	Delivered int
	Dropped   int // subscribers removed because their send failed
}

// Hub is a registry of subscribers safe for concurrent use.
type Hub struct {
	mu   sync.Mutex
	subs map[uint64]Subscriber
	next uint64
	log  *slog.Logger
}

// New returns an empty Hub.
func New(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{subs: make(map[uint64]Subscriber), log: log.With("component", "hub")}
}

// Add registers s and returns the id to Remove it with.
func (h *Hub) Add(s Subscriber) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	h.subs[h.next] = s
	return h.next
}

// Remove unregisters id. Removing an unknown id is a no-op.
func (h *Hub) Remove(id uint64) {
	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()
}

// Len returns the number of registered subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Broadcast sends payload to every subscriber. A subscriber whose send
// fails is removed; the others still receive the payload.
func (h *Hub) Broadcast(ctx context.Context, payload []byte) Delivery {
	h.mu.Lock()
	ids := make([]uint64, 0, len(h.subs))
	subs := make([]Subscriber, 0, len(h.subs))
	for id, s := range h.subs {
		ids = append(ids, id)
		subs = append(subs, s)
	}
	h.mu.Unlock()

	var d Delivery
	for i, s := range subs {
		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		err := s.Send(sendCtx, payload)
		cancel()
		if err != nil {
			h.Remove(ids[i])
			d.Dropped++
			h.log.Warn("subscriber dropped", "subscriber", ids[i], "err", err)
			continue
		}
		d.Delivered++
	}
	return d
}
