package feed

import (
	"sync"

	"github.com/dkeye/roomchat/internal/core"
	"github.com/dkeye/roomchat/internal/domain"
)

// Hub fans change notifications out to every subscription of a room inside
// one process.
type Hub struct {
	mu   sync.Mutex
	subs map[domain.RoomCode]map[*Subscription]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[domain.RoomCode]map[*Subscription]struct{})}
}

// Subscribe registers a new subscription that is removed from the hub when
// canceled.
func (h *Hub) Subscribe(code domain.RoomCode, load Loader, fn core.SnapshotFunc) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	var sub *Subscription
	sub = Start(code, load, fn, func() { h.remove(code, sub) })
	set, ok := h.subs[code]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[code] = set
	}
	set[sub] = struct{}{}
	return sub
}

// Notify wakes every subscriber of the room.
func (h *Hub) Notify(code domain.RoomCode) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[code] {
		sub.Notify()
	}
}

// NotifyAll wakes every subscriber, used after a backend reconnects.
func (h *Hub) NotifyAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, set := range h.subs {
		for sub := range set {
			sub.Notify()
		}
	}
}

func (h *Hub) Len(code domain.RoomCode) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[code])
}

// Close cancels every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	var all []*Subscription
	for _, set := range h.subs {
		for sub := range set {
			all = append(all, sub)
		}
	}
	h.mu.Unlock()
	for _, sub := range all {
		sub.Cancel()
	}
}

func (h *Hub) remove(code domain.RoomCode, sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.subs[code]
	delete(set, sub)
	if len(set) == 0 {
		delete(h.subs, code)
	}
}
