package broadcast

import (
	"context"
	"log"
	"sync"

	"github.com/deemkeen/inboxd/domain"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const DefaultBufferSize = 64

var droppedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "inboxd",
	Subsystem: "broadcast",
	Name:      "dropped_events_total",
	Help:      "Events dropped because a subscriber was not keeping up",
})

// Broadcaster receives committed changes. Publish must not block the
// caller on slow consumers.
type Broadcaster interface {
	Publish(ctx context.Context, evt domain.Event)
}

// Subscription is one consumer of the hub. Events arrive on C until the
// subscription is cancelled or the hub is closed.
type Subscription struct {
	ID    string
	C     <-chan domain.Event
	kinds map[domain.EntityKind]bool
	ch    chan domain.Event
}

func (s *Subscription) wants(kind domain.EntityKind) bool {
	return len(s.kinds) == 0 || s.kinds[kind]
}

// Hub fans events out to in-process subscribers.
type Hub struct {
	mu         sync.RWMutex
	subs       map[string]*Subscription
	bufferSize int
	closed     bool
}

func NewHub(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Hub{subs: make(map[string]*Subscription), bufferSize: bufferSize}
}

// Subscribe registers a consumer for the given entity kinds, or for all
// events when none are given.
func (h *Hub) Subscribe(kinds ...domain.EntityKind) *Subscription {
	ch := make(chan domain.Event, h.bufferSize)
	sub := &Subscription{ID: uuid.NewString(), C: ch, ch: ch, kinds: make(map[domain.EntityKind]bool)}
	for _, k := range kinds {
		sub.kinds[k] = true
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return sub
	}
	h.subs[sub.ID] = sub
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (h *Hub) Unsubscribe(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub, ok := h.subs[id]
	if !ok {
		return false
	}
	delete(h.subs, id)
	close(sub.ch)
	return true
}

func (h *Hub) Publish(ctx context.Context, evt domain.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for _, sub := range h.subs {
		if !sub.wants(evt.EntityKind) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			droppedTotal.Inc()
			log.Printf("Broadcast: Subscriber %s is full, dropped %s %s #%d", sub.ID, evt.Operation, evt.EntityKind, evt.LocalId)
		}
	}
}

func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close closes every subscription. Later publishes are discarded.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		close(sub.ch)
		delete(h.subs, id)
	}
}
