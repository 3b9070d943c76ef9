package feed

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/joloLG/joloRide/internal/models"
	"github.com/joloLG/joloRide/internal/observability"
)

// Filter scopes a subscription. Zero values match everything.
type Filter struct {
	Types  []models.EventType
	Status models.Status
}

func (f Filter) Match(e models.OrderEvent) bool {
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if len(f.Types) == 0 {
		return true
	}
	for _, t := range f.Types {
		if t == e.Type {
			return true
		}
	}
	return false
}

// Subscription delivers change signals. The channel holds at most one
// pending signal; further signals are dropped until it is drained, since a
// pending signal already tells the consumer to re-fetch.
type Subscription struct {
	ID     string
	C      <-chan models.OrderEvent
	ch     chan models.OrderEvent
	filter Filter
	hub    *Hub
	once   sync.Once
}

func (s *Subscription) Close() {
	s.once.Do(func() { s.hub.unsubscribe(s.ID) })
}

// Hub fans order change events out to in-process subscribers.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]*Subscription
	closed bool
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{subs: make(map[string]*Subscription), logger: logger}
}

func (h *Hub) Subscribe(f Filter) *Subscription {
	ch := make(chan models.OrderEvent, 1)
	s := &Subscription{ID: uuid.NewString(), C: ch, ch: ch, filter: f, hub: h}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return s
	}
	h.subs[s.ID] = s
	return s
}

func (h *Hub) unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(s.ch)
	}
}

// Publish never blocks on a slow subscriber.
func (h *Hub) Publish(ctx context.Context, e models.OrderEvent) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return nil
	}
	for _, s := range h.subs {
		if !s.filter.Match(e) {
			continue
		}
		select {
		case s.ch <- e:
		default:
			observability.FeedSignalsDropped.Inc()
		}
	}
	return nil
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, s := range h.subs {
		close(s.ch)
		delete(h.subs, id)
	}
}
