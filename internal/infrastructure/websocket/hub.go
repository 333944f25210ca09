package websocket

import (
	"sync"

	"github.com/rs/zerolog/log"

	"cryptodesk/internal/application/port"
	"cryptodesk/internal/domain"
	"cryptodesk/internal/domain/model"
)

var _ port.Broadcaster = (*Hub)(nil)

// defaultBuffer is the per-subscriber event backlog. A subscriber that
// falls this far behind is dropped rather than slowing the feed.
const defaultBuffer = 256

// Subscriber is one downstream listener. Its channel is closed exactly
// once, by the hub, when the subscriber is dropped or unregisters.
type Subscriber struct {
	ch chan model.TickerEvent
}

// Events delivers the replayed cache followed by live updates.
func (s *Subscriber) Events() <-chan model.TickerEvent { return s.ch }

// Hub fans decoded ticker events out to every connected subscriber.
// A new subscriber first receives a replay of the whole price book so
// it has data before the next live tick arrives.
type Hub struct {
	book *domain.PriceBook

	mu   sync.Mutex
	subs map[*Subscriber]struct{}
}

func NewHub(book *domain.PriceBook) *Hub {
	return &Hub{
		book: book,
		subs: make(map[*Subscriber]struct{}),
	}
}

// Register attaches a new subscriber and replays the current price
// book into its channel before any live event can reach it. Snapshot
// and insert happen under the hub lock: an update broadcast while a
// registration is in progress lands either in the replay or in the
// live stream, never in neither.
func (h *Hub) Register() *Subscriber {
	h.mu.Lock()
	replay := h.book.Events()
	s := &Subscriber{ch: make(chan model.TickerEvent, len(replay)+defaultBuffer)}
	for _, e := range replay {
		s.ch <- e
	}
	h.subs[s] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()

	log.Info().Int("subscribers", n).Msg("subscriber connected")
	return s
}

// Unregister detaches a subscriber and closes its channel. Safe to call
// after the hub already dropped it.
func (h *Hub) Unregister(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.drop(s)
}

// Broadcast delivers one event to every subscriber. Delivery is
// best-effort: a subscriber whose buffer is full is dropped on the
// spot, which is not a protocol error.
func (h *Hub) Broadcast(e model.TickerEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for s := range h.subs {
		select {
		case s.ch <- e:
		default:
			log.Warn().Str("pair", e.Pair).Msg("subscriber stalled, dropping")
			h.drop(s)
		}
	}
}

// Count returns the number of attached subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// drop removes and closes a subscriber. Callers must hold h.mu.
func (h *Hub) drop(s *Subscriber) {
	if _, ok := h.subs[s]; !ok {
		return
	}
	delete(h.subs, s)
	close(s.ch)
}
