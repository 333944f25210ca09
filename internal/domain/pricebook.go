package domain

import (
	"sync"

	"cryptodesk/internal/domain/model"
)

// Quote is the last known state for a single pair.
type Quote struct {
	Price     float64 // last traded price
	Reference float64 // 24h reference price the change was computed against
	Change24h float64 // percent
}

// PriceBook tracks the latest quote per pair. Writes come from the feed
// decoder only; reads come from the REST layer and from subscriber
// replay. Entries are never removed: a pair whose subscription was
// dropped keeps its last value for late readers.
type PriceBook struct {
	mu     sync.RWMutex
	quotes map[string]Quote
}

func NewPriceBook() *PriceBook {
	return &PriceBook{quotes: make(map[string]Quote)}
}

// Set stores the latest quote for a pair, last-write-wins.
func (b *PriceBook) Set(pair string, q Quote) {
	b.mu.Lock()
	b.quotes[pair] = q
	b.mu.Unlock()
}

// Get returns the quote for a pair, if one has been seen.
func (b *PriceBook) Get(pair string) (Quote, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	q, ok := b.quotes[pair]
	return q, ok
}

// Reference returns the stored 24h reference price for a pair. Used by
// the decoder as a fallback when a ticker message carries no open price.
func (b *PriceBook) Reference(pair string) (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	q, ok := b.quotes[pair]
	if !ok || q.Reference == 0 {
		return 0, false
	}
	return q.Reference, true
}

// Snapshot returns a copy of every known quote.
func (b *PriceBook) Snapshot() map[string]Quote {
	b.mu.RLock()
	defer b.mu.RUnlock()
	snap := make(map[string]Quote, len(b.quotes))
	for pair, q := range b.quotes {
		snap[pair] = q
	}
	return snap
}

// Events renders the snapshot as individual ticker events, one per pair.
// Order is unspecified, matching map iteration.
func (b *PriceBook) Events() []model.TickerEvent {
	snap := b.Snapshot()
	events := make([]model.TickerEvent, 0, len(snap))
	for pair, q := range snap {
		events = append(events, model.TickerEvent{
			Pair:      pair,
			Price:     q.Price,
			Change24h: q.Change24h,
		})
	}
	return events
}
