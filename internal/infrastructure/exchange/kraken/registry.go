package kraken

import "sync"

// SubscriptionState tracks a pair between the subscribe request and the
// venue's acknowledgment. A pair is Pending from the moment the request
// is sent; the venue's subscriptionStatus either promotes it to Active
// or removes it again.
type SubscriptionState int

const (
	SubscriptionPending SubscriptionState = iota
	SubscriptionActive
)

// Registry is the set of pairs currently believed subscribed on the
// transport. No entry exists without a subscribe request having been
// sent for it.
type Registry struct {
	mu    sync.RWMutex
	pairs map[string]SubscriptionState
}

func NewRegistry() *Registry {
	return &Registry{pairs: make(map[string]SubscriptionState)}
}

// Add marks a pair Pending. Returns false when the pair is already
// Pending or Active, so duplicate subscribe requests become no-ops.
func (r *Registry) Add(pair string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pairs[pair]; ok {
		return false
	}
	r.pairs[pair] = SubscriptionPending
	return true
}

// Activate promotes a pair to Active after the venue confirms it.
// Unknown pairs are ignored.
func (r *Registry) Activate(pair string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pairs[pair]; ok {
		r.pairs[pair] = SubscriptionActive
	}
}

// Remove drops a pair, typically after a subscription error.
func (r *Registry) Remove(pair string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pairs[pair]; !ok {
		return false
	}
	delete(r.pairs, pair)
	return true
}

// Contains reports whether the pair is Pending or Active.
func (r *Registry) Contains(pair string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.pairs[pair]
	return ok
}

// State returns the pair's subscription state.
func (r *Registry) State(pair string) (SubscriptionState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.pairs[pair]
	return st, ok
}

// Pairs returns every tracked pair, Pending and Active alike.
func (r *Registry) Pairs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.pairs))
	for pair := range r.pairs {
		out = append(out, pair)
	}
	return out
}

// Clear empties the registry. Called when the transport drops so a
// reconnect starts from a clean subscription set.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pairs = make(map[string]SubscriptionState)
}
