package model

// TickerEvent is one normalized price update decoded from the venue feed.
// A zero Price together with a zero Change24h marks a revocation: the
// venue rejected the subscription for Pair and downstream readers should
// treat the symbol as gone.
type TickerEvent struct {
	Pair      string  `json:"symbol"`
	Price     float64 `json:"price"`
	Change24h float64 `json:"change24h"`
}

// Revoked reports whether the event is a revocation signal.
func (e TickerEvent) Revoked() bool {
	return e.Price == 0 && e.Change24h == 0
}
