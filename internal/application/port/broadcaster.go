package port

import "cryptodesk/internal/domain/model"

// Broadcaster fans one ticker event out to every connected subscriber.
// Delivery is best-effort: closed or stalled subscribers are dropped,
// not retried.
type Broadcaster interface {
	Broadcast(e model.TickerEvent)
}
