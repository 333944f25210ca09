package port

import (
	"context"

	"cryptodesk/internal/domain/model"
)

// Feed is the upstream venue connection. Run owns the connect/reconnect
// lifecycle and returns when ctx is done; decoded ticker events come out
// of Events until Run exits and closes the channel.
type Feed interface {
	Run(ctx context.Context)
	Events() <-chan model.TickerEvent

	// Subscribe requests ticker updates for pairs already in canonical
	// BASE/QUOTE form. Fails when the transport is not connected.
	Subscribe(pairs ...string) error
	Subscribed(pair string) bool
	Connected() bool
}
