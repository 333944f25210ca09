package console

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"cryptodesk/internal/domain/model"
	wshub "cryptodesk/internal/infrastructure/websocket"
)

// Tape prints the latest price of every tracked pair as a single
// carriage-return rewritten line. It is an ordinary hub subscriber, so
// it sees the same replay-then-live stream a websocket client does.
type Tape struct {
	hub *wshub.Hub
}

func NewTape(hub *wshub.Hub) *Tape {
	return &Tape{hub: hub}
}

// Run consumes updates until ctx is done or the hub drops the tape.
func (t *Tape) Run(ctx context.Context) {
	sub := t.hub.Register()
	defer t.hub.Unregister(sub)

	latest := make(map[string]model.TickerEvent)
	for {
		select {
		case <-ctx.Done():
			fmt.Print("\n")
			return
		case e, ok := <-sub.Events():
			if !ok {
				fmt.Print("\n")
				return
			}
			if e.Revoked() {
				delete(latest, e.Pair)
			} else {
				latest[e.Pair] = e
			}
			fmt.Print(renderLine(latest))
		}
	}
}

// renderLine formats one tape line, pairs in alphabetical order so the
// slots do not jump around between redraws.
func renderLine(latest map[string]model.TickerEvent) string {
	pairs := make([]string, 0, len(latest))
	for pair := range latest {
		pairs = append(pairs, pair)
	}
	sort.Strings(pairs)

	var b strings.Builder
	b.WriteString("\r")
	for i, pair := range pairs {
		if i > 0 {
			b.WriteString(" | ")
		}
		e := latest[pair]
		fmt.Fprintf(&b, "%s %.2f (%+.2f%%)", pair, e.Price, e.Change24h)
	}
	b.WriteString("   ")
	return b.String()
}
