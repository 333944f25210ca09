package websocket

import (
	"testing"

	"cryptodesk/internal/domain"
	"cryptodesk/internal/domain/model"
)

func TestHubLiveBroadcast(t *testing.T) {
	book := domain.NewPriceBook()
	hub := NewHub(book)

	sub := hub.Register()
	defer hub.Unregister(sub)

	hub.Broadcast(model.TickerEvent{Pair: "BTC/USD", Price: 50000, Change24h: 4.17})

	select {
	case e := <-sub.Events():
		if e.Pair != "BTC/USD" || e.Price != 50000 {
			t.Errorf("unexpected event: %+v", e)
		}
	default:
		t.Fatal("live event not delivered")
	}
}

func TestHubReplaysCacheToLateSubscriber(t *testing.T) {
	book := domain.NewPriceBook()
	hub := NewHub(book)

	early := hub.Register()
	defer hub.Unregister(early)

	book.Set("BTC/USD", domain.Quote{Price: 50000, Reference: 48000, Change24h: 4.17})
	hub.Broadcast(model.TickerEvent{Pair: "BTC/USD", Price: 50000, Change24h: 4.17})

	late := hub.Register()
	defer hub.Unregister(late)

	// Both subscribers observe the same latest price: early via the
	// live broadcast, late via replay.
	e1 := <-early.Events()
	e2 := <-late.Events()
	if e1.Price != e2.Price || e1.Pair != e2.Pair {
		t.Errorf("subscribers diverged: live=%+v replay=%+v", e1, e2)
	}
}

func TestHubRegisterDuringBroadcastLosesNoUpdate(t *testing.T) {
	book := domain.NewPriceBook()
	hub := NewHub(book)

	// Publisher pushes monotonically increasing prices the way the feed
	// does: cache first, then broadcast. Stays under the subscriber
	// buffer so nothing is pruned.
	const total = defaultBuffer - 10
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 1; i <= total; i++ {
			price := float64(i)
			book.Set("BTC/USD", domain.Quote{Price: price, Reference: 1, Change24h: 0})
			hub.Broadcast(model.TickerEvent{Pair: "BTC/USD", Price: price})
		}
	}()

	sub := hub.Register()
	<-done
	hub.Unregister(sub)

	var prices []float64
	for e := range sub.Events() {
		if e.Pair == "BTC/USD" {
			prices = append(prices, e.Price)
		}
	}
	if len(prices) == 0 {
		t.Fatal("expected a replayed or live event")
	}
	// Replay may repeat the price of a broadcast that raced the
	// registration, but no update in between may go missing.
	for i := 1; i < len(prices); i++ {
		if prices[i] != prices[i-1] && prices[i] != prices[i-1]+1 {
			t.Fatalf("update lost between %v and %v", prices[i-1], prices[i])
		}
	}
	if last := prices[len(prices)-1]; last != total {
		t.Errorf("expected final price %d, got %v", total, last)
	}
}

func TestHubBroadcastsRevocations(t *testing.T) {
	hub := NewHub(domain.NewPriceBook())
	sub := hub.Register()
	defer hub.Unregister(sub)

	hub.Broadcast(model.TickerEvent{Pair: "NOPE/USD"})

	e := <-sub.Events()
	if !e.Revoked() {
		t.Errorf("expected revocation, got %+v", e)
	}
}

func TestHubDropsStalledSubscriber(t *testing.T) {
	hub := NewHub(domain.NewPriceBook())
	sub := hub.Register()

	// Never read: the buffer eventually fills and the hub prunes.
	for i := 0; i < defaultBuffer+1; i++ {
		hub.Broadcast(model.TickerEvent{Pair: "BTC/USD", Price: float64(i + 1)})
	}

	if hub.Count() != 0 {
		t.Errorf("stalled subscriber should be dropped, %d remain", hub.Count())
	}
	// Channel is closed after the drop; drain to prove it.
	n := 0
	for range sub.Events() {
		n++
	}
	if n != defaultBuffer {
		t.Errorf("expected %d buffered events before the drop, got %d", defaultBuffer, n)
	}
}

func TestHubUnregisterTwice(t *testing.T) {
	hub := NewHub(domain.NewPriceBook())
	sub := hub.Register()

	hub.Unregister(sub)
	hub.Unregister(sub) // must not panic

	if hub.Count() != 0 {
		t.Errorf("expected no subscribers, got %d", hub.Count())
	}
}
