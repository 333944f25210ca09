package rest

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"cryptodesk/internal/domain/model"
)

const (
	msgPriceUpdate         = "PRICE_UPDATE"
	msgSubscribe           = "SUBSCRIBE"
	msgSubscriptionConfirm = "SUBSCRIPTION_CONFIRMED"
)

const (
	wsWriteTimeout = 10 * time.Second
	pingInterval   = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser clients connect from the same host serving the page.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// priceMessage is the flat wire form browser clients expect. A price of
// zero is meaningful: it marks a revoked symbol.
type priceMessage struct {
	Type      string  `json:"type"`
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Change24h float64 `json:"change24h"`
}

type ackMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type wsClientMessage struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol,omitempty"`
}

func toPriceMessage(e model.TickerEvent) priceMessage {
	return priceMessage{
		Type:      msgPriceUpdate,
		Symbol:    e.Pair,
		Price:     e.Price,
		Change24h: e.Change24h,
	}
}

// wsHandler upgrades the connection, replays the price cache through
// the hub and streams live updates until the peer goes away. All writes
// to the connection happen on the write pump goroutine.
func (s *Server) wsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	sub := s.p.Hub.Register()
	ctl := make(chan ackMessage, 8)
	done := make(chan struct{})

	go func() {
		defer conn.Close()
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()

		for {
			select {
			case e, ok := <-sub.Events():
				if !ok {
					return
				}
				if !writeWS(conn, toPriceMessage(e)) {
					return
				}
			case ack := <-ctl:
				if !writeWS(conn, ack) {
					return
				}
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	// Read loop. The only meaningful client message is a SUBSCRIBE ack
	// request; everything else is ignored.
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var msg wsClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		if msg.Type == msgSubscribe {
			select {
			case ctl <- ackMessage{
				Type:    msgSubscriptionConfirm,
				Message: "Successfully subscribed to price updates",
			}:
			default:
			}
		}
	}

	close(done)
	s.p.Hub.Unregister(sub)
}

func writeWS(conn *websocket.Conn, v interface{}) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(v); err != nil {
		log.Debug().Err(err).Msg("websocket write failed, closing")
		return false
	}
	return true
}
