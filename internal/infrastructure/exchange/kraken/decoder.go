package kraken

import (
	"encoding/json"
	"errors"
	"strconv"
)

// Venue message shapes. Kraken sends either event objects
// ({"event":"subscriptionStatus",...}) or ticker arrays
// ([channelID, payload, "ticker", "XBT/USD"]).

type statusMessage struct {
	Event        string `json:"event"`
	Status       string `json:"status"`
	Pair         string `json:"pair"`
	ErrorMessage string `json:"errorMessage"`
}

type tickerPayload struct {
	Close []string `json:"c"` // [price, lot volume]
	Open  []string `json:"o"` // [today, last 24h]
}

// tickerUpdate is a decoded ticker array before the 24h change is
// resolved against the reference price.
type tickerUpdate struct {
	Pair    string
	Price   float64
	Open    float64
	HasOpen bool
}

var errNotTicker = errors.New("not a ticker message")

// isObject reports whether the raw message is a JSON object rather
// than an array.
func isObject(raw []byte) bool {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		case '{':
			return true
		default:
			return false
		}
	}
	return false
}

// parseStatus decodes an event object. Returns ok=false for anything
// that is not a subscriptionStatus event.
func parseStatus(raw []byte) (statusMessage, bool) {
	var msg statusMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return statusMessage{}, false
	}
	if msg.Event != "subscriptionStatus" {
		return statusMessage{}, false
	}
	return msg, true
}

// parseTicker decodes a ticker array. Any malformed element is a decode
// error for this message only.
func parseTicker(raw []byte) (tickerUpdate, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return tickerUpdate{}, err
	}
	if len(elems) < 4 {
		return tickerUpdate{}, errNotTicker
	}

	var channel string
	if err := json.Unmarshal(elems[2], &channel); err != nil || channel != "ticker" {
		return tickerUpdate{}, errNotTicker
	}

	var pair string
	if err := json.Unmarshal(elems[3], &pair); err != nil {
		return tickerUpdate{}, err
	}

	var payload tickerPayload
	if err := json.Unmarshal(elems[1], &payload); err != nil {
		return tickerUpdate{}, err
	}
	if len(payload.Close) == 0 {
		return tickerUpdate{}, errNotTicker
	}

	price, err := strconv.ParseFloat(payload.Close[0], 64)
	if err != nil {
		return tickerUpdate{}, err
	}

	upd := tickerUpdate{Pair: pair, Price: price}
	if len(payload.Open) > 0 {
		open, err := strconv.ParseFloat(payload.Open[0], 64)
		if err != nil {
			return tickerUpdate{}, err
		}
		upd.Open = open
		upd.HasOpen = true
	}
	return upd, nil
}

// change24h computes the percent change of price against reference.
func change24h(price, reference float64) float64 {
	if reference == 0 {
		return 0
	}
	return (price - reference) / reference * 100
}
