package model

import "time"

// Trade sides accepted by the ledger.
const (
	TradeBuy  = "BUY"
	TradeSell = "SELL"
)

// Transaction is one executed trade, recorded in insertion order.
// ProfitLoss is only meaningful for SELL entries (realized against the
// FIFO cost basis); it is always 0 for BUY.
type Transaction struct {
	Timestamp  time.Time `json:"timestamp"`
	Type       string    `json:"type"`
	Symbol     string    `json:"symbol"`
	Amount     float64   `json:"amount"`
	Price      float64   `json:"price"`
	Total      float64   `json:"total"`
	ProfitLoss float64   `json:"profitLoss"`
}

// AccountSnapshot is a detached copy of the ledger state, safe to
// serialize or hand across goroutines.
type AccountSnapshot struct {
	Balance      float64            `json:"balance"`
	Portfolio    map[string]float64 `json:"portfolio"`
	Transactions []Transaction      `json:"transactions"`
}
