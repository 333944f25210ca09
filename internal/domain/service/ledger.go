package service

import (
	"errors"
	"sync"
	"time"

	"cryptodesk/internal/domain/model"
)

// Validation failures surfaced by ExecuteTrade. A failed trade mutates
// nothing: the operation either fully applies or fully rejects.
var (
	ErrInvalidAmount             = errors.New("amount must be greater than 0")
	ErrInvalidType               = errors.New("invalid trade type")
	ErrInsufficientFunds         = errors.New("insufficient funds")
	ErrInsufficientCryptoBalance = errors.New("insufficient cryptocurrency balance")
)

// costLot is one purchased slice of a symbol, at most one unit. Lots are
// appended on buy and consumed front-first on sell, so realized P/L is
// FIFO against the purchase history.
type costLot struct {
	units float64 // (0, 1]
	price float64
}

// Ledger is the simulated trading account: cash balance, holdings and an
// append-only transaction log. All methods are safe for concurrent use;
// a trade's read-modify-write of balance, holdings and lots runs under a
// single mutex so trades never interleave.
type Ledger struct {
	mu             sync.Mutex
	initialBalance float64
	balance        float64
	holdings       map[string]float64
	lots           map[string][]costLot
	transactions   []model.Transaction

	now func() time.Time
}

func NewLedger(initialBalance float64) *Ledger {
	return &Ledger{
		initialBalance: initialBalance,
		balance:        initialBalance,
		holdings:       make(map[string]float64),
		lots:           make(map[string][]costLot),
		now:            time.Now,
	}
}

// ExecuteTrade applies one BUY or SELL and returns the resulting account
// snapshot. tradeType must be model.TradeBuy or model.TradeSell.
func (l *Ledger) ExecuteTrade(tradeType, symbol string, amount, price float64) (model.AccountSnapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if amount <= 0 {
		return model.AccountSnapshot{}, ErrInvalidAmount
	}
	if tradeType != model.TradeBuy && tradeType != model.TradeSell {
		return model.AccountSnapshot{}, ErrInvalidType
	}

	if tradeType == model.TradeBuy {
		if err := l.buy(symbol, amount, price); err != nil {
			return model.AccountSnapshot{}, err
		}
	} else {
		if err := l.sell(symbol, amount, price); err != nil {
			return model.AccountSnapshot{}, err
		}
	}

	return l.snapshot(), nil
}

func (l *Ledger) buy(symbol string, amount, price float64) error {
	total := amount * price
	if total > l.balance {
		return ErrInsufficientFunds
	}

	l.balance -= total
	l.holdings[symbol] += amount

	// One lot per whole unit, plus the fractional remainder.
	remaining := amount
	for remaining > 0 {
		units := remaining
		if units > 1 {
			units = 1
		}
		l.lots[symbol] = append(l.lots[symbol], costLot{units: units, price: price})
		remaining -= units
	}

	l.record(model.TradeBuy, symbol, amount, price, 0)
	return nil
}

func (l *Ledger) sell(symbol string, amount, price float64) error {
	if amount > l.holdings[symbol] {
		return ErrInsufficientCryptoBalance
	}

	l.balance += amount * price

	basis := l.consumeLots(symbol, amount)
	profitLoss := (price - basis) * amount

	l.holdings[symbol] -= amount
	if l.holdings[symbol] <= 0 {
		delete(l.holdings, symbol)
		delete(l.lots, symbol)
	}

	l.record(model.TradeSell, symbol, amount, price, profitLoss)
	return nil
}

// consumeLots removes amount units from the front of the symbol's lot
// queue and returns the average unit cost of what was consumed. The
// oldest lot is split when the amount ends inside it.
func (l *Ledger) consumeLots(symbol string, amount float64) float64 {
	queue := l.lots[symbol]
	cost := 0.0
	remaining := amount

	for remaining > 0 && len(queue) > 0 {
		lot := queue[0]
		if lot.units <= remaining {
			cost += lot.units * lot.price
			remaining -= lot.units
			queue = queue[1:]
			continue
		}
		cost += remaining * lot.price
		queue[0].units = lot.units - remaining
		remaining = 0
	}
	l.lots[symbol] = queue

	if amount == 0 {
		return 0
	}
	return cost / amount
}

func (l *Ledger) record(tradeType, symbol string, amount, price, profitLoss float64) {
	l.transactions = append(l.transactions, model.Transaction{
		Timestamp:  l.now(),
		Type:       tradeType,
		Symbol:     symbol,
		Amount:     amount,
		Price:      price,
		Total:      amount * price,
		ProfitLoss: profitLoss,
	})
}

// Reset discards holdings, lots and history and restores the initial
// cash balance. Safe to call repeatedly.
func (l *Ledger) Reset() model.AccountSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.balance = l.initialBalance
	l.holdings = make(map[string]float64)
	l.lots = make(map[string][]costLot)
	l.transactions = nil
	return l.snapshot()
}

// State returns the current account snapshot without mutating anything.
func (l *Ledger) State() model.AccountSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshot()
}

// snapshot copies the mutable state. Callers must hold l.mu.
func (l *Ledger) snapshot() model.AccountSnapshot {
	portfolio := make(map[string]float64, len(l.holdings))
	for symbol, quantity := range l.holdings {
		portfolio[symbol] = quantity
	}
	transactions := make([]model.Transaction, len(l.transactions))
	copy(transactions, l.transactions)
	return model.AccountSnapshot{
		Balance:      l.balance,
		Portfolio:    portfolio,
		Transactions: transactions,
	}
}
