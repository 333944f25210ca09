package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"cryptodesk/internal/application/port"
	"cryptodesk/internal/domain/model"
)

var _ port.Repository = (*Repo)(nil)

type Repo struct {
	db *sql.DB
}

func New(path string) (*Repo, error) {
	// ensure directory exists
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS prices (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  pair TEXT NOT NULL,
  price REAL NOT NULL,
  change_24h REAL NOT NULL,
  ts_ms INTEGER NOT NULL,
  created_at INTEGER NOT NULL,
  UNIQUE(pair)
);
CREATE INDEX IF NOT EXISTS idx_prices_ts ON prices(ts_ms);

CREATE TABLE IF NOT EXISTS transactions (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  ts_ms INTEGER NOT NULL,
  type TEXT NOT NULL,
  symbol TEXT NOT NULL,
  amount REAL NOT NULL,
  price REAL NOT NULL,
  total REAL NOT NULL,
  profit_loss REAL NOT NULL,
  created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transactions_ts ON transactions(ts_ms);
CREATE INDEX IF NOT EXISTS idx_transactions_symbol ON transactions(symbol);

CREATE TABLE IF NOT EXISTS account_snapshots (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  ts_ms INTEGER NOT NULL,
  payload TEXT NOT NULL,
  created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_account_snapshots_ts ON account_snapshots(ts_ms);
`)
	return err
}

func (r *Repo) UpsertLatestPrice(ctx context.Context, pair string, price, change24h float64, ts int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO prices(pair, price, change_24h, ts_ms, created_at)
		VALUES(?, ?, ?, ?, ?)
		ON CONFLICT(pair) DO UPDATE SET
		price=excluded.price, change_24h=excluded.change_24h, ts_ms=excluded.ts_ms
	`, pair, price, change24h, ts, ts)
	return err
}

func (r *Repo) InsertTransaction(ctx context.Context, tx model.Transaction) error {
	ts := tx.Timestamp.UnixMilli()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions(ts_ms, type, symbol, amount, price, total, profit_loss, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)
	`, ts, tx.Type, tx.Symbol, tx.Amount, tx.Price, tx.Total, tx.ProfitLoss, ts)
	return err
}

func (r *Repo) InsertAccountSnapshot(ctx context.Context, ts int64, payload string) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO account_snapshots(ts_ms, payload, created_at) VALUES(?, ?, ?)`, ts, payload, ts)
	return err
}

// GetLatestPrice reads back the stored quote for a pair.
func (r *Repo) GetLatestPrice(ctx context.Context, pair string) (price, change24h float64, err error) {
	err = r.db.QueryRowContext(ctx, `SELECT price, change_24h FROM prices WHERE pair=?`, pair).
		Scan(&price, &change24h)
	return
}

// ListTransactions returns the trade log, oldest first.
func (r *Repo) ListTransactions(ctx context.Context, limit int) ([]model.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ts_ms, type, symbol, amount, price, total, profit_loss
		FROM transactions ORDER BY id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Transaction
	for rows.Next() {
		var tx model.Transaction
		var ts int64
		if err := rows.Scan(&ts, &tx.Type, &tx.Symbol, &tx.Amount, &tx.Price, &tx.Total, &tx.ProfitLoss); err != nil {
			return nil, err
		}
		tx.Timestamp = time.UnixMilli(ts)
		out = append(out, tx)
	}
	return out, rows.Err()
}
