package postgres

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"

	"cryptodesk/internal/application/port"
	"cryptodesk/internal/domain/model"
)

var _ port.Repository = (*Repo)(nil)

// Repo archives ledger activity in Postgres. Latest-price upserts are
// intentionally skipped here: the quote working set belongs to sqlite
// and Redis, Postgres keeps the durable trade and snapshot history.
type Repo struct {
	db *sql.DB
}

func New(dsn string) (*Repo, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

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
CREATE TABLE IF NOT EXISTS transactions (
  id BIGSERIAL PRIMARY KEY,
  ts_ms BIGINT NOT NULL,
  type TEXT NOT NULL,
  symbol TEXT NOT NULL,
  amount DOUBLE PRECISION NOT NULL,
  price DOUBLE PRECISION NOT NULL,
  total DOUBLE PRECISION NOT NULL,
  profit_loss DOUBLE PRECISION NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transactions_ts ON transactions(ts_ms);

CREATE TABLE IF NOT EXISTS account_snapshots (
  id BIGSERIAL PRIMARY KEY,
  ts_ms BIGINT NOT NULL,
  payload TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_account_snapshots_ts ON account_snapshots(ts_ms);
`)
	return err
}

func (r *Repo) UpsertLatestPrice(ctx context.Context, pair string, price, change24h float64, ts int64) error {
	return nil
}

func (r *Repo) InsertTransaction(ctx context.Context, tx model.Transaction) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions(ts_ms, type, symbol, amount, price, total, profit_loss)
		VALUES($1, $2, $3, $4, $5, $6, $7)
	`, tx.Timestamp.UnixMilli(), tx.Type, tx.Symbol, tx.Amount, tx.Price, tx.Total, tx.ProfitLoss)
	return err
}

func (r *Repo) InsertAccountSnapshot(ctx context.Context, ts int64, payload string) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO account_snapshots(ts_ms, payload) VALUES($1, $2)`, ts, payload)
	return err
}
