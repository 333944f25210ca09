package redis

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"cryptodesk/internal/application/port"
	"cryptodesk/internal/domain/model"
)

var _ port.Repository = (*Repo)(nil)

// Repo publishes the live pipeline into Redis: latest quotes in a hash
// for cheap lookup, trades on a stream for consumers that want history,
// and every quote on a pub/sub channel for anything listening live.
type Repo struct {
	rdb         *redis.Client
	prefix      string
	ttl         time.Duration
	keyLatest   string // prefix + ":latest"
	tradeStream string
	priceChan   string
}

type latestQuote struct {
	Pair      string  `json:"pair"`
	Price     float64 `json:"price"`
	Change24h float64 `json:"change24h"`
	Ts        int64   `json:"ts"`
}

func New(rdb *redis.Client, prefix string, ttl time.Duration, tradeStream, priceChan string) *Repo {
	if strings.TrimSpace(tradeStream) == "" {
		tradeStream = prefix + ":trades"
	}
	if strings.TrimSpace(priceChan) == "" {
		priceChan = prefix + ":prices:pub"
	}
	return &Repo{
		rdb:         rdb,
		prefix:      prefix,
		ttl:         ttl,
		keyLatest:   prefix + ":latest",
		tradeStream: tradeStream,
		priceChan:   priceChan,
	}
}

func (r *Repo) UpsertLatestPrice(ctx context.Context, pair string, price, change24h float64, ts int64) error {
	if price <= 0 {
		return nil
	}
	lq := latestQuote{Pair: pair, Price: price, Change24h: change24h, Ts: ts}
	b, _ := json.Marshal(lq)

	pipe := r.rdb.Pipeline()
	pipe.HSet(ctx, r.keyLatest, pair, string(b))
	if r.ttl > 0 {
		pipe.Expire(ctx, r.keyLatest, r.ttl)
	}
	pipe.Publish(ctx, r.priceChan, string(b))
	_, err := pipe.Exec(ctx)
	return err
}

func (r *Repo) InsertTransaction(ctx context.Context, tx model.Transaction) error {
	_, err := r.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: r.tradeStream,
		Values: map[string]any{
			"ts_ms":       tx.Timestamp.UnixMilli(),
			"type":        tx.Type,
			"symbol":      tx.Symbol,
			"amount":      tx.Amount,
			"price":       tx.Price,
			"total":       tx.Total,
			"profit_loss": tx.ProfitLoss,
		},
	}).Result()
	return err
}

func (r *Repo) InsertAccountSnapshot(ctx context.Context, ts int64, payload string) error {
	// snapshots live in sqlite/postgres; Redis keeps the hot data only
	return nil
}

func (r *Repo) Close() error { return r.rdb.Close() }
