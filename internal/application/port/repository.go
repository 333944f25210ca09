package port

import (
	"context"

	"cryptodesk/internal/domain/model"
)

// Repository persists the live pipeline's output. Implementations must
// tolerate being called from the feed goroutine; failures are reported,
// logged by the caller and never stop the pipeline.
type Repository interface {
	// UpsertLatestPrice stores the most recent quote for a pair.
	UpsertLatestPrice(ctx context.Context, pair string, price, change24h float64, ts int64) error

	// InsertTransaction appends one executed trade.
	InsertTransaction(ctx context.Context, tx model.Transaction) error

	// InsertAccountSnapshot archives a serialized ledger snapshot.
	InsertAccountSnapshot(ctx context.Context, ts int64, payload string) error

	Close() error
}
