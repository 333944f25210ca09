package storage

import (
	"context"

	"cryptodesk/internal/application/port"
	"cryptodesk/internal/domain/model"
)

var _ port.Repository = (*NoopRepo)(nil)

// NoopRepo discards every write. Used when no storage backend is
// enabled so the pipeline never has to nil-check its repository.
type NoopRepo struct{}

func NewNoopRepo() *NoopRepo { return &NoopRepo{} }

func (*NoopRepo) UpsertLatestPrice(ctx context.Context, pair string, price, change24h float64, ts int64) error {
	return nil
}

func (*NoopRepo) InsertTransaction(ctx context.Context, tx model.Transaction) error { return nil }

func (*NoopRepo) InsertAccountSnapshot(ctx context.Context, ts int64, payload string) error {
	return nil
}

func (*NoopRepo) Close() error { return nil }
