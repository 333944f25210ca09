package service

import (
	"context"

	"github.com/rs/zerolog/log"

	"cryptodesk/internal/domain"
)

// PriceReader loads previously stored quotes.
type PriceReader interface {
	GetLatestPrice(ctx context.Context, pair string) (price, change24h float64, err error)
}

// WarmPriceBook seeds the price book from storage so subscribers that
// connect before the feed's first tick still get a replay. Pairs with
// no stored row are skipped.
func WarmPriceBook(ctx context.Context, r PriceReader, pairs []string, book *domain.PriceBook) int {
	warmed := 0
	for _, pair := range pairs {
		price, change, err := r.GetLatestPrice(ctx, pair)
		if err != nil || price <= 0 {
			continue
		}
		book.Set(pair, domain.Quote{
			Price:     price,
			Reference: referenceFrom(price, change),
			Change24h: change,
		})
		warmed++
	}
	if warmed > 0 {
		log.Info().Int("pairs", warmed).Msg("price book warmed from storage")
	}
	return warmed
}

// referenceFrom recovers the 24h reference price from a stored quote,
// inverting change = (price-ref)/ref*100.
func referenceFrom(price, change float64) float64 {
	if change <= -100 {
		return 0
	}
	return price * 100 / (100 + change)
}
