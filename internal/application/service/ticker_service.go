package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"cryptodesk/internal/application/port"
)

// TickerService drains the venue feed and pushes every decoded event
// through the rest of the pipeline: persist the quote, then fan it out
// to subscribers. Storage failures are logged and skipped so a slow or
// absent backend never stalls the feed.
type TickerService struct {
	feed port.Feed
	repo port.Repository
	hub  port.Broadcaster
}

func NewTickerService(feed port.Feed, repo port.Repository, hub port.Broadcaster) *TickerService {
	return &TickerService{feed: feed, repo: repo, hub: hub}
}

// Run blocks until ctx is done or the feed closes its event channel.
func (s *TickerService) Run(ctx context.Context) {
	go s.feed.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-s.feed.Events():
			if !ok {
				return
			}
			if !e.Revoked() {
				if err := s.repo.UpsertLatestPrice(ctx, e.Pair, e.Price, e.Change24h, time.Now().UnixMilli()); err != nil {
					log.Error().Err(err).Str("pair", e.Pair).Msg("persist price failed")
				}
			}
			s.hub.Broadcast(e)
		}
	}
}
