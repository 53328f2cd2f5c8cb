package service

import (
	"context"
	"fmt"
	"time"

	"rift-rewind/internal/config"
	"rift-rewind/internal/riot"

	"github.com/rs/zerolog"
)

// DiscoveryService enumerates all of a player's match ids inside a time
// window, newest first.
type DiscoveryService struct {
	client    *riot.Client
	pageSize  int
	pageDelay time.Duration
	logger    zerolog.Logger
}

func NewDiscoveryService(client *riot.Client, cfg *config.Config, logger zerolog.Logger) *DiscoveryService {
	return &DiscoveryService{
		client:    client,
		pageSize:  cfg.PageSize,
		pageDelay: cfg.PageDelay,
		logger:    logger,
	}
}

// Discover paginates the match-id listing with an offset cursor until a
// short or empty page. The inter-page delay sits on top of the limiter's own
// pacing to stay under the provider's burst limit.
func (s *DiscoveryService) Discover(ctx context.Context, routing, puuid string, from, to time.Time) ([]string, error) {
	var all []string
	offset := 0

	for {
		page, err := s.client.MatchIDs(ctx, routing, puuid, offset, s.pageSize, from.Unix(), to.Unix())
		if err != nil {
			return nil, fmt.Errorf("failed to list matches at offset %d: %w", offset, err)
		}

		all = append(all, page...)
		s.logger.Debug().
			Str("puuid", puuid).
			Int("offset", offset).
			Int("page_count", len(page)).
			Msg("discovery page fetched")

		if len(page) < s.pageSize {
			break
		}
		offset += s.pageSize

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.pageDelay):
		}
	}

	s.logger.Info().Str("puuid", puuid).Int("total", len(all)).Msg("discovery complete")
	return all, nil
}
