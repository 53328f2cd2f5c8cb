package service

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"

	"rift-rewind/internal/constants"
	"rift-rewind/internal/domain"
	"rift-rewind/internal/matchcache"
	"rift-rewind/internal/metrics"
	"rift-rewind/internal/repository"
	"rift-rewind/internal/riot"
	"rift-rewind/internal/stats"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DeltaDispatcher receives the windowed delta for the downstream coaching
// consumer. Implementations must not block.
type DeltaDispatcher interface {
	Dispatch(payload domain.CoachingPayload)
}

// AggregationService recomputes champion statistics from every cached match
// for a player. Writes are idempotent: an unchanged content hash skips the
// write and keeps the stored version.
type AggregationService struct {
	cache    *matchcache.Cache
	recaps   *repository.RecapRepository
	sessions *repository.CoachingRepository
	jobs     *repository.JobRepository
	invoker  DeltaDispatcher
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

func NewAggregationService(
	cache *matchcache.Cache,
	recaps *repository.RecapRepository,
	sessions *repository.CoachingRepository,
	jobs *repository.JobRepository,
	invoker DeltaDispatcher,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *AggregationService {
	return &AggregationService{
		cache:    cache,
		recaps:   recaps,
		sessions: sessions,
		jobs:     jobs,
		invoker:  invoker,
		metrics:  m,
		logger:   logger.With().Str("component", "aggregation").Logger(),
	}
}

// Trigger runs an aggregation asynchronously at a job boundary: the caller
// does not wait, and an unexpected failure at the end of a run marks the job
// ERROR so a later request can retry.
func (s *AggregationService) Trigger(puuid string, year int) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), constants.AggregationTimeout)
		defer cancel()

		if _, err := s.Aggregate(ctx, puuid, year); err != nil {
			if errors.Is(err, ErrNoMatches) {
				s.logger.Info().Str("puuid", puuid).Int("year", year).Msg("nothing to aggregate")
				return
			}
			s.logger.Error().Err(err).Str("puuid", puuid).Int("year", year).Msg("aggregation failed")

			// A checkpoint failure mid-run is transient: workers keep
			// processing and trigger again with more matches. Only flag the
			// job when no further trigger is coming.
			job, gerr := s.jobs.GetByKey(ctx, puuid, year)
			if gerr == nil && job.Status == domain.JobProcessing && job.ProcessedMatches < job.TotalMatches {
				return
			}
			if merr := s.jobs.MarkError(ctx, puuid, year, err.Error()); merr != nil {
				s.logger.Error().Err(merr).Str("puuid", puuid).Msg("failed to mark job error")
			}
		}
	}()
}

// Aggregate lists every cached match for the player, recomputes the full
// aggregate, and writes the recap unless the content hash is unchanged.
func (s *AggregationService) Aggregate(ctx context.Context, puuid string, year int) (*domain.ChampionRecap, error) {
	ids, err := s.listAll(ctx, puuid)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, ErrNoMatches
	}

	matches, err := s.fetchAll(ctx, puuid, ids)
	if err != nil {
		return nil, err
	}

	hash := contentHash(year, len(ids))
	prev, err := s.recaps.Get(ctx, puuid, year)
	if err != nil && !errors.Is(err, repository.ErrRecapNotFound) {
		return nil, err
	}

	if prev != nil && prev.ContentHash == hash {
		if s.metrics != nil {
			s.metrics.AggregationSkips.Inc()
		}
		s.logger.Debug().
			Str("puuid", puuid).
			Int("year", year).
			Int("version", prev.Version).
			Msg("content hash unchanged, skipping write")
		s.dispatchDelta(ctx, puuid, matches, ids, prev.Stats.TopChampion)
		return prev, nil
	}

	computed := stats.Compute(puuid, matches)

	version := 1
	if prev != nil {
		version = prev.Version + 1
	}

	recap, err := s.recaps.Put(ctx, puuid, year, computed, version, hash)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.AggregationRuns.Inc()
	}

	s.logger.Info().
		Str("puuid", puuid).
		Int("year", year).
		Int("version", version).
		Int("matches", len(ids)).
		Msg("recap aggregated")

	s.dispatchDelta(ctx, puuid, matches, ids, computed.TopChampion)
	return recap, nil
}

// listAll pages through the cache namespace; the resulting order is the
// stable lexicographic order the coaching window indexes into.
func (s *AggregationService) listAll(ctx context.Context, puuid string) ([]string, error) {
	var all []string
	offset := 0
	for {
		page, err := s.cache.List(ctx, puuid, offset, constants.CacheListPageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < constants.CacheListPageSize {
			return all, nil
		}
		offset += constants.CacheListPageSize
	}
}

// fetchAll reads match bodies in bounded parallel batches, preserving the id
// order in the result.
func (s *AggregationService) fetchAll(ctx context.Context, puuid string, ids []string) ([]*riot.Match, error) {
	matches := make([]*riot.Match, len(ids))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(constants.AggregateFetchBatch)
	for i, id := range ids {
		g.Go(func() error {
			body, err := s.cache.Get(gCtx, puuid, id)
			if err != nil {
				return fmt.Errorf("failed to read match %s: %w", id, err)
			}
			var match riot.Match
			if err := json.Unmarshal(body, &match); err != nil {
				return fmt.Errorf("failed to decode match %s: %w", id, err)
			}
			matches[i] = &match
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return matches, nil
}

// dispatchDelta computes the windowed delta for the player's active coaching
// session and fires the downstream consumer without awaiting it. Failures
// are logged and never fail the aggregation.
func (s *AggregationService) dispatchDelta(ctx context.Context, puuid string, matches []*riot.Match, ids []string, topChampion string) {
	session, err := s.sessions.ActiveSessionForPlayer(ctx, puuid)
	if err != nil {
		if !errors.Is(err, repository.ErrSessionNotFound) {
			s.logger.Warn().Err(err).Str("puuid", puuid).Msg("failed to look up coaching session")
		}
		return
	}

	cursor := session.LastMatchIndexSent
	if cursor >= len(matches) {
		return
	}

	features := make([]domain.MatchFeature, 0, len(matches)-cursor)
	for _, match := range matches[cursor:] {
		if f, ok := stats.Flatten(puuid, match); ok {
			features = append(features, f)
		}
	}
	if len(features) == 0 {
		return
	}

	payload := domain.CoachingPayload{
		SessionID:             session.SessionID,
		Puuid:                 puuid,
		TopChampion:           topChampion,
		Matches:               features,
		LastMatchIndexSent:    cursor,
		NewLastMatchIndexSent: len(ids),
		ConnectionID:          session.ConnectionID,
	}

	s.invoker.Dispatch(payload)
}

// contentHash is the coarse idempotency key. It cannot see a match replaced
// at the same count; matches are write-once, so that does not happen.
func contentHash(year, matchCount int) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%d:%d", year, matchCount))
	return fmt.Sprintf("%x", sum)
}
