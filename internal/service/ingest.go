package service

import (
	"context"
	"fmt"
	"time"

	"rift-rewind/internal/domain"
	"rift-rewind/internal/matchcache"
	"rift-rewind/internal/queue"
	"rift-rewind/internal/repository"
	"rift-rewind/internal/riot"

	"github.com/rs/zerolog"
)

// IngestService runs the discovery side of a job: enumerate match ids,
// filter out what the cache already holds, record counts, and enqueue the
// rest. The worker pool takes it from there.
type IngestService struct {
	discovery   *DiscoveryService
	cache       *matchcache.Cache
	dispatcher  *queue.Dispatcher
	jobs        *repository.JobRepository
	aggregation *AggregationService
	logger      zerolog.Logger
}

func NewIngestService(
	discovery *DiscoveryService,
	cache *matchcache.Cache,
	dispatcher *queue.Dispatcher,
	jobs *repository.JobRepository,
	aggregation *AggregationService,
	logger zerolog.Logger,
) *IngestService {
	return &IngestService{
		discovery:   discovery,
		cache:       cache,
		dispatcher:  dispatcher,
		jobs:        jobs,
		aggregation: aggregation,
		logger:      logger.With().Str("component", "ingest").Logger(),
	}
}

// Start drives one job from PENDING through discovery. Failures mark the job
// ERROR; a later request for the same (puuid, year) can re-trigger it.
func (s *IngestService) Start(ctx context.Context, job *domain.PlayerJob) error {
	from, to := yearRange(job.Year)

	ids, err := s.discovery.Discover(ctx, riot.RoutingRegion(job.Region), job.Puuid, from, to)
	if err != nil {
		s.fail(ctx, job, fmt.Errorf("discovery failed: %w", err))
		return err
	}

	cached, uncached, err := s.cache.FilterUncached(ctx, job.Puuid, ids)
	if err != nil {
		s.fail(ctx, job, fmt.Errorf("cache filter failed: %w", err))
		return err
	}

	if err := s.jobs.SetDiscovered(ctx, job.Puuid, job.Year, len(uncached), len(cached), len(uncached)); err != nil {
		s.fail(ctx, job, err)
		return err
	}

	if len(uncached) == 0 {
		// Everything already cached (or nothing exists). Complete now and
		// refresh the recap once so a returning player still gets one.
		if _, err := s.jobs.CompleteIfProcessing(ctx, job.Puuid, job.Year); err != nil {
			s.fail(ctx, job, err)
			return err
		}
		s.aggregation.Trigger(job.Puuid, job.Year)
		s.logger.Info().
			Str("job_id", job.JobID).
			Int("cached", len(cached)).
			Msg("all matches already cached, job complete")
		return nil
	}

	if _, err := s.dispatcher.Enqueue(ctx, job.Puuid, job.Region, job.Year, uncached); err != nil {
		s.fail(ctx, job, fmt.Errorf("enqueue failed: %w", err))
		return err
	}

	s.logger.Info().
		Str("job_id", job.JobID).
		Int("discovered", len(ids)).
		Int("cached", len(cached)).
		Int("queued", len(uncached)).
		Msg("ingestion started")
	return nil
}

func (s *IngestService) fail(ctx context.Context, job *domain.PlayerJob, err error) {
	s.logger.Error().Err(err).Str("job_id", job.JobID).Msg("ingestion failed")
	if merr := s.jobs.MarkError(ctx, job.Puuid, job.Year, err.Error()); merr != nil {
		s.logger.Error().Err(merr).Str("job_id", job.JobID).Msg("failed to mark job error")
	}
}

// yearRange bounds discovery to the calendar year, clamped to now for the
// current season.
func yearRange(year int) (time.Time, time.Time) {
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(year+1, time.January, 1, 0, 0, 0, 0, time.UTC)
	if now := time.Now().UTC(); to.After(now) {
		to = now
	}
	return from, to
}
