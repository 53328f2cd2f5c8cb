// Package worker drains the match queue: fetch, cache, count, checkpoint.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rift-rewind/internal/config"
	"rift-rewind/internal/domain"
	"rift-rewind/internal/metrics"
	"rift-rewind/internal/queue"
	"rift-rewind/internal/riot"

	"github.com/rs/zerolog"
)

// MatchFetcher is the throttled upstream fetch.
type MatchFetcher interface {
	Match(ctx context.Context, matchID string) (*riot.Match, []byte, error)
}

// MatchStore is the durable cache write.
type MatchStore interface {
	Put(ctx context.Context, puuid, matchID, region string, body []byte) error
}

// JobStore mutates the job's progress counters.
type JobStore interface {
	IncrementProcessed(ctx context.Context, puuid string, year int) (processed, total int, status domain.JobStatus, err error)
	CompleteIfProcessing(ctx context.Context, puuid string, year int) (bool, error)
}

// AggregationTrigger fires an asynchronous recap recompute.
type AggregationTrigger interface {
	Trigger(puuid string, year int)
}

// Processor handles queue messages one at a time. It is stateless; all
// coordination lives in the job row and the queue.
type Processor struct {
	fetcher     MatchFetcher
	store       MatchStore
	jobs        JobStore
	aggregation AggregationTrigger
	checkpoint  int
	metrics     *metrics.Metrics
	logger      zerolog.Logger
}

func NewProcessor(
	fetcher MatchFetcher,
	store MatchStore,
	jobs JobStore,
	aggregation AggregationTrigger,
	cfg *config.Config,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *Processor {
	return &Processor{
		fetcher:     fetcher,
		store:       store,
		jobs:        jobs,
		aggregation: aggregation,
		checkpoint:  cfg.CheckpointInterval,
		metrics:     m,
		logger:      logger.With().Str("component", "processor").Logger(),
	}
}

// HandleBatch processes each message independently and returns the ids of
// the messages that failed, so the queue redelivers only those.
func (p *Processor) HandleBatch(ctx context.Context, batch *queue.Batch) []string {
	var failed []string
	for _, msg := range batch.Messages {
		if err := p.Process(ctx, msg); err != nil {
			p.logger.Error().
				Err(err).
				Str("match_id", msg.MatchID).
				Str("puuid", msg.Puuid).
				Int("receive_count", msg.ReceiveCount).
				Msg("message processing failed")
			if p.metrics != nil {
				p.metrics.MatchesFailed.Inc()
			}
			failed = append(failed, msg.ID)
		}
	}
	return failed
}

// Process runs one message end to end: fetch the match, persist it, bump the
// processed counter, and fire aggregation at checkpoints and at completion.
// A not-found match is permanent absence and still advances progress.
func (p *Processor) Process(ctx context.Context, msg queue.Message) error {
	start := time.Now()

	_, raw, err := p.fetcher.Match(ctx, msg.MatchID)
	switch {
	case errors.Is(err, riot.ErrNotFound):
		p.logger.Warn().Str("match_id", msg.MatchID).Msg("match permanently absent, counting as processed")
	case err != nil:
		return fmt.Errorf("fetch failed: %w", err)
	default:
		// Key the cache by the requested ID, not the payload's own metadata:
		// dedupe and delta indexing both run against the IDs we asked for.
		if err := p.store.Put(ctx, msg.Puuid, msg.MatchID, msg.Region, raw); err != nil {
			return fmt.Errorf("cache write failed: %w", err)
		}
	}

	processed, total, status, err := p.jobs.IncrementProcessed(ctx, msg.Puuid, msg.Year)
	if err != nil {
		return fmt.Errorf("counter update failed: %w", err)
	}

	if processed == total {
		if status == domain.JobProcessing {
			if _, err := p.jobs.CompleteIfProcessing(ctx, msg.Puuid, msg.Year); err != nil {
				return fmt.Errorf("completion failed: %w", err)
			}
		}
		p.aggregation.Trigger(msg.Puuid, msg.Year)
		p.logger.Info().
			Str("puuid", msg.Puuid).
			Int("year", msg.Year).
			Int("processed", processed).
			Msg("all queued matches processed")
	} else if processed%p.checkpoint == 0 {
		p.aggregation.Trigger(msg.Puuid, msg.Year)
		p.logger.Debug().
			Str("puuid", msg.Puuid).
			Int("processed", processed).
			Int("total", total).
			Msg("checkpoint aggregation triggered")
	}

	if p.metrics != nil {
		p.metrics.MatchesProcessed.Inc()
		p.metrics.ProcessLatency.Observe(time.Since(start).Seconds())
	}
	return nil
}
