package queue

import (
	"context"
	"fmt"

	"rift-rewind/internal/config"

	"github.com/rs/zerolog"
)

// Dispatcher enqueues uncached match ids in transport-sized batches.
type Dispatcher struct {
	queue     *Queue
	batchSize int
	logger    zerolog.Logger
}

func NewDispatcher(q *Queue, cfg *config.Config, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		queue:     q,
		batchSize: cfg.QueueBatchSize,
		logger:    logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Enqueue sends one message per match id, chunked to the transport's
// batch-send limit. All of a player's messages share the same ordering
// group, so they drain in FIFO order relative to each other.
func (d *Dispatcher) Enqueue(ctx context.Context, puuid, region string, year int, matchIDs []string) (int, error) {
	queued := 0
	for start := 0; start < len(matchIDs); start += d.batchSize {
		end := start + d.batchSize
		if end > len(matchIDs) {
			end = len(matchIDs)
		}

		batch := make([]Message, 0, end-start)
		for _, id := range matchIDs[start:end] {
			batch = append(batch, Message{
				MatchID: id,
				Puuid:   puuid,
				Region:  region,
				Year:    year,
			})
		}

		n, err := d.queue.SendBatch(ctx, batch)
		if err != nil {
			return queued, fmt.Errorf("failed to send batch: %w", err)
		}
		queued += n
	}

	d.logger.Info().
		Str("puuid", puuid).
		Int("year", year).
		Int("requested", len(matchIDs)).
		Int("queued", queued).
		Msg("matches enqueued")

	return queued, nil
}
