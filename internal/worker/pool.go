package worker

import (
	"context"
	"errors"
	"sync"

	"rift-rewind/internal/config"
	"rift-rewind/internal/constants"
	"rift-rewind/internal/queue"

	"github.com/rs/zerolog"
)

// Pool runs a fixed number of consumers against the queue. Each consumer
// leases one batch at a time and settles it with per-message failure
// reporting.
type Pool struct {
	queue      *queue.Queue
	processor  *Processor
	count      int
	receiveMax int
	logger     zerolog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPool(q *queue.Queue, processor *Processor, cfg *config.Config, logger zerolog.Logger) *Pool {
	return &Pool{
		queue:      q,
		processor:  processor,
		count:      cfg.WorkerCount,
		receiveMax: constants.QueueReceiveMax,
		logger:     logger.With().Str("component", "worker_pool").Logger(),
	}
}

func (p *Pool) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	for i := 0; i < p.count; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
	p.logger.Info().Int("workers", p.count).Msg("worker pool started")
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()
	logger := p.logger.With().Int("worker", id).Logger()

	for {
		batch, err := p.queue.Receive(ctx, p.receiveMax)
		if err != nil {
			if errors.Is(err, queue.ErrClosed) || errors.Is(err, context.Canceled) {
				logger.Debug().Msg("worker stopping")
				return
			}
			logger.Error().Err(err).Msg("receive failed")
			continue
		}

		failed := p.processor.HandleBatch(ctx, batch)
		p.queue.Settle(batch, failed)
	}
}

// Stop closes the queue and waits for in-flight batches to settle.
func (p *Pool) Stop(ctx context.Context) error {
	p.queue.Close()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if p.cancel != nil {
			p.cancel()
		}
		p.logger.Info().Msg("worker pool stopped")
		return nil
	case <-ctx.Done():
		if p.cancel != nil {
			p.cancel()
		}
		p.logger.Warn().Msg("worker pool shutdown timed out")
		return ctx.Err()
	}
}
