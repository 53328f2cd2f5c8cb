// Package queue is the at-least-once work-queue substrate: per-group FIFO
// delivery, content deduplication, receive-count tracking, and a dead-letter
// buffer. The surface is kept transport-shaped so a hosted queue can swap in
// behind Dispatcher and the worker pool without touching either.
package queue

import (
	"context"
	"strconv"
	"sync"
	"time"

	"rift-rewind/internal/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Message struct {
	// ID is the receipt identity used for partial-batch settlement.
	ID           string
	MatchID      string
	Puuid        string
	Region       string
	Year         int
	ReceiveCount int
}

// Group keys per-player FIFO ordering.
func (m Message) Group() string { return m.Puuid }

// DedupeKey makes re-enqueueing the same match a transport no-op.
func (m Message) DedupeKey() string { return m.MatchID + ":" + strconv.Itoa(m.Year) }

// Batch is one lease of messages from a single group. The group stays locked
// until the batch is settled.
type Batch struct {
	group    string
	Messages []Message
}

type Queue struct {
	maxReceive   int
	dedupeWindow time.Duration
	logger       zerolog.Logger
	metrics      *metrics.Metrics

	mu         sync.Mutex
	pending    map[string][]Message
	groupOrder []string
	locked     map[string]bool
	seen       map[string]time.Time
	dlq        []Message
	depth      int
	inflight   int
	closed     bool
	wake       chan struct{}

	now func() time.Time
}

func New(m *metrics.Metrics, logger zerolog.Logger, opts ...Option) *Queue {
	q := &Queue{
		maxReceive:   3,
		dedupeWindow: 5 * time.Minute,
		logger:       logger.With().Str("component", "queue").Logger(),
		metrics:      m,
		pending:      make(map[string][]Message),
		locked:       make(map[string]bool),
		seen:         make(map[string]time.Time),
		wake:         make(chan struct{}),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// SendBatch enqueues messages, skipping any whose dedupe key was already
// seen inside the window. Returns the number actually accepted.
func (q *Queue) SendBatch(ctx context.Context, msgs []Message) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return 0, ErrClosed
	}

	accepted := 0
	for _, msg := range msgs {
		key := msg.DedupeKey()
		if seenAt, ok := q.seen[key]; ok && q.now().Sub(seenAt) < q.dedupeWindow {
			continue
		}
		q.seen[key] = q.now()

		if msg.ID == "" {
			msg.ID = uuid.New().String()
		}

		group := msg.Group()
		q.pending[group] = append(q.pending[group], msg)
		if !q.locked[group] && !q.contains(group) {
			q.groupOrder = append(q.groupOrder, group)
		}
		accepted++
		q.depth++
	}

	if accepted > 0 {
		q.updateGauges()
		q.broadcast()
	}
	return accepted, nil
}

// Receive leases up to max messages from the first group that has pending
// work and no batch in flight, blocking until work arrives or ctx is done.
// Messages within the batch keep their enqueue order.
func (q *Queue) Receive(ctx context.Context, max int) (*Batch, error) {
	for {
		q.mu.Lock()
		// Drain only once nothing is in flight: a batch being settled may
		// still redeliver its failures, and those need a live receiver.
		if q.closed && q.depth == 0 && q.inflight == 0 {
			q.mu.Unlock()
			return nil, ErrClosed
		}

		for i, group := range q.groupOrder {
			if q.locked[group] || len(q.pending[group]) == 0 {
				continue
			}

			n := max
			if n > len(q.pending[group]) {
				n = len(q.pending[group])
			}
			msgs := make([]Message, n)
			copy(msgs, q.pending[group][:n])
			q.pending[group] = q.pending[group][n:]
			for j := range msgs {
				msgs[j].ReceiveCount++
			}

			q.locked[group] = true
			q.groupOrder = append(q.groupOrder[:i], q.groupOrder[i+1:]...)
			q.depth -= n
			q.inflight += n
			q.updateGauges()
			q.mu.Unlock()

			return &Batch{group: group, Messages: msgs}, nil
		}

		if q.closed && q.inflight == 0 {
			q.mu.Unlock()
			return nil, ErrClosed
		}

		wake := q.wake
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wake:
		}
	}
}

// Settle releases the batch's group. Messages listed in failedIDs are
// redelivered at the head of the group in their original relative order,
// unless they have hit the max receive count, in which case they move to the
// dead-letter buffer. Messages not listed are considered done.
func (q *Queue) Settle(batch *Batch, failedIDs []string) {
	failed := make(map[string]bool, len(failedIDs))
	for _, id := range failedIDs {
		failed[id] = true
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	var redeliver []Message
	for _, msg := range batch.Messages {
		q.inflight--
		if !failed[msg.ID] {
			continue
		}
		if msg.ReceiveCount >= q.maxReceive {
			q.dlq = append(q.dlq, msg)
			if q.metrics != nil {
				q.metrics.QueueDLQ.Inc()
			}
			q.logger.Error().
				Str("match_id", msg.MatchID).
				Str("puuid", msg.Puuid).
				Int("receive_count", msg.ReceiveCount).
				Msg("message dead-lettered")
			continue
		}
		redeliver = append(redeliver, msg)
	}

	if len(redeliver) > 0 {
		q.pending[batch.group] = append(redeliver, q.pending[batch.group]...)
		q.depth += len(redeliver)
	}

	delete(q.locked, batch.group)
	if len(q.pending[batch.group]) > 0 && !q.contains(batch.group) {
		q.groupOrder = append(q.groupOrder, batch.group)
	}

	q.updateGauges()
	q.broadcast()
}

func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.depth
}

// DeadLetters returns a copy of the dead-letter buffer, for operational
// inspection only.
func (q *Queue) DeadLetters() []Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Message, len(q.dlq))
	copy(out, q.dlq)
	return out
}

// Close stops new sends. Receivers drain remaining messages and then get
// ErrClosed.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.broadcast()
}

func (q *Queue) contains(group string) bool {
	for _, g := range q.groupOrder {
		if g == group {
			return true
		}
	}
	return false
}

func (q *Queue) broadcast() {
	close(q.wake)
	q.wake = make(chan struct{})
}

func (q *Queue) updateGauges() {
	if q.metrics == nil {
		return
	}
	q.metrics.QueueDepth.Set(float64(q.depth))
	q.metrics.QueueInflight.Set(float64(q.inflight))
}
