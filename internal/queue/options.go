package queue

import "time"

// Option applies a configuration option to the Queue.
type Option func(*Queue)

// WithMaxReceive sets how many deliveries a message gets before it is
// dead-lettered.
func WithMaxReceive(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.maxReceive = n
		}
	}
}

// WithDedupeWindow sets how long a dedupe key suppresses re-sends.
func WithDedupeWindow(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.dedupeWindow = d
		}
	}
}
