package riot

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"rift-rewind/internal/config"
	"rift-rewind/internal/metrics"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
)

// Limiter serializes calls against the Riot API. Callers queue on the mutex
// (concurrency 1), attempts are paced to a fraction of the per-second limit,
// and a rolling timestamp window keeps the process under the two-minute
// quota. 429s and transport errors are retried with capped exponential
// backoff; the original error propagates once the budget is spent.
type Limiter struct {
	minInterval time.Duration
	windowSize  time.Duration
	windowLimit int
	baseDelay   time.Duration
	maxDelay    time.Duration
	budget      uint64

	logger  zerolog.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	lastCall time.Time
	window   []time.Time

	// injectable for tests
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewLimiter(cfg *config.Config, m *metrics.Metrics, logger zerolog.Logger) *Limiter {
	perSecond := cfg.RequestsPerSecond * cfg.LimiterFraction
	if perSecond <= 0 {
		perSecond = 1
	}
	return &Limiter{
		minInterval: minInterval(perSecond),
		windowSize:  cfg.WindowSize,
		windowLimit: cfg.WindowLimit,
		baseDelay:   cfg.RetryBaseDelay,
		maxDelay:    cfg.RetryMaxDelay,
		budget:      uint64(cfg.RetryBudget),
		logger:      logger.With().Str("component", "riot_limiter").Logger(),
		metrics:     m,
		now:         time.Now,
		sleep:       sleepContext,
	}
}

// Execute runs fn under the limiter. fn is retried on rate limits and
// transport failures; ErrNotFound is returned immediately. Exactly one
// window timestamp is recorded per successful call, regardless of how many
// attempts it took.
func (l *Limiter) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	attempt := 0
	backoff := retry.WithMaxRetries(l.budget, retry.WithCappedDuration(l.maxDelay, retry.NewExponential(l.baseDelay)))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if attempt > 1 && l.metrics != nil {
			l.metrics.APIRetries.Inc()
		}

		l.mu.Lock()
		if err := l.pace(ctx); err != nil {
			l.mu.Unlock()
			return err
		}
		l.lastCall = l.now()
		err := fn(ctx)
		if err == nil {
			l.window = append(l.window, l.now())
			l.mu.Unlock()
			if l.metrics != nil {
				l.metrics.APIRequests.Inc()
			}
			return nil
		}
		l.mu.Unlock()

		if errors.Is(err, ErrNotFound) {
			return err
		}

		var rl *RateLimitError
		if errors.As(err, &rl) {
			if l.metrics != nil {
				l.metrics.APIRateLimits.Inc()
			}
			l.logger.Warn().Dur("retry_after", rl.RetryAfter).Int("attempt", attempt).Msg("rate limited by upstream")
			if rl.RetryAfter > 0 {
				wait := rl.RetryAfter
				if wait > l.maxDelay {
					wait = l.maxDelay
				}
				if serr := l.sleep(ctx, wait); serr != nil {
					return serr
				}
			}
			return retry.RetryableError(err)
		}

		l.logger.Warn().Err(err).Int("attempt", attempt).Msg("upstream call failed")
		return retry.RetryableError(err)
	})
}

// pace blocks until the next attempt is allowed. Called with l.mu held, so
// waiting callers drain in arrival order.
func (l *Limiter) pace(ctx context.Context) error {
	if !l.lastCall.IsZero() {
		if wait := l.minInterval - l.now().Sub(l.lastCall); wait > 0 {
			if err := l.sleep(ctx, wait); err != nil {
				return err
			}
		}
	}

	l.pruneWindow()
	for len(l.window) >= l.windowLimit {
		wait := l.window[0].Add(l.windowSize).Sub(l.now())
		if wait <= 0 {
			l.pruneWindow()
			continue
		}
		l.logger.Debug().Dur("wait", wait).Int("window_count", len(l.window)).Msg("long-window quota reached, sleeping")
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
		l.pruneWindow()
	}
	return nil
}

func (l *Limiter) pruneWindow() {
	cutoff := l.now().Add(-l.windowSize)
	i := 0
	for i < len(l.window) && !l.window[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.window = append(l.window[:0], l.window[i:]...)
	}
}

// WindowTimestamps returns a copy of the current success window.
func (l *Limiter) WindowTimestamps() []time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]time.Time, len(l.window))
	copy(out, l.window)
	return out
}

// minInterval rounds up so that n calls spaced by it always span at least a
// full second at rate n, keeping any sliding one-second window at or under
// the cap.
func minInterval(perSecond float64) time.Duration {
	return time.Duration(math.Ceil(float64(time.Second) / perSecond))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
