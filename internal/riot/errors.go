package riot

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound marks a permanent absence (404); callers treat it as a
// completed no-op, never as a failure.
var ErrNotFound = errors.New("riot: not found")

// RateLimitError is a 429 response. It never escapes the limiter unless the
// retry budget is exhausted.
type RateLimitError struct {
	RetryAfter time.Duration // zero when the header was absent
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("riot: rate limited, retry after %s", e.RetryAfter)
	}
	return "riot: rate limited"
}

// StatusError carries any other non-2xx upstream status.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("riot: upstream status %d", e.Code)
}
