package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RetryPolicy bounds an operation crossing a slow or flaky boundary: a fixed
// number of attempts, a fixed delay between them, and an optional per-attempt
// deadline.
type RetryPolicy struct {
	MaxAttempts    int
	Delay          time.Duration
	AttemptTimeout time.Duration
}

// Do runs op until it succeeds or attempts are exhausted. The last error is
// wrapped in the terminal failure.
func (p RetryPolicy) Do(ctx context.Context, op func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		attemptCtx := ctx
		cancel := context.CancelFunc(func() {})
		if p.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, p.AttemptTimeout)
		}

		err := op(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err

		slog.Warn("Attempt failed",
			"attempt", attempt,
			"max_attempts", attempts,
			"error", err,
		)

		if attempt < attempts {
			select {
			case <-time.After(p.Delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}
