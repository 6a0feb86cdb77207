package syncer

import (
	"context"
	"time"
)

// withRetry runs fn until it succeeds, the context ends, or maxRetries extra
// attempts are spent. The wait between attempts starts at baseDelay and
// doubles each failure.
func withRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func(context.Context) error) error {
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}

	for attempt, delay := 0, baseDelay; ; attempt, delay = attempt+1, delay*2 {
		lastErr := fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt >= maxRetries {
			return lastErr
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
