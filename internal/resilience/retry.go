package resilience

import (
	"context"
	"log/slog"
	"time"
)

// RetryConfig tunes [Retry]. Zero fields take defaults.
type RetryConfig struct {
	// Attempts is the total number of tries, including the first.
	// Default: 3.
	Attempts int

	// BaseDelay is the wait before the second attempt; it doubles after each
	// further failure. Default: 1s.
	BaseDelay time.Duration
}

// Retry runs fn up to cfg.Attempts times with exponential backoff between
// tries. It returns nil on the first success and the last error once the
// attempts are spent. The wait is cut short when ctx is cancelled, and fn is
// never called with an already-cancelled context.
func Retry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}

	var lastErr error
	delay := cfg.BaseDelay
	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == cfg.Attempts {
			break
		}

		slog.Debug("retrying after failure",
			"attempt", attempt, "delay", delay, "error", lastErr)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return lastErr
}
