package dbusbar

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// RetryPolicy controls how often a failed bus connection attempt is
// retried.
type RetryPolicy struct {
	// Attempts is the total number of attempts, including the
	// first. Values below 1 mean a single attempt.
	Attempts int
	// Initial is the delay before the first retry.
	Initial time.Duration
	// Max caps the delay between attempts.
	Max time.Duration
	// Factor multiplies the delay after each retry.
	Factor float64
}

// DefaultRetryPolicy gives a bus that is still starting up (for
// example at login) a few seconds to appear.
var DefaultRetryPolicy = RetryPolicy{
	Attempts: 5,
	Initial:  500 * time.Millisecond,
	Max:      5 * time.Second,
	Factor:   1.5,
}

// delay returns how long to wait before the given retry. retry is
// 1 for the first retry.
func (p RetryPolicy) delay(retry int) time.Duration {
	d := float64(p.Initial)
	for range retry - 1 {
		d *= p.Factor
		if d >= float64(p.Max) {
			return p.Max
		}
	}
	return min(time.Duration(d), p.Max)
}

// isPermanent reports whether err cannot be fixed by trying again.
func isPermanent(err error) bool {
	var cfg *ConfigError
	return errors.As(err, &cfg) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// retry calls fn until it succeeds, returns a permanent error, or
// the policy's attempts are exhausted. It returns the last error.
func retry[T any](ctx context.Context, p RetryPolicy, logger *slog.Logger, what string, fn func(context.Context) (T, error)) (T, error) {
	var (
		zero    T
		lastErr error
	)
	attempts := max(p.Attempts, 1)
	for attempt := range attempts {
		if attempt > 0 {
			backoff := p.delay(attempt)
			logger.Debug("retrying", "op", what, "attempt", attempt+1, "of", attempts, "delay", backoff)
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(backoff):
			}
		}

		ret, err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				logger.Debug("succeeded after retry", "op", what, "attempt", attempt+1)
			}
			return ret, nil
		}
		lastErr = err
		if isPermanent(err) || ctx.Err() != nil {
			return zero, err
		}
		if attempt+1 < attempts {
			// The caller reports the final failure.
			logger.Warn("attempt failed", "op", what, "attempt", attempt+1, "of", attempts, "error", err)
		}
	}
	return zero, lastErr
}
