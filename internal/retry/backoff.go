package retry

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

// Exponential runs fn up to attempts times with exponential backoff starting
// at base (base, 2*base, 4*base, ...). Every error from fn is treated as
// retryable; the last error is returned when attempts are exhausted.
func Exponential(ctx context.Context, attempts int, base time.Duration, fn func(ctx context.Context) error) error {
	b := retry.WithMaxRetries(uint64(attempts-1), retry.NewExponential(base))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

// Constant runs fn up to attempts times with a fixed delay between attempts.
func Constant(ctx context.Context, attempts int, delay time.Duration, fn func(ctx context.Context) error) error {
	b := retry.WithMaxRetries(uint64(attempts-1), retry.NewConstant(delay))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}
