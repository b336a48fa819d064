package resilience

import (
	"context"

	"github.com/cenkalti/backoff/v5"
)

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// Retry runs op with exponential backoff until it succeeds, returns a
// Permanent error, exhausts MaxAttempts, or ctx is done.
func Retry[T any](ctx context.Context, cfg RetryConfig, op func() (T, error)) (T, error) {
	cfg = NormalizeRetryConfig(cfg)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = cfg.InitialInterval
	policy.MaxInterval = cfg.MaxInterval

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(cfg.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
	)
}
