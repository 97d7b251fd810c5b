package utils

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryOptions contains configuration for retry behavior.
type RetryOptions struct {
	MaxElapsedTime  time.Duration
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxRetries      uint64
}

// GetUpstreamRetryOptions returns retry options for interactive upstream
// requests, where the caller is waiting on the answer.
func GetUpstreamRetryOptions(maxRetries uint64, delay, maxDelay time.Duration) RetryOptions {
	return RetryOptions{
		MaxElapsedTime:  10 * time.Second,
		InitialInterval: delay,
		MaxInterval:     maxDelay,
		MaxRetries:      maxRetries,
	}
}

// WithRetry executes the given operation with exponential backoff using provided options.
// Errors wrapped with backoff.Permanent stop the retries and are returned unwrapped.
func WithRetry[T any](ctx context.Context, operation func() (T, error), opts RetryOptions) (T, error) {
	var result T

	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithMaxElapsedTime(opts.MaxElapsedTime),
		backoff.WithInitialInterval(opts.InitialInterval),
		backoff.WithMaxInterval(opts.MaxInterval),
	), opts.MaxRetries)

	backoffOperation := func() error {
		var err error
		result, err = operation()
		return err
	}

	err := backoff.Retry(backoffOperation, backoff.WithContext(b, ctx))
	return result, err
}
