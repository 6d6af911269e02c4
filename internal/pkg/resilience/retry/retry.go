// Package retry provides a configurable retry policy for operations that may fail
// temporarily, such as calls to a rate-limited RPC node. It wraps avast/retry-go
// with exponential backoff and exposes functional options for the number of
// attempts, the backoff curve and which errors are worth retrying.
//
// Basic usage:
//
//	r := retry.New()
//	err := r.Execute(ctx, func() error {
//	    return client.Call(ctx)
//	})
//
// With a retryable-error predicate:
//
//	r := retry.New(
//	    retry.WithAttempts(5),
//	    retry.WithRetryIf(func(err error) bool { return !errors.Is(err, ErrInvalid) }),
//	)
package retry

import (
	"context"
	"errors"
	"time"

	retry "github.com/avast/retry-go/v4"
)

// Retry runs operations under a retry policy.
type Retry interface {
	// Execute runs operation until it succeeds, the attempts are exhausted, the
	// predicate rejects the error or ctx is done. The operation must be safe to
	// call more than once.
	Execute(ctx context.Context, operation func() error) error
}

// config holds internal settings for the retry mechanism.
type config struct {
	attempts    uint          // maximum number of attempts, the first one included
	delay       time.Duration // base delay before the first retry
	maxDelay    time.Duration // cap on the exponential delay
	lastErrOnly bool          // return only the last error instead of all of them
	retryIf     func(error) bool
	onRetry     func(attempt uint, err error)
}

// Option configures a Retry built by New.
type Option func(*config)

type retrier struct {
	cfg config
}

var _ Retry = (*retrier)(nil)

// New returns a Retry configured with opts.
//
// Defaults:
//   - attempts:    3
//   - delay:       1 second, doubled on each retry
//   - maxDelay:    5 seconds
//   - lastErrOnly: true
//   - retryIf:     every error except context cancellation
func New(opts ...Option) Retry {
	cfg := config{
		attempts:    3,
		delay:       1 * time.Second,
		maxDelay:    5 * time.Second,
		lastErrOnly: true,
		retryIf:     IsRetryable,
		onRetry:     func(uint, error) {},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &retrier{
		cfg: cfg,
	}
}

// Execute implements Retry.
func (r *retrier) Execute(ctx context.Context, operation func() error) error {
	options := []retry.Option{
		retry.Attempts(r.cfg.attempts),
		retry.Delay(r.cfg.delay),
		retry.MaxDelay(r.cfg.maxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(r.cfg.lastErrOnly),
		retry.RetryIf(r.cfg.retryIf),
		retry.OnRetry(r.cfg.onRetry),
		retry.Context(ctx),
	}

	return retry.Do(operation, options...)
}

// IsRetryable is the default predicate. Cancellation and deadline errors are
// final; anything else is retried.
func IsRetryable(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// WithAttempts sets the maximum number of attempts, the first one included.
func WithAttempts(n uint) Option {
	return func(c *config) {
		c.attempts = n
	}
}

// WithDelay sets the base delay used before the first retry.
func WithDelay(d time.Duration) Option {
	return func(c *config) {
		c.delay = d
	}
}

// WithMaxDelay caps the exponential delay between attempts.
func WithMaxDelay(d time.Duration) Option {
	return func(c *config) {
		c.maxDelay = d
	}
}

// WithLastErrorOnly chooses between returning the last error (true) or all
// attempt errors combined (false).
func WithLastErrorOnly(b bool) Option {
	return func(c *config) {
		c.lastErrOnly = b
	}
}

// WithRetryIf sets the predicate deciding whether an error is worth another
// attempt. Errors rejected by the predicate are returned immediately.
func WithRetryIf(f func(error) bool) Option {
	return func(c *config) {
		c.retryIf = f
	}
}

// WithOnRetry registers a callback invoked after each failed attempt that will
// be retried. attempt is zero based.
func WithOnRetry(f func(attempt uint, err error)) Option {
	return func(c *config) {
		c.onRetry = f
	}
}
