// Package breaker wraps sony/gobreaker so outbound clients can stop hammering a
// failing dependency. A breaker opens after a run of consecutive failures and
// lets a few probe requests through once its timeout elapses.
package breaker

import (
	"context"
	"errors"
	"time"

	"github.com/gabapcia/mintwatch/internal/pkg/logger"

	"github.com/sony/gobreaker"
)

// ErrOpen is returned while the breaker rejects calls.
var ErrOpen = errors.New("circuit breaker open")

type config struct {
	maxRequests         uint32
	interval            time.Duration
	timeout             time.Duration
	consecutiveFailures uint32
	isSuccessful        func(error) bool
}

// Option configures a Breaker.
type Option func(*config)

// Breaker guards calls to a single dependency.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// New creates a Breaker named name.
//
// Defaults: 5 half-open probes, counts cleared every 10s while closed, 30s open
// timeout, trips after more than 5 consecutive failures, only nil errors count
// as successes.
func New(name string, opts ...Option) *Breaker {
	cfg := config{
		maxRequests:         5,
		interval:            10 * time.Second,
		timeout:             30 * time.Second,
		consecutiveFailures: 5,
		isSuccessful:        func(err error) bool { return err == nil },
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.maxRequests,
		Interval:    cfg.interval,
		Timeout:     cfg.timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > cfg.consecutiveFailures
		},
		IsSuccessful: cfg.isSuccessful,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn(context.Background(), "circuit breaker state changed",
				"breaker.name", name,
				"breaker.from", from.String(),
				"breaker.to", to.String(),
			)
		},
	}

	return &Breaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// Do runs fn through b and returns its result. Calls rejected by an open or
// saturated half-open breaker fail with ErrOpen.
func Do[T any](b *Breaker, fn func() (T, error)) (T, error) {
	res, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		var zero T
		return zero, errors.Join(ErrOpen, err)
	}

	out, _ := res.(T)
	return out, err
}

// State reports the current breaker state ("closed", "half-open", "open").
func (b *Breaker) State() string {
	return b.cb.State().String()
}

// WithTimeout sets how long the breaker stays open before probing again.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithConsecutiveFailures sets the failure streak after which the breaker trips.
func WithConsecutiveFailures(n uint32) Option {
	return func(c *config) {
		c.consecutiveFailures = n
	}
}

// WithIsSuccessful decides which errors do not count against the dependency,
// for example rejected requests that the remote side answered correctly.
func WithIsSuccessful(f func(error) bool) Option {
	return func(c *config) {
		c.isSuccessful = f
	}
}
