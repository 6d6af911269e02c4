// Package http builds HTTP clients with transport-level retries. Connection
// errors, 429 and 5xx responses are retried by hashicorp/go-retryablehttp with
// jittered backoff before the caller ever sees them.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gabapcia/mintwatch/internal/pkg/logger"

	"github.com/hashicorp/go-retryablehttp"
)

// config holds internal settings for the HTTP client.
type config struct {
	timeout      time.Duration // maximum duration for a single HTTP request
	retryWaitMin time.Duration // minimum delay between retry attempts
	retryWaitMax time.Duration // maximum delay between retry attempts
	retryMax     int           // maximum number of retry attempts
}

// Option defines a functional option for configuring the HTTP client.
type Option func(*config)

// leveledLogger routes retryablehttp diagnostics to the process logger at debug
// level, so retried 429s are visible without flooding normal output.
type leveledLogger struct{}

func (leveledLogger) Error(msg string, keysAndValues ...any) {
	logger.Debug(context.Background(), msg, keysAndValues...)
}

func (leveledLogger) Info(msg string, keysAndValues ...any) {
	logger.Debug(context.Background(), msg, keysAndValues...)
}

func (leveledLogger) Debug(msg string, keysAndValues ...any) {
	logger.Debug(context.Background(), msg, keysAndValues...)
}

func (leveledLogger) Warn(msg string, keysAndValues ...any) {
	logger.Debug(context.Background(), msg, keysAndValues...)
}

var _ retryablehttp.LeveledLogger = leveledLogger{}

// NewClient returns a standard *http.Client backed by a retrying transport.
//
// Defaults:
//   - timeout:      10 seconds per attempt
//   - retryWaitMin: 1 second
//   - retryWaitMax: 10 seconds
//   - retryMax:     3 retries
func NewClient(opts ...Option) *http.Client {
	return newRetryableClient(opts...).StandardClient()
}

func newRetryableClient(opts ...Option) *retryablehttp.Client {
	cfg := config{
		timeout:      10 * time.Second,
		retryWaitMin: 1 * time.Second,
		retryWaitMax: 10 * time.Second,
		retryMax:     3,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	client := retryablehttp.NewClient()
	client.Logger = leveledLogger{}
	client.HTTPClient.Timeout = cfg.timeout
	client.RetryWaitMin = cfg.retryWaitMin
	client.RetryWaitMax = cfg.retryWaitMax
	client.RetryMax = cfg.retryMax
	return client
}

// WithTimeout sets the maximum duration allowed for a single HTTP attempt.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithRetryWaitMin sets the minimum delay between retry attempts.
func WithRetryWaitMin(d time.Duration) Option {
	return func(c *config) {
		c.retryWaitMin = d
	}
}

// WithRetryWaitMax sets the maximum delay between retry attempts.
func WithRetryWaitMax(d time.Duration) Option {
	return func(c *config) {
		c.retryWaitMax = d
	}
}

// WithRetryMax sets the maximum number of retries for a failed request.
func WithRetryMax(n int) Option {
	return func(c *config) {
		c.retryMax = n
	}
}
