// Package retry drives repeated upstream attempts for a single lookup with
// linear backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/quote-cache/pkg/source"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Common errors returned by the controller.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during a backoff wait.
	ErrContextCancelled = errors.New("context cancelled")
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quote_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "quote_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 3, 5, 10},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quote_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// Config holds the configuration for retry logic.
type Config struct {
	// MaxAttempts is the maximum number of attempts (including the first).
	MaxAttempts int

	// BaseDelay is multiplied by the attempt index to get the wait before
	// that attempt.
	BaseDelay time.Duration
}

// DefaultConfig returns 3 attempts with a 1s base delay, giving waits of
// 0s, 2s and 3s.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be >= 1 (got %d)", c.MaxAttempts)
	}
	if c.BaseDelay < 0 {
		return fmt.Errorf("base_delay must be >= 0 (got %s)", c.BaseDelay)
	}
	return nil
}

// Delay returns the wait before attempt (1-indexed). The first attempt
// never waits; attempt i > 1 waits BaseDelay * i.
func (c Config) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	return c.BaseDelay * time.Duration(attempt)
}

// Controller bounds the number of upstream attempts per logical request.
// It does not bound the duration of a single attempt; that is the source's job.
type Controller struct {
	config Config
	logger zerolog.Logger
}

// New creates a controller. Invalid configurations fall back to DefaultConfig.
func New(cfg Config, logger zerolog.Logger) *Controller {
	if err := cfg.Validate(); err != nil {
		logger.Warn().Err(err).Msg("Invalid retry config, using defaults")
		cfg = DefaultConfig()
	}
	return &Controller{
		config: cfg,
		logger: logger,
	}
}

// Config returns the active configuration.
func (c *Controller) Config() Config {
	return c.config
}

// Attempt calls src.Fetch for key until it succeeds or attempts run out.
//
// Server and network errors are retried. Rate-limit, client and malformed
// errors end the loop at once and are returned unchanged. After the last
// failed attempt the error wraps both ErrRetryExhausted and the last
// observed upstream error.
func (c *Controller) Attempt(ctx context.Context, key string, src source.Source) (float64, error) {
	var lastErr error
	var errClass source.ErrorClass

	for attempt := 1; attempt <= c.config.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := c.config.Delay(attempt)

			retriesTotal.WithLabelValues(string(errClass)).Inc()
			retryBackoffSeconds.WithLabelValues(string(errClass)).Observe(delay.Seconds())

			c.logger.Debug().
				Str("key", key).
				Str("error_class", string(errClass)).
				Int("attempt", attempt).
				Dur("backoff", delay).
				Msg("Retrying upstream fetch after backoff")

			if err := wait(ctx, delay); err != nil {
				c.logger.Warn().
					Str("key", key).
					Int("attempt", attempt).
					Msg("Context cancelled during retry backoff")
				return 0, fmt.Errorf("%w: %v (last error: %w)", ErrContextCancelled, err, lastErr)
			}
		}

		value, err := src.Fetch(ctx, key)
		if err == nil {
			if attempt > 1 {
				c.logger.Info().
					Str("key", key).
					Int("attempt", attempt).
					Msg("Upstream fetch succeeded after retry")
			}
			return value, nil
		}

		lastErr = err
		errClass = source.Classify(err)

		if !errClass.Retryable() {
			c.logger.Debug().
				Err(err).
				Str("key", key).
				Str("error_class", string(errClass)).
				Int("attempt", attempt).
				Msg("Upstream error is not retryable")
			return 0, lastErr
		}
	}

	retryExhaustedTotal.WithLabelValues(string(errClass)).Inc()
	c.logger.Warn().
		Err(lastErr).
		Str("key", key).
		Str("error_class", string(errClass)).
		Int("max_attempts", c.config.MaxAttempts).
		Msg("Retry attempts exhausted")

	return 0, fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, c.config.MaxAttempts, lastErr)
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
