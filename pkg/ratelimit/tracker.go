package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Sternrassler/quote-cache/pkg/source"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit tracking.
var (
	rateLimitHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quote_rate_limit_hits_total",
		Help: "Total number of upstream rate limit responses observed",
	})

	rateLimitSkipsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quote_rate_limit_skips_total",
		Help: "Total number of upstream fetches skipped during a cooldown",
	})

	rateLimitStoreErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quote_rate_limit_store_errors_total",
		Help: "Total number of rate limit state store errors",
	}, []string{"operation"})
)

// Tracker records upstream rate limiting and gates fetches during the
// resulting cooldown.
type Tracker struct {
	store    StateStore
	cooldown time.Duration
	logger   zerolog.Logger
	now      func() time.Time
}

// NewTracker creates a new rate limit tracker. A non-positive cooldown
// uses DefaultCooldown.
func NewTracker(store StateStore, cooldown time.Duration, logger zerolog.Logger) *Tracker {
	if store == nil {
		store = NewMemoryStateStore()
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Tracker{
		store:    store,
		cooldown: cooldown,
		logger:   logger,
		now:      time.Now,
	}
}

// Cooldown returns the configured cooldown length.
func (t *Tracker) Cooldown() time.Duration {
	return t.cooldown
}

// Observe inspects an upstream error and opens a cooldown window if it
// signals rate limiting. Returns true if a cooldown was recorded.
func (t *Tracker) Observe(ctx context.Context, err error) bool {
	if !source.IsRateLimited(err) {
		return false
	}

	status := http.StatusTooManyRequests
	var upErr *source.UpstreamError
	if errors.As(err, &upErr) && upErr.StatusCode != 0 {
		status = upErr.StatusCode
	}

	now := t.now()
	until := now.Add(t.cooldown)
	rateLimitHitsTotal.Inc()

	if storeErr := t.store.Record(ctx, until, status, now); storeErr != nil {
		rateLimitStoreErrorsTotal.WithLabelValues("record").Inc()
		t.logger.Error().Err(storeErr).Msg("Failed to record rate limit state")
		return false
	}

	t.logger.Warn().
		Int("status", status).
		Time("cooldown_until", until).
		Msg("Upstream rate limit hit - cooldown started")
	return true
}

// Cooling reports whether a cooldown window is open and how long it lasts.
// Store failures fail open: the caller may go upstream.
func (t *Tracker) Cooling(ctx context.Context) (bool, time.Duration) {
	state, err := t.store.Load(ctx)
	if err != nil {
		rateLimitStoreErrorsTotal.WithLabelValues("load").Inc()
		t.logger.Warn().Err(err).Msg("Failed to load rate limit state - allowing request")
		return false, 0
	}

	now := t.now()
	if !state.Active(now) {
		return false, 0
	}

	rateLimitSkipsTotal.Inc()
	remaining := state.Remaining(now)
	t.logger.Debug().
		Dur("remaining", remaining).
		Int64("hits", state.Hits).
		Msg("Upstream cooldown active - skipping fetch")
	return true, remaining
}

// State returns the current state.
func (t *Tracker) State(ctx context.Context) (State, error) {
	return t.store.Load(ctx)
}
