// Package resolver serves the best available quote for a key through the
// fallback chain: valid cache, fresh fetch, stale cache, static default.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/quote-cache/pkg/cache"
	"github.com/Sternrassler/quote-cache/pkg/ratelimit"
	"github.com/Sternrassler/quote-cache/pkg/retry"
	"github.com/Sternrassler/quote-cache/pkg/source"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrCoolingDown is the fetch error recorded when an upstream cooldown
// suppressed the fetch.
var ErrCoolingDown = errors.New("upstream cooldown active")

// Prometheus metrics for resolutions.
var (
	resolveTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quote_resolve_total",
		Help: "Total quote resolutions by terminal path",
	}, []string{"path"})

	resolveDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "quote_resolve_duration_seconds",
		Help:    "Quote resolution duration in seconds by terminal path",
		Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"path"})

	fallbackTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quote_fallback_total",
		Help: "Total fallbacks by upstream error class",
	}, []string{"error_class"})
)

// Config holds the resolver configuration.
type Config struct {
	// Store holds cache entries (required).
	Store cache.Store

	// Source performs upstream lookups (required).
	Source source.Source

	// Retry bounds the upstream attempts per resolution.
	Retry retry.Config

	// Policy maps outcomes to TTLs.
	Policy cache.Policy

	// Defaults is the static value table; nil uses DefaultTable().
	Defaults *Defaults

	// Tracker gates fetches during upstream cooldowns; nil disables gating.
	Tracker *ratelimit.Tracker
}

// DefaultConfig returns a configuration with the reference retry and TTL
// settings.
func DefaultConfig(store cache.Store, src source.Source) Config {
	return Config{
		Store:    store,
		Source:   src,
		Retry:    retry.DefaultConfig(),
		Policy:   cache.DefaultPolicy(),
		Defaults: DefaultTable(),
	}
}

// Resolver is the façade callers use to obtain quotes. It never returns an
// error: every failure ends in a stale or default value with an honest
// provenance tag.
type Resolver struct {
	store    cache.Store
	source   source.Source
	retry    *retry.Controller
	policy   cache.Policy
	defaults *Defaults
	tracker  *ratelimit.Tracker
	logger   zerolog.Logger
	now      func() time.Time
}

// New creates a resolver.
func New(cfg Config) (*Resolver, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("cache store is required")
	}
	if cfg.Source == nil {
		return nil, fmt.Errorf("quote source is required")
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("ttl policy: %w", err)
	}
	if err := cfg.Retry.Validate(); err != nil {
		return nil, fmt.Errorf("retry config: %w", err)
	}
	if cfg.Defaults == nil {
		cfg.Defaults = DefaultTable()
	}

	logger := log.With().Str("component", "resolver").Logger()

	return &Resolver{
		store:    cfg.Store,
		source:   cfg.Source,
		retry:    retry.New(cfg.Retry, logger),
		policy:   cfg.Policy,
		defaults: cfg.Defaults,
		tracker:  cfg.Tracker,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Resolve returns the best available value for key.
func (r *Resolver) Resolve(ctx context.Context, key string) Response {
	start := time.Now()
	resp := r.resolve(ctx, key)

	resolveTotal.WithLabelValues(string(resp.Path)).Inc()
	resolveDuration.WithLabelValues(string(resp.Path)).Observe(time.Since(start).Seconds())
	return resp
}

// Peek returns the current entry for key without fetching.
func (r *Resolver) Peek(key string) (cache.Entry, bool) {
	return r.store.Get(key)
}

func (r *Resolver) resolve(ctx context.Context, key string) Response {
	prior, found := r.store.Get(key)
	now := r.now()

	if found && prior.IsValid(now) {
		r.logger.Debug().
			Str("key", key).
			Str("source", string(prior.Source)).
			Bool("success", prior.Succeeded).
			Dur("remaining", prior.Remaining(now)).
			Msg("Cache hit")
		return respond(prior, true, PathHit, "cache hit", now)
	}

	value, class, err := r.fetch(ctx, key)
	if err == nil {
		now = r.now()
		entry := cache.Entry{
			Key:        key,
			Value:      value,
			CapturedAt: now,
			TTL:        r.policy.Tier(true),
			Succeeded:  true,
			Source:     cache.SourceLive,
		}
		r.store.Put(key, entry)

		r.logger.Info().
			Str("key", key).
			Float64("value", value).
			Dur("ttl", entry.TTL).
			Msg("Live quote cached")
		return respond(entry, false, PathLive, "live quote", now)
	}

	return r.fallback(key, class, err)
}

// fetch runs the retry loop detached from the caller's cancellation so a
// caller that gives up still leaves a fresh value for the next one.
func (r *Resolver) fetch(ctx context.Context, key string) (float64, source.ErrorClass, error) {
	fetchCtx := context.WithoutCancel(ctx)

	if r.tracker != nil {
		if cooling, remaining := r.tracker.Cooling(fetchCtx); cooling {
			return 0, source.ErrorClassCooldown, fmt.Errorf("%w: %s remaining", ErrCoolingDown, remaining)
		}
	}

	value, err := r.retry.Attempt(fetchCtx, key, r.source)
	if err == nil {
		if verr := source.ValidateQuote(value); verr != nil {
			err = &source.UpstreamError{
				Key:     key,
				Class:   source.ErrorClassMalformed,
				Message: fmt.Sprintf("value %v", value),
				Err:     verr,
			}
		}
	}
	if err != nil {
		if r.tracker != nil {
			r.tracker.Observe(fetchCtx, err)
		}
		return 0, source.Classify(err), err
	}

	return value, source.ErrorClassNone, nil
}

func (r *Resolver) fallback(key string, class source.ErrorClass, fetchErr error) Response {
	fallbackTotal.WithLabelValues(string(class)).Inc()
	now := r.now()

	refreshed := false
	reused, ok := r.store.Update(key, func(e *cache.Entry) {
		if e.IsValid(now) {
			refreshed = true
			return
		}
		e.Restamp(now, r.policy.TTL(e.Succeeded, class))
	})
	if ok && refreshed {
		r.logger.Debug().
			Err(fetchErr).
			Str("key", key).
			Str("source", string(reused.Source)).
			Msg("Upstream failed, entry refreshed concurrently")
		return respond(reused, true, PathHit, "cache hit", now)
	}
	if ok {
		r.logger.Warn().
			Err(fetchErr).
			Str("key", key).
			Str("error_class", string(class)).
			Str("source", string(reused.Source)).
			Bool("success", reused.Succeeded).
			Dur("ttl", reused.TTL).
			Msg("Upstream failed, reusing cached value")
		return respond(reused, true, PathStaleReuse, fallbackMessage("stale cache reused", class), now)
	}

	entry := cache.Entry{
		Key:        key,
		Value:      r.defaults.Lookup(key),
		CapturedAt: now,
		TTL:        r.policy.TTL(false, class),
		Succeeded:  false,
		Source:     cache.SourceDefault,
	}
	r.store.Put(key, entry)

	r.logger.Warn().
		Err(fetchErr).
		Str("key", key).
		Str("error_class", string(class)).
		Float64("default", entry.Value).
		Bool("dedicated_default", r.defaults.Has(key)).
		Dur("ttl", entry.TTL).
		Msg("Upstream failed, serving default value")
	return respond(entry, false, PathDefault, fallbackMessage("default value used", class), now)
}

func fallbackMessage(what string, class source.ErrorClass) string {
	switch class {
	case source.ErrorClassRateLimit:
		return what + " (upstream rate limited)"
	case source.ErrorClassCooldown:
		return what + " (upstream cooling down)"
	default:
		return what + " (upstream error)"
	}
}
