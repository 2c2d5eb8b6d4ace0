// Package batch resolves many keys in parallel with bounded concurrency.
package batch

import (
	"context"
	"strings"
	"time"

	"github.com/Sternrassler/quote-cache/pkg/resolver"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxConcurrency keeps a burst of keys below the upstream's
// per-IP limit.
const DefaultMaxConcurrency = 5

var (
	batchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "quote_batch_keys",
		Help:    "Number of distinct keys per batch resolution",
		Buckets: []float64{1, 2, 5, 10, 20, 50},
	})

	batchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "quote_batch_duration_seconds",
		Help:    "Batch resolution duration in seconds",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
	})
)

// KeyResolver resolves a single key. *resolver.Resolver implements it.
type KeyResolver interface {
	Resolve(ctx context.Context, key string) resolver.Response
}

// Config holds batch configuration.
type Config struct {
	// MaxConcurrency is the maximum number of parallel resolutions.
	MaxConcurrency int
}

// DefaultConfig returns the default batch configuration.
func DefaultConfig() Config {
	return Config{MaxConcurrency: DefaultMaxConcurrency}
}

// Resolver fans a list of keys out over a single-key resolver.
type Resolver struct {
	single KeyResolver
	config Config
	logger zerolog.Logger
}

// New creates a batch resolver. A non-positive MaxConcurrency uses
// DefaultMaxConcurrency.
func New(single KeyResolver, config Config) *Resolver {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = DefaultMaxConcurrency
	}
	return &Resolver{
		single: single,
		config: config,
		logger: log.With().Str("component", "batch").Logger(),
	}
}

// ResolveAll resolves every distinct non-empty key and returns one response
// per key in order of first appearance. Like the single-key path it never
// fails: each response carries its own provenance.
func (b *Resolver) ResolveAll(ctx context.Context, keys []string) []resolver.Response {
	start := time.Now()
	unique := Dedup(keys)
	if len(unique) == 0 {
		return []resolver.Response{}
	}

	results := make([]resolver.Response, len(unique))

	var g errgroup.Group
	g.SetLimit(b.config.MaxConcurrency)
	for i, key := range unique {
		g.Go(func() error {
			results[i] = b.single.Resolve(ctx, key)
			return nil
		})
	}
	_ = g.Wait()

	batchSize.Observe(float64(len(unique)))
	batchDuration.Observe(time.Since(start).Seconds())

	b.logger.Debug().
		Int("keys", len(unique)).
		Int("max_concurrency", b.config.MaxConcurrency).
		Dur("duration", time.Since(start)).
		Msg("Batch resolution complete")

	return results
}

// Dedup trims keys, drops empty ones and removes duplicates while keeping
// the first occurrence order.
func Dedup(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
