// Package metrics exposes the Prometheus registry used by the quote cache.
// Metrics are defined with promauto in the packages that own them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer every package's promauto metrics land in.
var Registry = prometheus.DefaultRegisterer

// Gatherer reads back what Registry holds.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - quote_cache_lookups_total{result} (Counter): Store lookups, result found|absent
//   - quote_cache_writes_total{op} (Counter): Store writes, op put|update
//   - quote_cache_entries (Gauge): Number of cached keys
//
// Resolver Metrics (pkg/resolver):
//   - quote_resolve_total{path} (Counter): Resolutions by terminal path (hit, live, stale-reuse, default)
//   - quote_resolve_duration_seconds{path} (Histogram): Resolution latency
//   - quote_fallback_total{error_class} (Counter): Fallbacks by upstream error class
//
// Retry Metrics (pkg/retry):
//   - quote_retries_total{error_class} (Counter): Retry attempts
//   - quote_retry_backoff_seconds{error_class} (Histogram): Backoff waits
//   - quote_retry_exhausted_total{error_class} (Counter): Lookups that used every attempt
//
// Rate Limit Metrics (pkg/ratelimit):
//   - quote_rate_limit_hits_total (Counter): Upstream 429 responses recorded
//   - quote_rate_limit_skips_total (Counter): Fetches skipped during a cooldown
//   - quote_rate_limit_store_errors_total{operation} (Counter): State store failures
//
// Upstream Metrics (pkg/source):
//   - quote_upstream_requests_total{source, outcome} (Counter): Upstream calls by outcome
//   - quote_upstream_request_duration_seconds{source} (Histogram): Upstream latency
//
// Batch Metrics (pkg/batch):
//   - quote_batch_keys (Histogram): Distinct keys per batch
//   - quote_batch_duration_seconds (Histogram): Batch latency
//
// Example Prometheus Queries:
//
//   # Cache hit ratio
//   sum(rate(quote_resolve_total{path="hit"}[5m])) / sum(rate(quote_resolve_total[5m]))
//
//   # Share of responses served from a fallback
//   sum(rate(quote_resolve_total{path=~"stale-reuse|default"}[5m])) / sum(rate(quote_resolve_total[5m]))
//
//   # Upstream throttling
//   increase(quote_rate_limit_hits_total[1h]) > 0
