// Package cache holds the quote cache entry model, the in-memory store and
// the tiered TTL policy.
//
// Every lookup key owns exactly one Entry. An entry is valid while
// now < CapturedAt + TTL; once expired it is kept as a stale fallback and is
// superseded, never deleted.
//
// # Basic Usage
//
//	store := cache.NewMemoryStore()
//	policy := cache.DefaultPolicy()
//
//	key := cache.PairKey("USD", "KRW")
//	store.Put(key, cache.Entry{
//		Value:      1382.5,
//		CapturedAt: time.Now(),
//		TTL:        policy.Tier(true),
//		Succeeded:  true,
//		Source:     cache.SourceLive,
//	})
//
//	if e, ok := store.Get(key); ok && e.IsValid(time.Now()) {
//		// serve e.Value
//	}
//
// # TTL Tiers
//
//   - Success (15m): fresh upstream data
//   - Failure (3m): defaults and reused failures
//   - RateLimited (1h): any fallback served after a 429
//
// # Metrics
//
//   - quote_cache_lookups_total{result} - Store lookups
//   - quote_cache_writes_total{op} - Store writes
//   - quote_cache_entries - Number of keys held
//
// The store has no eviction. A bounded LRU is a known hardening gap for
// deployments with an open-ended ticker space.
package cache
