package cache

import (
	"fmt"
	"time"

	"github.com/Sternrassler/quote-cache/pkg/source"
)

const (
	// SuccessTTL applies to values from a genuine upstream success.
	SuccessTTL = 15 * time.Minute

	// FailureTTL applies to defaults and reused failures so that failure
	// states are retried sooner than successes.
	FailureTTL = 3 * time.Minute

	// RateLimitedTTL applies to any fallback served after the upstream
	// answered 429.
	RateLimitedTTL = time.Hour
)

// Policy maps a lookup outcome to a validity duration.
type Policy struct {
	Success     time.Duration
	Failure     time.Duration
	RateLimited time.Duration
}

// DefaultPolicy returns the 15m / 3m / 1h tiers.
func DefaultPolicy() Policy {
	return Policy{
		Success:     SuccessTTL,
		Failure:     FailureTTL,
		RateLimited: RateLimitedTTL,
	}
}

// Validate rejects non-positive tiers. A zero failure tier would turn a
// persistent outage into a request storm.
func (p Policy) Validate() error {
	if p.Success <= 0 {
		return fmt.Errorf("success ttl must be > 0 (got %s)", p.Success)
	}
	if p.Failure <= 0 {
		return fmt.Errorf("failure ttl must be > 0 (got %s)", p.Failure)
	}
	if p.RateLimited <= 0 {
		return fmt.Errorf("rate limited ttl must be > 0 (got %s)", p.RateLimited)
	}
	return nil
}

// Tier returns the success or failure tier.
func (p Policy) Tier(succeeded bool) time.Duration {
	if succeeded {
		return p.Success
	}
	return p.Failure
}

// TTL returns the tier for succeeded, lengthened to the rate-limited
// duration when the failure that led here was a rate limit.
func (p Policy) TTL(succeeded bool, class source.ErrorClass) time.Duration {
	ttl := p.Tier(succeeded)
	if class == source.ErrorClassRateLimit && p.RateLimited > ttl {
		return p.RateLimited
	}
	return ttl
}
