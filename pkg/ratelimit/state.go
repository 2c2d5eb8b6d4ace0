// Package ratelimit tracks upstream rate limiting (HTTP 429) and exposes a
// cooldown window during which callers should serve cached or default
// values instead of hitting the upstream again.
//
// The upstream limits per client IP, not per symbol, so a 429 seen while
// fetching one key applies to every key. With a Redis state store the
// cooldown is shared by all processes behind the same egress address.
package ratelimit

import (
	"time"
)

// Redis keys for rate limit state storage.
const (
	RedisKeyCooldownUntil = "quote:rate_limit:cooldown_until"
	RedisKeyHits          = "quote:rate_limit:hits"
	RedisKeyLastStatus    = "quote:rate_limit:last_status"
	RedisKeyLastUpdate    = "quote:rate_limit:last_update"
)

// DefaultCooldown is how long the upstream is left alone after a 429.
const DefaultCooldown = 60 * time.Second

// State represents the current upstream rate limit state.
type State struct {
	// Until is the end of the current cooldown window (zero if none).
	Until time.Time `json:"until"`

	// Hits is the number of rate limit responses observed.
	Hits int64 `json:"hits"`

	// LastStatus is the HTTP status of the last rate limit response.
	LastStatus int `json:"last_status"`

	// LastUpdate is when the state was last recorded.
	LastUpdate time.Time `json:"last_update"`
}

// Active returns true while the cooldown window is open.
func (s *State) Active(now time.Time) bool {
	return now.Before(s.Until)
}

// Remaining returns the duration until the cooldown ends.
// Returns 0 if the cooldown has already passed.
func (s *State) Remaining(now time.Time) time.Duration {
	d := s.Until.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
