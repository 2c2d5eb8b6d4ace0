package cache

import "time"

// Provenance tags where an entry's value came from.
type Provenance string

const (
	// SourceLive marks a value obtained from a genuine upstream success.
	SourceLive Provenance = "live"

	// SourceDefault marks a value taken from the static default table.
	SourceDefault Provenance = "default"

	// SourceStaleReuse marks the serving of an expired entry after an
	// upstream failure. Entries keep their original provenance when reused,
	// so this tag only appears in resolve outcomes.
	SourceStaleReuse Provenance = "stale-reuse"
)

// Entry is the cached state for one lookup key.
type Entry struct {
	// Key is the lookup identity, e.g. "USD_KRW" or "AAPL".
	Key string `json:"key"`

	// Value is the last known quote.
	Value float64 `json:"value"`

	// CapturedAt is when the value was established or last re-stamped.
	CapturedAt time.Time `json:"captured_at"`

	// TTL is how long the entry is valid from CapturedAt.
	TTL time.Duration `json:"ttl"`

	// Succeeded is true when Value came from an upstream success.
	Succeeded bool `json:"succeeded"`

	// Source is the provenance of Value.
	Source Provenance `json:"source"`
}

// ExpiresAt returns the authoritative expiry instant CapturedAt + TTL.
func (e *Entry) ExpiresAt() time.Time {
	return e.CapturedAt.Add(e.TTL)
}

// IsValid reports whether now is strictly before the expiry instant.
func (e *Entry) IsValid(now time.Time) bool {
	return now.Before(e.ExpiresAt())
}

// Age returns how long ago the entry was captured.
// Returns 0 if CapturedAt is in the future.
func (e *Entry) Age(now time.Time) time.Duration {
	age := now.Sub(e.CapturedAt)
	if age < 0 {
		return 0
	}
	return age
}

// Remaining returns the time until expiration.
// Returns 0 if already expired.
func (e *Entry) Remaining(now time.Time) time.Duration {
	ttl := e.ExpiresAt().Sub(now)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// Restamp moves CapturedAt to now and applies a new TTL, leaving Value,
// Succeeded and Source untouched.
func (e *Entry) Restamp(now time.Time, ttl time.Duration) {
	e.CapturedAt = now
	e.TTL = ttl
}
