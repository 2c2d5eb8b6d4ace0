package resolver

import (
	"time"

	"github.com/Sternrassler/quote-cache/pkg/cache"
)

// Path is the terminal state a resolution ended in.
type Path string

const (
	// PathHit is a valid cache entry served without touching the store.
	PathHit Path = "hit"

	// PathLive is a fresh upstream value.
	PathLive Path = "live"

	// PathStaleReuse is an expired entry re-stamped and served after an upstream failure.
	PathStaleReuse Path = Path(cache.SourceStaleReuse)

	// PathDefault is a static default served after an upstream failure.
	PathDefault Path = "default"
)

// Response is the uniform envelope returned for every resolution.
type Response struct {
	Key     string  `json:"key"`
	Value   float64 `json:"value"`
	Success bool    `json:"success"`
	Cached  bool    `json:"cached"`

	Source  cache.Provenance `json:"source"`
	Message string           `json:"message"`

	// Timestamp is when the response was produced.
	Timestamp time.Time `json:"timestamp"`

	// CachedTimestamp is the entry's CapturedAt. After a stale reuse this is
	// the re-stamp time, not the time the value was fetched.
	CachedTimestamp time.Time `json:"cachedTimestamp"`

	AgeSeconds float64 `json:"ageSeconds"`

	Path Path `json:"-"`
}

func respond(e cache.Entry, cached bool, path Path, message string, now time.Time) Response {
	return Response{
		Key:             e.Key,
		Value:           e.Value,
		Success:         e.Succeeded,
		Cached:          cached,
		Source:          e.Source,
		Message:         message,
		Timestamp:       now,
		CachedTimestamp: e.CapturedAt,
		AgeSeconds:      e.Age(now).Seconds(),
		Path:            path,
	}
}
