package batch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/quote-cache/pkg/cache"
	"github.com/Sternrassler/quote-cache/pkg/resolver"
	"github.com/Sternrassler/quote-cache/pkg/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

// spyResolver records the peak number of concurrent resolutions.
type spyResolver struct {
	delay time.Duration

	mu      sync.Mutex
	calls   []string
	active  atomic.Int64
	maxSeen atomic.Int64
}

func (s *spyResolver) Resolve(_ context.Context, key string) resolver.Response {
	n := s.active.Inc()
	for {
		peak := s.maxSeen.Load()
		if n <= peak || s.maxSeen.CompareAndSwap(peak, n) {
			break
		}
	}
	defer s.active.Dec()

	time.Sleep(s.delay)

	s.mu.Lock()
	s.calls = append(s.calls, key)
	s.mu.Unlock()

	return resolver.Response{Key: key, Value: float64(len(key)), Success: true, Source: cache.SourceLive}
}

func TestDedup(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{name: "nil", in: nil, want: []string{}},
		{name: "keeps order", in: []string{"MSFT", "AAPL", "GOOG"}, want: []string{"MSFT", "AAPL", "GOOG"}},
		{name: "removes duplicates", in: []string{"AAPL", "MSFT", "AAPL"}, want: []string{"AAPL", "MSFT"}},
		{name: "drops empty and trims", in: []string{" AAPL ", "", "  ", "AAPL"}, want: []string{"AAPL"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Dedup(tt.in))
		})
	}
}

func TestNew_DefaultConcurrency(t *testing.T) {
	b := New(&spyResolver{}, Config{})
	assert.Equal(t, DefaultMaxConcurrency, b.config.MaxConcurrency)
}

func TestResolveAll_PreservesOrder(t *testing.T) {
	spy := &spyResolver{delay: time.Millisecond}
	b := New(spy, DefaultConfig())

	keys := []string{"A", "BBBB", "CC", "A", "DDD"}
	results := b.ResolveAll(t.Context(), keys)

	require.Len(t, results, 4)
	assert.Equal(t, "A", results[0].Key)
	assert.Equal(t, "BBBB", results[1].Key)
	assert.Equal(t, "CC", results[2].Key)
	assert.Equal(t, "DDD", results[3].Key)
	assert.Equal(t, 4.0, results[1].Value)

	assert.Len(t, spy.calls, 4)
}

func TestResolveAll_BoundsConcurrency(t *testing.T) {
	spy := &spyResolver{delay: 20 * time.Millisecond}
	b := New(spy, Config{MaxConcurrency: 2})

	keys := []string{"K1", "K2", "K3", "K4", "K5", "K6"}
	results := b.ResolveAll(t.Context(), keys)

	assert.Len(t, results, len(keys))
	assert.LessOrEqual(t, spy.maxSeen.Load(), int64(2))
	assert.GreaterOrEqual(t, spy.maxSeen.Load(), int64(1))
}

func TestResolveAll_Empty(t *testing.T) {
	b := New(&spyResolver{}, DefaultConfig())

	results := b.ResolveAll(t.Context(), []string{"", " "})
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestResolveAll_WithResolver(t *testing.T) {
	src := source.Func(func(_ context.Context, key string) (float64, error) {
		if key == "BAD" {
			return 0, &source.UpstreamError{Key: key, Class: source.ErrorClassClient, StatusCode: 404}
		}
		return 100.0, nil
	})

	single, err := resolver.New(resolver.DefaultConfig(cache.NewMemoryStore(), src))
	require.NoError(t, err)

	results := New(single, DefaultConfig()).ResolveAll(t.Context(), []string{"AAPL", "BAD"})
	require.Len(t, results, 2)

	assert.True(t, results[0].Success)
	assert.Equal(t, 100.0, results[0].Value)

	// Client errors are not retried, so this does not wait on backoff.
	assert.False(t, results[1].Success)
	assert.Equal(t, resolver.FallbackDefault, results[1].Value)
	assert.Equal(t, cache.SourceDefault, results[1].Source)
}
