package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/Sternrassler/quote-cache/pkg/source"
	"github.com/rs/zerolog"
)

var testLogger = zerolog.New(os.Stderr).Level(zerolog.Disabled)

type failingStore struct{}

func (failingStore) Load(context.Context) (State, error) {
	return State{}, errors.New("connection refused")
}

func (failingStore) Record(context.Context, time.Time, int, time.Time) error {
	return errors.New("connection refused")
}

func newTestTracker(store StateStore, cooldown time.Duration, now time.Time) *Tracker {
	tracker := NewTracker(store, cooldown, testLogger)
	tracker.now = func() time.Time { return now }
	return tracker
}

func TestNewTracker_Defaults(t *testing.T) {
	tracker := NewTracker(nil, 0, testLogger)

	if tracker.Cooldown() != DefaultCooldown {
		t.Errorf("Cooldown() = %v, want %v", tracker.Cooldown(), DefaultCooldown)
	}
	if _, ok := tracker.store.(*MemoryStateStore); !ok {
		t.Errorf("default store = %T, want *MemoryStateStore", tracker.store)
	}
}

func TestTracker_Observe(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantRecord bool
		wantStatus int
	}{
		{
			name:       "nil error",
			err:        nil,
			wantRecord: false,
		},
		{
			name:       "server error",
			err:        &source.UpstreamError{Class: source.ErrorClassServer, StatusCode: 503},
			wantRecord: false,
		},
		{
			name:       "rate limit",
			err:        &source.UpstreamError{Class: source.ErrorClassRateLimit, StatusCode: 429},
			wantRecord: true,
			wantStatus: 429,
		},
		{
			name:       "wrapped rate limit without status",
			err:        fmt.Errorf("fetch: %w", &source.UpstreamError{Class: source.ErrorClassRateLimit}),
			wantRecord: true,
			wantStatus: 429,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := time.Now()
			store := NewMemoryStateStore()
			tracker := newTestTracker(store, time.Minute, now)

			if got := tracker.Observe(context.Background(), tt.err); got != tt.wantRecord {
				t.Fatalf("Observe() = %v, want %v", got, tt.wantRecord)
			}

			state, _ := store.Load(context.Background())
			if !tt.wantRecord {
				if state.Hits != 0 {
					t.Errorf("Hits = %d, want 0", state.Hits)
				}
				return
			}

			if state.Hits != 1 {
				t.Errorf("Hits = %d, want 1", state.Hits)
			}
			if state.LastStatus != tt.wantStatus {
				t.Errorf("LastStatus = %d, want %d", state.LastStatus, tt.wantStatus)
			}
			if !state.Until.Equal(now.Add(time.Minute)) {
				t.Errorf("Until = %v, want %v", state.Until, now.Add(time.Minute))
			}
		})
	}
}

func TestTracker_Cooling(t *testing.T) {
	now := time.Now()
	store := NewMemoryStateStore()
	tracker := newTestTracker(store, time.Minute, now)
	ctx := context.Background()

	if cooling, _ := tracker.Cooling(ctx); cooling {
		t.Fatal("fresh tracker should not be cooling")
	}

	tracker.Observe(ctx, &source.UpstreamError{Class: source.ErrorClassRateLimit, StatusCode: 429})

	cooling, remaining := tracker.Cooling(ctx)
	if !cooling {
		t.Fatal("tracker should be cooling after a rate limit")
	}
	if remaining != time.Minute {
		t.Errorf("remaining = %v, want 1m", remaining)
	}

	tracker.now = func() time.Time { return now.Add(61 * time.Second) }
	if cooling, _ := tracker.Cooling(ctx); cooling {
		t.Error("cooldown should end after the window")
	}
}

func TestTracker_FailsOpen(t *testing.T) {
	tracker := newTestTracker(failingStore{}, time.Minute, time.Now())

	if tracker.Observe(context.Background(), &source.UpstreamError{Class: source.ErrorClassRateLimit}) {
		t.Error("Observe() should report false when the store fails")
	}
	if cooling, _ := tracker.Cooling(context.Background()); cooling {
		t.Error("Cooling() should fail open when the store fails")
	}
}

func TestMemoryStateStore_OnlyExtends(t *testing.T) {
	store := NewMemoryStateStore()
	ctx := context.Background()
	now := time.Now()

	store.Record(ctx, now.Add(time.Hour), 429, now)
	store.Record(ctx, now.Add(time.Minute), 429, now.Add(time.Second))

	state, _ := store.Load(ctx)
	if !state.Until.Equal(now.Add(time.Hour)) {
		t.Errorf("Until = %v, want the longer window %v", state.Until, now.Add(time.Hour))
	}
	if state.Hits != 2 {
		t.Errorf("Hits = %d, want 2", state.Hits)
	}
}
