package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheLookups tracks store lookups by result ("found", "absent").
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quote_cache_lookups_total",
			Help: "Total number of quote cache lookups",
		},
		[]string{"result"},
	)

	// CacheWrites tracks store writes by operation ("put", "update").
	CacheWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quote_cache_writes_total",
			Help: "Total number of quote cache writes",
		},
		[]string{"op"},
	)

	// CacheEntries tracks the number of keys held by the store.
	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "quote_cache_entries",
			Help: "Current number of entries in the quote cache",
		},
	)
)
