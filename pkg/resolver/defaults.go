package resolver

import (
	"math"
	"strings"
)

// FallbackDefault is served for keys without a configured default.
const FallbackDefault = 1.0

// Defaults is the static value table used when no cached value exists and
// the upstream cannot be reached.
type Defaults struct {
	values   map[string]float64
	fallback float64
}

// DefaultTable returns the built-in currency pair approximations.
func DefaultTable() *Defaults {
	return NewDefaults(map[string]float64{
		"USD_KRW": 1456.0,
		"KRW_USD": 0.000687, // 1/1456
	}, FallbackDefault)
}

// NewDefaults builds a table. Keys are upper-cased; non-positive or
// non-finite values are dropped so the table can only serve usable quotes.
// An unusable fallback is replaced by FallbackDefault.
func NewDefaults(values map[string]float64, fallback float64) *Defaults {
	d := &Defaults{
		values:   make(map[string]float64, len(values)),
		fallback: FallbackDefault,
	}
	if usable(fallback) {
		d.fallback = fallback
	}
	for k, v := range values {
		if usable(v) {
			d.values[strings.ToUpper(k)] = v
		}
	}
	return d
}

// Lookup returns the default for key, or the fallback.
func (d *Defaults) Lookup(key string) float64 {
	if v, ok := d.values[strings.ToUpper(key)]; ok {
		return v
	}
	return d.fallback
}

// Has reports whether key has a dedicated default.
func (d *Defaults) Has(key string) bool {
	_, ok := d.values[strings.ToUpper(key)]
	return ok
}

func usable(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
