// Package source defines the upstream quote source contract and a Yahoo
// Finance chart API implementation of it.
package source

import "context"

// Source performs one upstream lookup for a key (a currency pair such as
// "USD_KRW" or a ticker such as "AAPL"). Implementations own their own
// per-call timeout and must return failures as *UpstreamError.
//
//go:generate mockgen -package=resolver -destination=../resolver/mock_source_test.go -source=source.go
type Source interface {
	Fetch(ctx context.Context, key string) (float64, error)
}

// Func adapts a plain function to the Source interface.
type Func func(ctx context.Context, key string) (float64, error)

// Fetch calls f(ctx, key).
func (f Func) Fetch(ctx context.Context, key string) (float64, error) {
	return f(ctx, key)
}
