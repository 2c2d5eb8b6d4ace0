package source_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Sternrassler/quote-cache/internal/testutil"
	"github.com/Sternrassler/quote-cache/pkg/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSymbol(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "USDKRW=X", source.Symbol("USD_KRW"))
	assert.Equal(t, "KRWUSD=X", source.Symbol("krw_usd"))
	assert.Equal(t, "AAPL", source.Symbol("AAPL"))
	assert.Equal(t, "005930.KS", source.Symbol("005930.KS"))
	assert.Equal(t, "BRK_B", source.Symbol("BRK_B"))
}

func TestYahoo_Fetch(t *testing.T) {
	t.Parallel()

	mock := testutil.NewMockUpstream()
	defer mock.Close()

	mock.SetQuote("USDKRW=X", 1382.5)
	mock.SetQuote("AAPL", 227.48)
	mock.SetResponse("MSFT", testutil.NewRateLimitResponse())
	mock.SetResponse("NVDA", testutil.NewServerErrorResponse())
	mock.SetResponse("GONE", testutil.NewNotFoundChartResponse())
	mock.SetResponse("TSLA", testutil.NewEdgeThrottleResponse())
	mock.SetQuote("ZERO", 0)

	y := source.NewYahoo(source.WithBaseURL(mock.URL()))

	tests := []struct {
		name      string
		key       string
		want      float64
		wantClass source.ErrorClass
	}{
		{name: "currency pair", key: "USD_KRW", want: 1382.5},
		{name: "ticker", key: "AAPL", want: 227.48},
		{name: "rate limited", key: "MSFT", wantClass: source.ErrorClassRateLimit},
		{name: "server error", key: "NVDA", wantClass: source.ErrorClassServer},
		{name: "chart error payload", key: "GONE", wantClass: source.ErrorClassMalformed},
		{name: "edge throttle body", key: "TSLA", wantClass: source.ErrorClassRateLimit},
		{name: "non-positive price", key: "ZERO", wantClass: source.ErrorClassMalformed},
		{name: "unknown symbol", key: "NOPE", wantClass: source.ErrorClassClient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := y.Fetch(context.Background(), tt.key)
			if tt.wantClass == source.ErrorClassNone {
				require.NoError(t, err)
				assert.InDelta(t, tt.want, got, 1e-9)
				return
			}

			require.Error(t, err)
			var upErr *source.UpstreamError
			require.True(t, errors.As(err, &upErr), "expected *UpstreamError, got %T", err)
			assert.Equal(t, tt.wantClass, upErr.Class)
			assert.Equal(t, tt.key, upErr.Key)
		})
	}
}

func TestYahoo_Fetch_InvalidQuoteSentinel(t *testing.T) {
	t.Parallel()

	mock := testutil.NewMockUpstream()
	defer mock.Close()
	mock.SetQuote("ZERO", 0)

	_, err := source.NewYahoo(source.WithBaseURL(mock.URL())).Fetch(context.Background(), "ZERO")
	require.ErrorIs(t, err, source.ErrInvalidQuote)
}

func TestYahoo_Fetch_Headers(t *testing.T) {
	t.Parallel()

	mock := testutil.NewMockUpstream()
	defer mock.Close()
	mock.SetQuote("AAPL", 1)

	y := source.NewYahoo(
		source.WithBaseURL(mock.URL()+"/"),
		source.WithUserAgent("quote-cache-test/1.0"),
		source.WithHeader(map[string][]string{"X-Trace": {"abc"}}),
	)

	_, err := y.Fetch(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "quote-cache-test/1.0", mock.LastRequestHeader.Get("User-Agent"))
	assert.Equal(t, "abc", mock.LastRequestHeader.Get("X-Trace"))
	assert.Equal(t, "application/json", mock.LastRequestHeader.Get("Accept"))
}

func TestYahoo_Fetch_Timeout(t *testing.T) {
	t.Parallel()

	mock := testutil.NewMockUpstream()
	defer mock.Close()

	slow := testutil.NewChartResponse("SLOW", 10)
	slow.Delay = 2 * time.Second
	mock.SetResponse("SLOW", slow)

	y := source.NewYahoo(source.WithBaseURL(mock.URL()), source.WithTimeout(50*time.Millisecond))

	start := time.Now()
	_, err := y.Fetch(context.Background(), "SLOW")
	require.Error(t, err)
	assert.Equal(t, source.ErrorClassNetwork, source.Classify(err))
	assert.Less(t, time.Since(start), time.Second)
}

func TestFunc(t *testing.T) {
	t.Parallel()

	var s source.Source = source.Func(func(_ context.Context, key string) (float64, error) {
		return float64(len(key)), nil
	})

	v, err := s.Fetch(context.Background(), "USD_KRW")
	require.NoError(t, err)
	assert.Equal(t, 7.0, v)
}

func TestValidateQuote(t *testing.T) {
	t.Parallel()

	assert.NoError(t, source.ValidateQuote(0.000687))
	assert.ErrorIs(t, source.ValidateQuote(0), source.ErrInvalidQuote)
	assert.ErrorIs(t, source.ValidateQuote(-1), source.ErrInvalidQuote)
}
