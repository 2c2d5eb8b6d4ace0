package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultYahooBaseURL is the public Yahoo Finance query host.
	DefaultYahooBaseURL = "https://query1.finance.yahoo.com"

	// DefaultUserAgent is sent with every request. Yahoo answers 403/429 far
	// more often when no browser-like User-Agent is present.
	DefaultUserAgent = "Mozilla/5.0 (quote-cache/1.0)"

	// DefaultTimeout bounds a single upstream call.
	DefaultTimeout = 10 * time.Second

	maxBodyBytes = 1 << 20
)

// Prometheus metrics for upstream calls.
var (
	upstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quote_upstream_requests_total",
		Help: "Total upstream quote requests by source and outcome",
	}, []string{"source", "outcome"})

	upstreamRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "quote_upstream_request_duration_seconds",
		Help:    "Upstream quote request duration in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"source"})
)

// HTTPClient describes an HTTP client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Yahoo fetches quotes from the Yahoo Finance v8 chart endpoint.
type Yahoo struct {
	// baseURL is the scheme and host requests are sent to.
	baseURL string
	// httpClient executes requests.
	httpClient HTTPClient
	// userAgent is sent as the User-Agent header.
	userAgent string
	// header contains additional headers to be sent with each request.
	header http.Header
	// timeout bounds each Fetch call.
	timeout time.Duration
	logger  zerolog.Logger
}

// YahooOption is a configuration option for the Yahoo source.
type YahooOption func(*Yahoo)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) YahooOption {
	return func(y *Yahoo) {
		y.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient HTTPClient) YahooOption {
	return func(y *Yahoo) {
		y.httpClient = httpClient
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(userAgent string) YahooOption {
	return func(y *Yahoo) {
		y.userAgent = userAgent
	}
}

// WithHeader sets additional headers to be sent with each request.
func WithHeader(header http.Header) YahooOption {
	return func(y *Yahoo) {
		for key, values := range header {
			for _, value := range values {
				y.header.Add(key, value)
			}
		}
	}
}

// WithTimeout sets the per-call timeout. Non-positive values are ignored.
func WithTimeout(timeout time.Duration) YahooOption {
	return func(y *Yahoo) {
		if timeout > 0 {
			y.timeout = timeout
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) YahooOption {
	return func(y *Yahoo) {
		y.logger = logger
	}
}

// NewYahoo creates a Yahoo chart API source.
func NewYahoo(options ...YahooOption) *Yahoo {
	y := &Yahoo{
		baseURL:    DefaultYahooBaseURL,
		httpClient: http.DefaultClient,
		userAgent:  DefaultUserAgent,
		header:     http.Header{},
		timeout:    DefaultTimeout,
		logger:     log.With().Str("component", "yahoo-source").Logger(),
	}
	for _, option := range options {
		option(y)
	}
	return y
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency           string  `json:"currency"`
				Symbol             string  `json:"symbol"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				PreviousClose      float64 `json:"previousClose"`
			} `json:"meta"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Symbol maps a lookup key to a Yahoo symbol. Currency pair keys of the
// form "USD_KRW" become "USDKRW=X"; anything else is used as a ticker.
func Symbol(key string) string {
	from, to, ok := strings.Cut(key, "_")
	if ok && len(from) == 3 && len(to) == 3 {
		return strings.ToUpper(from + to + "=X")
	}
	return key
}

// Fetch implements Source.
func (y *Yahoo) Fetch(ctx context.Context, key string) (float64, error) {
	start := time.Now()
	defer func() {
		upstreamRequestDuration.WithLabelValues("yahoo").Observe(time.Since(start).Seconds())
	}()

	price, err := y.fetch(ctx, key)
	if err != nil {
		upstreamRequestsTotal.WithLabelValues("yahoo", string(Classify(err))).Inc()
		y.logger.Debug().Err(err).Str("key", key).Msg("Upstream fetch failed")
		return 0, err
	}

	upstreamRequestsTotal.WithLabelValues("yahoo", "ok").Inc()
	return price, nil
}

func (y *Yahoo) fetch(ctx context.Context, key string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, y.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&range=1d",
		y.baseURL, url.PathEscape(Symbol(key)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, &UpstreamError{Key: key, Class: ErrorClassClient, Message: "create request", Err: err}
	}
	for k, values := range y.header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("User-Agent", y.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := y.httpClient.Do(req)
	if err != nil {
		return 0, &UpstreamError{Key: key, Class: ErrorClassNetwork, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return 0, &UpstreamError{Key: key, Class: ErrorClassNetwork, StatusCode: resp.StatusCode, Message: "read body", Err: err}
	}

	if class := ClassForStatus(resp.StatusCode); class != ErrorClassNone {
		return 0, &UpstreamError{Key: key, Class: class, StatusCode: resp.StatusCode, Message: resp.Status}
	}

	// The edge proxy sometimes answers 200 with a plain-text throttle notice.
	if strings.HasPrefix(string(body), "Edge: Too Many Requests") {
		return 0, &UpstreamError{Key: key, Class: ErrorClassRateLimit, StatusCode: http.StatusTooManyRequests, Message: "edge throttle"}
	}

	var chart chartResponse
	if err := json.Unmarshal(body, &chart); err != nil {
		return 0, &UpstreamError{Key: key, Class: ErrorClassMalformed, StatusCode: resp.StatusCode, Message: "decode chart", Err: err}
	}
	if chart.Chart.Error != nil {
		return 0, &UpstreamError{
			Key:        key,
			Class:      ErrorClassMalformed,
			StatusCode: resp.StatusCode,
			Message:    chart.Chart.Error.Code + ": " + chart.Chart.Error.Description,
		}
	}
	if len(chart.Chart.Result) == 0 {
		return 0, &UpstreamError{Key: key, Class: ErrorClassMalformed, StatusCode: resp.StatusCode, Message: "empty chart result"}
	}

	price := chart.Chart.Result[0].Meta.RegularMarketPrice
	if err := ValidateQuote(price); err != nil {
		return 0, &UpstreamError{
			Key:        key,
			Class:      ErrorClassMalformed,
			StatusCode: resp.StatusCode,
			Message:    "regularMarketPrice=" + strconv.FormatFloat(price, 'g', -1, 64),
			Err:        err,
		}
	}

	return price, nil
}

// ValidateQuote returns ErrInvalidQuote unless v is positive and finite.
func ValidateQuote(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return ErrInvalidQuote
	}
	return nil
}
