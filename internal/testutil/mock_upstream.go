// Package testutil provides testing utilities for the quote cache.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// chartPrefix is the path prefix of the Yahoo chart endpoint.
const chartPrefix = "/v8/finance/chart/"

// MockResponse defines the behavior for a mock upstream response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockUpstream is a configurable mock Yahoo chart server for testing.
type MockUpstream struct {
	server    *httptest.Server
	mu        sync.Mutex
	sequences map[string][]MockResponse
	requests  map[string]int

	// LastRequestHeader is the header of the most recent request.
	LastRequestHeader http.Header
}

// NewMockUpstream creates a new mock upstream server.
// Symbols without a configured response answer 404.
func NewMockUpstream() *MockUpstream {
	mock := &MockUpstream{
		sequences: make(map[string][]MockResponse),
		requests:  make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))
	return mock
}

// URL returns the mock server URL.
func (m *MockUpstream) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockUpstream) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockUpstream) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = make(map[string]int)
	m.LastRequestHeader = nil
}

// SetResponse configures a response returned for every request of symbol.
func (m *MockUpstream) SetResponse(symbol string, resp MockResponse) {
	m.SetSequence(symbol, resp)
}

// SetSequence configures responses returned in order for symbol. The last
// response repeats once the sequence is exhausted.
func (m *MockUpstream) SetSequence(symbol string, resps ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sequences[symbol] = resps
}

// SetQuote configures a healthy chart response with the given price.
func (m *MockUpstream) SetQuote(symbol string, price float64) {
	m.SetResponse(symbol, NewChartResponse(symbol, price))
}

// RequestCount returns the number of requests made for symbol.
func (m *MockUpstream) RequestCount(symbol string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[symbol]
}

// TotalRequests returns the number of requests made to the server.
func (m *MockUpstream) TotalRequests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.requests {
		total += n
	}
	return total
}

func (m *MockUpstream) handle(w http.ResponseWriter, r *http.Request) {
	symbol := strings.TrimPrefix(r.URL.Path, chartPrefix)

	m.mu.Lock()
	m.requests[symbol]++
	n := m.requests[symbol]
	m.LastRequestHeader = r.Header.Clone()
	seq := m.sequences[symbol]
	m.mu.Unlock()

	if !strings.HasPrefix(r.URL.Path, chartPrefix) || len(seq) == 0 {
		http.NotFound(w, r)
		return
	}

	idx := n - 1
	if idx >= len(seq) {
		idx = len(seq) - 1
	}
	resp := seq[idx]

	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-r.Context().Done():
			return
		}
	}

	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// NewChartResponse creates a 200 OK chart response carrying price.
func NewChartResponse(symbol string, price float64) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body: fmt.Sprintf(
			`{"chart":{"result":[{"meta":{"currency":"USD","symbol":%q,"regularMarketPrice":%g,"previousClose":%g}}],"error":null}}`,
			symbol, price, price),
		Headers: map[string]string{
			"Content-Type": "application/json;charset=utf-8",
		},
	}
}

// NewNotFoundChartResponse creates the chart error payload Yahoo returns
// for unknown symbols.
func NewNotFoundChartResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`,
		Headers: map[string]string{
			"Content-Type": "application/json;charset=utf-8",
		},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       "Too Many Requests",
		Headers: map[string]string{
			"Content-Type": "text/plain",
		},
	}
}

// NewEdgeThrottleResponse creates the plain-text throttle notice the edge
// proxy serves with a 200 status.
func NewEdgeThrottleResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       "Edge: Too Many Requests",
		Headers: map[string]string{
			"Content-Type": "text/plain",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers: map[string]string{
			"Content-Type": "application/json;charset=utf-8",
		},
	}
}
