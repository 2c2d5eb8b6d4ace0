package source

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrInvalidQuote is returned when an upstream response parsed successfully
// but did not carry a usable (positive, finite) value.
var ErrInvalidQuote = errors.New("invalid quote value")

// ErrorClass represents a classification of upstream failures.
type ErrorClass string

const (
	// ErrorClassNone is used when no error was observed.
	ErrorClassNone ErrorClass = ""

	// ErrorClassClient represents 4xx client errors other than 429.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassMalformed represents a response that could not be turned into a quote.
	ErrorClassMalformed ErrorClass = "malformed"

	// ErrorClassCooldown marks a fetch that was never sent because an
	// upstream cooldown was open. No response was observed for the key.
	ErrorClassCooldown ErrorClass = "cooldown"
)

// UpstreamError is the typed failure returned by every Source.
type UpstreamError struct {
	Key        string
	Class      ErrorClass
	StatusCode int
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream %s error for %s (status %d): %s: %v",
			e.Class, e.Key, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("upstream %s error for %s (status %d): %s",
		e.Class, e.Key, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt within the same call may succeed.
func (c ErrorClass) Retryable() bool {
	switch c {
	case ErrorClassServer, ErrorClassNetwork:
		return true
	default:
		// client errors and malformed payloads will not fix themselves;
		// rate limits are throttled by the cache, not by retrying.
		return false
	}
}

// ClassForStatus maps an HTTP status code to an error class.
// Returns ErrorClassNone for non-error status codes.
func ClassForStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 500:
		return ErrorClassServer
	case status >= 400:
		return ErrorClassClient
	default:
		return ErrorClassNone
	}
}

// Classify extracts the error class of err. Untyped errors are treated as
// network failures, which keeps them retryable.
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorClassNone
	}

	var upErr *UpstreamError
	if errors.As(err, &upErr) {
		return upErr.Class
	}

	if errors.Is(err, ErrInvalidQuote) {
		return ErrorClassMalformed
	}

	return ErrorClassNetwork
}

// IsRateLimited reports whether err signals upstream rate limiting.
func IsRateLimited(err error) bool {
	return Classify(err) == ErrorClassRateLimit
}
