package fetcher

import (
	"fmt"
)

// ErrorType represents the category of error that ended (or interrupted) a fetch
type ErrorType string

const (
	// ErrorTypeNetwork indicates a network-level error (connection refused, DNS, reset, etc.)
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeTimeout indicates the attempt exceeded the request timeout
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeRateLimit indicates the request was rejected due to rate limiting (HTTP 429)
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeServer indicates a transient server error (HTTP 500, 502, 503, 504)
	ErrorTypeServer ErrorType = "server"
	// ErrorTypeHTTP indicates any other non-200 status
	ErrorTypeHTTP ErrorType = "http"
	// ErrorTypeDecode indicates a 200 response whose body could not be decoded
	ErrorTypeDecode ErrorType = "decode"
	// ErrorTypeExhausted indicates every allowed attempt ended in a transient error
	ErrorTypeExhausted ErrorType = "exhausted"
	// ErrorTypeUnknownMarket indicates the identifier maps to no exchange in strict mode
	ErrorTypeUnknownMarket ErrorType = "unknown_market"
	// ErrorTypeCanceled indicates the run was canceled before the identifier finished
	ErrorTypeCanceled ErrorType = "canceled"
	// ErrorTypePersist indicates the payload was fetched but could not be saved
	ErrorTypePersist ErrorType = "persist"
	// ErrorTypePanic indicates the worker panicked
	ErrorTypePanic ErrorType = "panic"
)

// FetchError represents a structured error from a fetch operation
type FetchError struct {
	Type       ErrorType
	Retryable  bool
	StatusCode int
	Message    string
	Cause      error
}

// Error implements the error interface
func (e *FetchError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s error (status %d): %s", e.Type, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s error: %s", e.Type, msg)
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *FetchError) Unwrap() error {
	return e.Cause
}

// NewNetworkError creates a network error
func NewNetworkError(cause error) *FetchError {
	return &FetchError{
		Type:      ErrorTypeNetwork,
		Retryable: true,
		Message:   "network request failed",
		Cause:     cause,
	}
}

// NewTimeoutError creates a timeout error
func NewTimeoutError(cause error) *FetchError {
	return &FetchError{
		Type:      ErrorTypeTimeout,
		Retryable: true,
		Message:   "request timed out",
		Cause:     cause,
	}
}

// NewRateLimitError creates a rate limit error
func NewRateLimitError(statusCode int) *FetchError {
	return &FetchError{
		Type:       ErrorTypeRateLimit,
		Retryable:  true,
		StatusCode: statusCode,
		Message:    "rate limit exceeded",
	}
}

// NewServerError creates a transient server error
func NewServerError(statusCode int) *FetchError {
	return &FetchError{
		Type:       ErrorTypeServer,
		Retryable:  true,
		StatusCode: statusCode,
		Message:    "server returned an error",
	}
}

// NewHTTPError creates a non-retryable status error
func NewHTTPError(statusCode int) *FetchError {
	return &FetchError{
		Type:       ErrorTypeHTTP,
		Retryable:  false,
		StatusCode: statusCode,
		Message:    fmt.Sprintf("unexpected status: HTTP %d", statusCode),
	}
}

// NewDecodeError creates a decode error
func NewDecodeError(cause error) *FetchError {
	return &FetchError{
		Type:       ErrorTypeDecode,
		Retryable:  false,
		StatusCode: 200,
		Message:    "malformed payload",
		Cause:      cause,
	}
}

// NewExhaustedError creates an error for a retry loop that ran out of attempts.
// last is the transient error of the final attempt.
func NewExhaustedError(attempts int, last *FetchError) *FetchError {
	e := &FetchError{
		Type:      ErrorTypeExhausted,
		Retryable: false,
		Message:   fmt.Sprintf("failed after %d attempts", attempts),
	}
	if last != nil {
		e.StatusCode = last.StatusCode
		e.Cause = last
	}
	return e
}

// NewUnknownMarketError creates an error for an identifier with no market
func NewUnknownMarketError(cause error) *FetchError {
	return &FetchError{
		Type:      ErrorTypeUnknownMarket,
		Retryable: false,
		Message:   "cannot derive market",
		Cause:     cause,
	}
}

// NewCanceledError creates an error for an identifier interrupted by cancellation
func NewCanceledError(cause error) *FetchError {
	return &FetchError{
		Type:      ErrorTypeCanceled,
		Retryable: false,
		Message:   "run canceled",
		Cause:     cause,
	}
}

// NewPersistError creates an error for a payload that could not be saved
func NewPersistError(cause error) *FetchError {
	return &FetchError{
		Type:      ErrorTypePersist,
		Retryable: false,
		Message:   "failed to persist payload",
		Cause:     cause,
	}
}

// NewPanicError creates an error for a recovered worker panic
func NewPanicError(cause error) *FetchError {
	return &FetchError{
		Type:      ErrorTypePanic,
		Retryable: false,
		Message:   "worker panicked",
		Cause:     cause,
	}
}

// ClassifyHTTPError classifies a non-200 HTTP status code into an appropriate FetchError.
// Only 429, 500, 502, 503 and 504 are retryable.
func ClassifyHTTPError(statusCode int) *FetchError {
	switch statusCode {
	case 429:
		return NewRateLimitError(statusCode)
	case 500, 502, 503, 504:
		return NewServerError(statusCode)
	default:
		return NewHTTPError(statusCode)
	}
}
