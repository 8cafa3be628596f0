package fetcher

import (
	"fmt"
	"time"

	"rankfetcher/internal/identifier"
	"rankfetcher/internal/rankapi"
)

// Status is the terminal state of one identifier.
type Status int

const (
	// StatusSuccess means the payload passed the filter and should be persisted
	StatusSuccess Status = iota
	// StatusSkipped means the payload was fetched but rejected by the filter
	StatusSkipped
	// StatusFailed means no acceptable payload was obtained
	StatusFailed
)

// String returns the lowercase status name
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusSkipped:
		return "skipped"
	default:
		return "failed"
	}
}

// AttemptRecord describes one request attempt of one identifier.
type AttemptRecord struct {
	Code       string
	Number     int
	StartedAt  time.Time
	Duration   time.Duration
	StatusCode int

	// Result is "ok", or the error type of a failed attempt
	Result string
}

// Outcome is the terminal result for one identifier. It is sent from a worker
// goroutine to the single consumer that routes results and keeps statistics.
type Outcome struct {
	Identifier identifier.Identifier

	// Market is the market the request was issued against. It differs from
	// Identifier.Market only when an unknown market was mapped leniently.
	Market identifier.Market

	Status Status

	// Payload is set for StatusSuccess and StatusSkipped
	Payload *rankapi.Payload

	// Reason explains a skip
	Reason string

	// Err is set for StatusFailed
	Err *FetchError

	Attempts []AttemptRecord
}

// AttemptCount returns the number of request attempts made
func (o Outcome) AttemptCount() int {
	return len(o.Attempts)
}

// Success creates a success outcome
func Success(id identifier.Identifier, market identifier.Market, payload *rankapi.Payload, attempts []AttemptRecord) Outcome {
	return Outcome{Identifier: id, Market: market, Status: StatusSuccess, Payload: payload, Attempts: attempts}
}

// Skipped creates a skip outcome
func Skipped(id identifier.Identifier, market identifier.Market, payload *rankapi.Payload, reason string, attempts []AttemptRecord) Outcome {
	return Outcome{Identifier: id, Market: market, Status: StatusSkipped, Payload: payload, Reason: reason, Attempts: attempts}
}

// Failed creates a failure outcome
func Failed(id identifier.Identifier, market identifier.Market, err *FetchError, attempts []AttemptRecord) Outcome {
	return Outcome{Identifier: id, Market: market, Status: StatusFailed, Err: err, Attempts: attempts}
}

// Canceled creates the outcome of an identifier that was never started
func Canceled(id identifier.Identifier, cause error) Outcome {
	return Failed(id, id.Market, NewCanceledError(cause), nil)
}

// LowRankReason formats the skip reason for a rank under the threshold
func LowRankReason(rank float64) string {
	return fmt.Sprintf("low rank %g", rank)
}
