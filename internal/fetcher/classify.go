package fetcher

import (
	"context"
	"errors"
	"net"
)

// Verdict is what the retry loop should do with an attempt.
type Verdict int

const (
	// VerdictAccept means the response is a 200 and its body should be decoded
	VerdictAccept Verdict = iota
	// VerdictRetry means the failure is transient and the attempt may be repeated
	VerdictRetry
	// VerdictTerminal means the failure is final for this identifier
	VerdictTerminal
)

// String returns the verdict name
func (v Verdict) String() string {
	switch v {
	case VerdictAccept:
		return "accept"
	case VerdictRetry:
		return "retry"
	default:
		return "terminal"
	}
}

// Classify maps the result of one attempt to a verdict. The returned error is
// nil only for VerdictAccept.
//
//   - transport timeout               -> retry (timeout)
//   - other transport error           -> retry (network)
//   - 200                             -> accept
//   - 429, 500, 502, 503, 504         -> retry (rate_limit / server)
//   - any other status                -> terminal (http)
func Classify(resp *Response, err error) (Verdict, *FetchError) {
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return VerdictTerminal, NewCanceledError(err)
		}
		if isTimeout(err) {
			return VerdictRetry, NewTimeoutError(err)
		}
		return VerdictRetry, NewNetworkError(err)
	}

	if resp == nil {
		return VerdictRetry, NewNetworkError(errors.New("no response"))
	}

	if resp.StatusCode == 200 {
		return VerdictAccept, nil
	}

	fetchErr := ClassifyHTTPError(resp.StatusCode)
	if fetchErr.Retryable {
		return VerdictRetry, fetchErr
	}
	return VerdictTerminal, fetchErr
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
