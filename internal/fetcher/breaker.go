package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"rankfetcher/internal/request"
)

// errTransientStatus marks a retryable status so the breaker counts it as a failure
// while the response itself still reaches the classifier.
var errTransientStatus = errors.New("transient status")

// BreakerTransport stops calling the remote API after a run of consecutive
// transient failures. While open, attempts fail fast with a retryable network
// error, so the retry loop backs off instead of hammering the API.
type BreakerTransport struct {
	next Transport
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerTransport wraps next with a breaker that opens after failures
// consecutive transient failures and probes again after cooldown.
func NewBreakerTransport(next Transport, failures int, cooldown time.Duration, logger *slog.Logger) *BreakerTransport {
	if logger == nil {
		logger = slog.Default()
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "rank-api",
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(failures)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String())
		},
	})

	return &BreakerTransport{next: next, cb: cb}
}

// Do implements Transport
func (t *BreakerTransport) Do(ctx context.Context, d request.Descriptor) (*Response, error) {
	result, err := t.cb.Execute(func() (interface{}, error) {
		resp, err := t.next.Do(ctx, d)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != 200 && ClassifyHTTPError(resp.StatusCode).Retryable {
			return resp, errTransientStatus
		}
		return resp, nil
	})

	switch {
	case errors.Is(err, errTransientStatus):
		return result.(*Response), nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, fmt.Errorf("circuit breaker %s: %w", t.cb.Name(), err)
	case err != nil:
		return nil, err
	}
	return result.(*Response), nil
}

// State returns the breaker state
func (t *BreakerTransport) State() gobreaker.State {
	return t.cb.State()
}
