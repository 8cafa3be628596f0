package fetcher

import (
	"context"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds the retry loop. An identifier gets at most Retries+1
// attempts; the delay before attempt k (k >= 2) is BackoffFactor * 2^(k-1),
// capped at MaxBackoff and randomized by +/- Jitter.
type RetryPolicy struct {
	Retries       int
	BackoffFactor time.Duration
	MaxBackoff    time.Duration
	Jitter        float64
}

// MaxAttempts returns the attempt bound
func (p RetryPolicy) MaxAttempts() int {
	return p.Retries + 1
}

// NewBackOff returns a fresh schedule for one identifier's retry loop.
func (p RetryPolicy) NewBackOff() backoff.BackOff {
	maxInterval := p.MaxBackoff
	if maxInterval <= 0 {
		maxInterval = time.Duration(math.MaxInt64)
	}
	initial := 2 * p.BackoffFactor
	if initial > maxInterval {
		initial = maxInterval
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.Multiplier = 2
	b.RandomizationFactor = p.Jitter
	b.MaxInterval = maxInterval
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Delay returns the unrandomized delay before attempt k.
func (p RetryPolicy) Delay(k int) time.Duration {
	if k < 2 {
		return 0
	}
	d := float64(p.BackoffFactor) * math.Pow(2, float64(k-1))
	if p.MaxBackoff > 0 && d > float64(p.MaxBackoff) {
		return p.MaxBackoff
	}
	return time.Duration(d)
}

// SleepFunc pauses between attempts. It returns early with ctx's error on cancellation.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
