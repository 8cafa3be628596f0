package coordinator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"

	"rankfetcher/internal/fetcher"
	"rankfetcher/internal/identifier"
)

// Scheduler fans identifiers out to at most a fixed number of concurrent
// fetches and streams their outcomes in completion order.
type Scheduler struct {
	fetcher fetcher.Fetcher
	workers int
	logger  *slog.Logger
}

// NewScheduler creates a Scheduler running at most workers fetches at once
func NewScheduler(f fetcher.Fetcher, workers int, logger *slog.Logger) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{fetcher: f, workers: workers, logger: logger}
}

// Run submits every identifier and returns the outcome stream. The channel
// yields exactly one outcome per identifier and is closed once all are done.
//
// After ctx is canceled no further fetch is started: the remaining
// identifiers are reported as canceled without touching the network.
func (s *Scheduler) Run(ctx context.Context, ids []identifier.Identifier) <-chan fetcher.Outcome {
	out := make(chan fetcher.Outcome, s.workers)

	go func() {
		defer close(out)

		p := pool.New().WithMaxGoroutines(s.workers)
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				out <- fetcher.Canceled(id, err)
				continue
			}
			p.Go(func() {
				out <- s.fetch(ctx, id)
			})
		}
		p.Wait()
	}()

	return out
}

// fetch runs one identifier, converting a panic into a failed outcome
func (s *Scheduler) fetch(ctx context.Context, id identifier.Identifier) fetcher.Outcome {
	if err := ctx.Err(); err != nil {
		return fetcher.Canceled(id, err)
	}

	var (
		outcome fetcher.Outcome
		pc      panics.Catcher
	)
	pc.Try(func() {
		outcome = s.fetcher.Fetch(ctx, id)
	})

	if r := pc.Recovered(); r != nil {
		s.logger.Error("fetch panicked", "code", id.Code, "panic", r.Value)
		return fetcher.Failed(id, id.Market, fetcher.NewPanicError(fmt.Errorf("%v", r.Value)), nil)
	}
	return outcome
}
