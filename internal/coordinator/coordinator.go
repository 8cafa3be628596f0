package coordinator

import (
	"context"
	"fmt"
	"log/slog"

	"rankfetcher/internal/identifier"
	"rankfetcher/internal/router"
	"rankfetcher/internal/stats"
)

// Coordinator drives one run: it schedules the fetches and feeds every
// outcome, in completion order, through the router and the stats reporter.
type Coordinator struct {
	scheduler *Scheduler
	router    *router.Router
	reporter  *stats.Reporter
	logger    *slog.Logger
}

// New creates a new Coordinator
func New(scheduler *Scheduler, r *router.Router, reporter *stats.Reporter, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		scheduler: scheduler,
		router:    r,
		reporter:  reporter,
		logger:    logger,
	}
}

// Run fetches every identifier and returns the final statistics.
//
// Per-identifier failures never abort the run. Cancellation of ctx stops new
// fetches, but Run still drains the stream and returns a summary covering
// every identifier.
func (c *Coordinator) Run(ctx context.Context, ids []identifier.Identifier) (stats.RunStatistics, error) {
	if len(ids) == 0 {
		return stats.RunStatistics{}, fmt.Errorf("no identifiers to fetch")
	}

	c.reporter.Begin(len(ids))
	canceledLogged := false

	for outcome := range c.scheduler.Run(ctx, ids) {
		if ctx.Err() != nil && !canceledLogged {
			c.logger.Warn("run canceled, draining in-flight requests")
			canceledLogged = true
		}
		routed := c.router.Route(outcome)
		c.reporter.Observe(routed)
	}

	return c.reporter.Finalize(), nil
}
