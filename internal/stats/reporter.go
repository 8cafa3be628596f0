package stats

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"rankfetcher/internal/fetcher"
	"rankfetcher/internal/metrics"
)

// MarketCounts breaks the terminal outcomes of one market down by status.
type MarketCounts struct {
	Succeeded int
	Skipped   int
	Failed    int
}

// Total returns the number of outcomes for the market
func (c MarketCounts) Total() int {
	return c.Succeeded + c.Skipped + c.Failed
}

// RunStatistics is the aggregate of one run. Total always equals
// Succeeded + Skipped + Failed.
type RunStatistics struct {
	RunID    string
	Expected int

	Total     int
	Succeeded int
	Skipped   int
	Failed    int

	ByMarket map[string]MarketCounts
	Failures map[fetcher.ErrorType]int

	AttemptSum  int
	Identifiers int

	StartedAt time.Time
	Elapsed   time.Duration
}

// MeanAttempts returns the attempt sum divided by the number of distinct identifiers
func (s RunStatistics) MeanAttempts() float64 {
	if s.Identifiers == 0 {
		return 0
	}
	return float64(s.AttemptSum) / float64(s.Identifiers)
}

// Summary renders the statistics as a human-readable block
func (s RunStatistics) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s: processed %d/%d in %s\n", s.RunID, s.Total, s.Expected, s.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(&b, "  succeeded: %d\n", s.Succeeded)
	fmt.Fprintf(&b, "  skipped:   %d\n", s.Skipped)
	fmt.Fprintf(&b, "  failed:    %d\n", s.Failed)
	fmt.Fprintf(&b, "  mean attempts: %.2f\n", s.MeanAttempts())

	for _, market := range slices.Sorted(maps.Keys(s.ByMarket)) {
		c := s.ByMarket[market]
		fmt.Fprintf(&b, "  %s: %d (succeeded %d, skipped %d, failed %d)\n",
			market, c.Total(), c.Succeeded, c.Skipped, c.Failed)
	}
	for _, t := range slices.Sorted(maps.Keys(s.Failures)) {
		fmt.Fprintf(&b, "  failed[%s]: %d\n", t, s.Failures[t])
	}
	return b.String()
}

func (s RunStatistics) clone() RunStatistics {
	s.ByMarket = maps.Clone(s.ByMarket)
	s.Failures = maps.Clone(s.Failures)
	return s
}

// Options configures a Reporter
type Options struct {
	RunID string

	// ProgressEvery logs a progress line every N outcomes; 0 disables it
	ProgressEvery int

	Metrics *metrics.Metrics
	Logger  *slog.Logger
	Now     func() time.Time
}

// Reporter aggregates outcomes into RunStatistics. It is owned by the single
// goroutine consuming the outcome stream and is not safe for concurrent use.
type Reporter struct {
	stats         RunStatistics
	seen          map[string]struct{}
	progressEvery int
	metrics       *metrics.Metrics
	logger        *slog.Logger
	now           func() time.Time
}

// New creates a Reporter
func New(opts Options) *Reporter {
	r := &Reporter{
		stats: RunStatistics{
			RunID:    opts.RunID,
			ByMarket: make(map[string]MarketCounts),
			Failures: make(map[fetcher.ErrorType]int),
		},
		seen:          make(map[string]struct{}),
		progressEvery: opts.ProgressEvery,
		metrics:       opts.Metrics,
		logger:        opts.Logger,
		now:           opts.Now,
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Begin records the number of identifiers submitted and starts the clock
func (r *Reporter) Begin(expected int) {
	r.stats.Expected = expected
	r.stats.StartedAt = r.now()
	r.logger.Info("run started", "identifiers", expected)
}

// Observe folds one terminal outcome into the statistics
func (r *Reporter) Observe(o fetcher.Outcome) {
	s := &r.stats
	market := o.Market.String()
	counts := s.ByMarket[market]

	s.Total++
	switch o.Status {
	case fetcher.StatusSuccess:
		s.Succeeded++
		counts.Succeeded++
	case fetcher.StatusSkipped:
		s.Skipped++
		counts.Skipped++
	default:
		s.Failed++
		counts.Failed++
		if o.Err != nil {
			s.Failures[o.Err.Type]++
		}
	}
	s.ByMarket[market] = counts

	s.AttemptSum += o.AttemptCount()
	if _, ok := r.seen[o.Identifier.Code]; !ok {
		r.seen[o.Identifier.Code] = struct{}{}
		s.Identifiers++
	}

	r.metrics.IncOutcome(o.Status.String(), market)

	if r.progressEvery > 0 && s.Total%r.progressEvery == 0 {
		r.logger.Info("progress",
			"processed", s.Total,
			"total", s.Expected,
			"succeeded", s.Succeeded,
			"skipped", s.Skipped,
			"failed", s.Failed)
	}
}

// Snapshot returns a copy of the current statistics
func (r *Reporter) Snapshot() RunStatistics {
	return r.stats.clone()
}

// Finalize stops the clock, logs the summary and returns the final statistics.
// Call it once, after the outcome stream is drained.
func (r *Reporter) Finalize() RunStatistics {
	if !r.stats.StartedAt.IsZero() {
		r.stats.Elapsed = r.now().Sub(r.stats.StartedAt)
	}

	s := r.stats
	r.logger.Info("run finished",
		"processed", s.Total,
		"expected", s.Expected,
		"succeeded", s.Succeeded,
		"skipped", s.Skipped,
		"failed", s.Failed,
		"mean_attempts", s.MeanAttempts(),
		"elapsed", s.Elapsed)
	if s.Total < s.Expected {
		r.logger.Warn("run incomplete", "missing", s.Expected-s.Total)
	}

	return r.stats.clone()
}
