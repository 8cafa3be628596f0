package router

import (
	"errors"
	"log/slog"

	"rankfetcher/internal/fetcher"
)

// Options configures a Router. HighRank and Failed may be nil.
type Options struct {
	Sink     Sink
	HighRank *CodeList
	Failed   *CodeList
	Filter   fetcher.Filter
	Logger   *slog.Logger
}

// Router persists accepted payloads and records skipped and failed identifiers.
// It is driven by the single goroutine that consumes scheduler outcomes.
type Router struct {
	sink     Sink
	highRank *CodeList
	failed   *CodeList
	filter   fetcher.Filter
	logger   *slog.Logger
}

// New creates a Router
func New(opts Options) *Router {
	r := &Router{
		sink:     opts.Sink,
		highRank: opts.HighRank,
		failed:   opts.Failed,
		filter:   opts.Filter,
		logger:   opts.Logger,
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Route handles one terminal outcome and returns it, rewritten to a persist
// failure if the payload could not be saved. Route never fails: I/O errors are
// logged and reflected in the returned outcome.
func (r *Router) Route(o fetcher.Outcome) fetcher.Outcome {
	log := r.logger.With("code", o.Identifier.Code, "market", o.Market.String(), "attempts", o.AttemptCount())

	switch o.Status {
	case fetcher.StatusSuccess:
		if err := r.save(o); err != nil {
			o = fetcher.Failed(o.Identifier, o.Market, fetcher.NewPersistError(err), o.Attempts)
			log.Error("failed to persist payload", "error", err)
			r.recordFailure(o, log)
			return o
		}
		log.Info("saved")

		if r.filter.HighRank(o.Payload) {
			if err := r.highRank.Add(o.Identifier.Code); err != nil {
				log.Error("failed to record high-rank code", "error", err)
			}
		}

	case fetcher.StatusSkipped:
		log.Info("skipped", "reason", o.Reason)

	default:
		log.Warn("failed", "error_type", string(o.Err.Type), "error", o.Err)
		r.recordFailure(o, log)
	}

	return o
}

// save persists the payload, turning a panicking sink into an error
func (r *Router) save(o fetcher.Outcome) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.New("sink panicked")
			r.logger.Error("sink panicked", "code", o.Identifier.Code, "panic", p)
		}
	}()
	if o.Payload == nil {
		return errors.New("no payload")
	}
	return r.sink.Save(o.Identifier, o.Market, o.Payload.Raw)
}

func (r *Router) recordFailure(o fetcher.Outcome, log *slog.Logger) {
	if err := r.failed.Add(o.Identifier.Code, o.Market.String(), string(o.Err.Type), o.Err.Error()); err != nil {
		log.Error("failed to record failed code", "error", err)
	}
}

// Close flushes and closes the sink and lists
func (r *Router) Close() error {
	return errors.Join(r.sink.Close(), r.highRank.Close(), r.failed.Close())
}
