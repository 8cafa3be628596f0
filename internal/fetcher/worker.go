package fetcher

import (
	"context"
	"log/slog"
	"time"

	"rankfetcher/internal/identifier"
	"rankfetcher/internal/metrics"
	"rankfetcher/internal/rankapi"
	"rankfetcher/internal/ratelimit"
	"rankfetcher/internal/request"
)

const defaultRequestTimeout = 15 * time.Second

// Options configures a Worker. Transport and Builder are required.
type Options struct {
	Transport Transport
	Builder   *request.Builder
	Policy    RetryPolicy
	Filter    Filter

	// Timeout bounds each attempt; defaults to 15s
	Timeout time.Duration

	Limiter *ratelimit.Limiter
	Metrics *metrics.Metrics
	Logger  *slog.Logger

	// Sleep and Now default to real time; tests replace them
	Sleep SleepFunc
	Now   func() time.Time
}

// Worker fetches one identifier at a time with retry and backoff. A Worker is
// stateless between calls and is shared by all scheduler goroutines.
type Worker struct {
	transport Transport
	builder   *request.Builder
	policy    RetryPolicy
	filter    Filter
	timeout   time.Duration
	limiter   *ratelimit.Limiter
	metrics   *metrics.Metrics
	logger    *slog.Logger
	sleep     SleepFunc
	now       func() time.Time
}

// NewWorker creates a Worker
func NewWorker(opts Options) *Worker {
	w := &Worker{
		transport: opts.Transport,
		builder:   opts.Builder,
		policy:    opts.Policy,
		filter:    opts.Filter,
		timeout:   opts.Timeout,
		limiter:   opts.Limiter,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		sleep:     opts.Sleep,
		now:       opts.Now,
	}
	if w.timeout <= 0 {
		w.timeout = defaultRequestTimeout
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	if w.sleep == nil {
		w.sleep = sleepContext
	}
	if w.now == nil {
		w.now = time.Now
	}
	return w
}

// Fetch runs the retry loop for id and returns its terminal outcome.
//
// Cancellation of ctx stops the loop before the next attempt or during a
// backoff sleep. An attempt already on the wire is not interrupted: it runs
// until it completes or hits the per-attempt timeout.
func (w *Worker) Fetch(ctx context.Context, id identifier.Identifier) Outcome {
	desc, err := w.builder.Build(id)
	if err != nil {
		w.logger.Warn("cannot build request", "code", id.Code, "error", err)
		return Failed(id, id.Market, NewUnknownMarketError(err), nil)
	}

	log := w.logger.With("code", id.Code, "market", desc.Market.String())
	bo := w.policy.NewBackOff()
	var attempts []AttemptRecord

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return Failed(id, desc.Market, NewCanceledError(err), attempts)
		}
		if err := w.limiter.Wait(ctx, desc.URL); err != nil {
			return Failed(id, desc.Market, NewCanceledError(err), attempts)
		}

		resp, record, verdict, fetchErr := w.attempt(ctx, desc, attempt)
		attempts = append(attempts, record)

		switch verdict {
		case VerdictAccept:
			return w.accept(desc, resp, attempts)
		case VerdictTerminal:
			log.Debug("terminal failure", "attempt", attempt, "error", fetchErr)
			return Failed(id, desc.Market, fetchErr, attempts)
		}

		if attempt > w.policy.Retries {
			log.Debug("retries exhausted", "attempts", attempt, "error", fetchErr)
			return Failed(id, desc.Market, NewExhaustedError(attempt, fetchErr), attempts)
		}

		delay := bo.NextBackOff()
		log.Debug("retrying request",
			"attempt", attempt,
			"delay", delay,
			"error", fetchErr)
		w.metrics.IncBackoff()

		if err := w.sleep(ctx, delay); err != nil {
			return Failed(id, desc.Market, NewCanceledError(err), attempts)
		}
	}
}

// attempt issues one request. The request context is detached from ctx's
// cancellation and bounded only by the per-attempt timeout.
func (w *Worker) attempt(ctx context.Context, desc request.Descriptor, number int) (*Response, AttemptRecord, Verdict, *FetchError) {
	attemptCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.timeout)
	defer cancel()

	done := w.metrics.TrackInFlight()
	start := w.now()
	resp, err := w.transport.Do(attemptCtx, desc)
	elapsed := w.now().Sub(start)
	done()

	verdict, fetchErr := Classify(resp, err)

	record := AttemptRecord{
		Code:      desc.Identifier.Code,
		Number:    number,
		StartedAt: start,
		Duration:  elapsed,
		Result:    "ok",
	}
	if resp != nil {
		record.StatusCode = resp.StatusCode
	}
	if fetchErr != nil {
		record.Result = string(fetchErr.Type)
	}

	label := record.Result
	if resp != nil {
		label = metrics.StatusLabel(resp.StatusCode)
	}
	w.metrics.ObserveAttempt(label, elapsed)

	return resp, record, verdict, fetchErr
}

// accept decodes a 200 body and applies the rank filter. Decode failures are
// terminal: the same body would come back on retry.
func (w *Worker) accept(desc request.Descriptor, resp *Response, attempts []AttemptRecord) Outcome {
	id := desc.Identifier

	payload, err := rankapi.Decode(resp.Body)
	if err != nil {
		attempts[len(attempts)-1].Result = string(ErrorTypeDecode)
		return Failed(id, desc.Market, NewDecodeError(err), attempts)
	}

	if ok, reason := w.filter.Accept(payload); !ok {
		return Skipped(id, desc.Market, payload, reason, attempts)
	}
	return Success(id, desc.Market, payload, attempts)
}
