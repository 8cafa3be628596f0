package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"rankfetcher/internal/config"
	"rankfetcher/internal/coordinator"
	"rankfetcher/internal/fetcher"
	"rankfetcher/internal/identifier"
	"rankfetcher/internal/metrics"
	"rankfetcher/internal/ratelimit"
	"rankfetcher/internal/request"
	"rankfetcher/internal/router"
	"rankfetcher/internal/stats"
)

// run wires the pipeline from cfg and fetches every identifier of the
// configured source. Only configuration and output setup errors are returned;
// per-identifier failures end up in the statistics.
func run(ctx context.Context, cfg *config.Config, runID string, logger *slog.Logger, reg prometheus.Registerer) (stats.RunStatistics, error) {
	ids, err := identifier.FromConfig(cfg, logger).Produce()
	if err != nil {
		return stats.RunStatistics{}, err
	}

	var m *metrics.Metrics
	if reg != nil {
		m = metrics.New(reg)
	}

	client := fetcher.NewHTTPClient(fetcher.ClientOptions{
		VerifyTLS:       cfg.VerifyTLS,
		MaxIdleConns:    cfg.MaxIdleConns,
		MaxConnsPerHost: cfg.MaxConnsPerHost,
	})
	restyTransport := fetcher.NewRestyTransport(client)
	defer restyTransport.Close()

	var transport fetcher.Transport = restyTransport
	if cfg.BreakerFailures > 0 {
		transport = fetcher.NewBreakerTransport(transport, cfg.BreakerFailures, cfg.BreakerCooldownDuration(), logger)
	}

	filter := fetcher.Filter{Threshold: float64(cfg.RankThreshold)}

	worker := fetcher.NewWorker(fetcher.Options{
		Transport: transport,
		Builder: request.NewBuilder(request.Options{
			BaseURL: cfg.APIBaseURL,
			Version: cfg.APIVersion,
			Credentials: request.Credentials{
				Authorization: cfg.Authorization,
				Cookie:        cfg.Cookie,
				Signature:     cfg.Signature,
				UserAgent:     cfg.UserAgent,
			},
			Lenient: cfg.UnknownMarket == config.UnknownMarketLenient,
		}),
		Policy: fetcher.RetryPolicy{
			Retries:       cfg.Retries,
			BackoffFactor: cfg.BackoffFactorDuration(),
			MaxBackoff:    cfg.MaxBackoffDuration(),
			Jitter:        cfg.BackoffJitter,
		},
		Filter:  filter,
		Timeout: cfg.RequestTimeoutDuration(),
		Limiter: ratelimit.New(cfg.RateLimit, cfg.RateBurst),
		Metrics: m,
		Logger:  logger,
	})

	r, err := newRouter(cfg, filter, logger)
	if err != nil {
		return stats.RunStatistics{}, err
	}
	defer func() {
		if err := r.Close(); err != nil {
			logger.Error("failed to close outputs", "error", err)
		}
	}()

	reporter := stats.New(stats.Options{
		RunID:         runID,
		ProgressEvery: cfg.ProgressEvery,
		Metrics:       m,
		Logger:        logger,
	})

	coord := coordinator.New(
		coordinator.NewScheduler(worker, cfg.Concurrency, logger),
		r,
		reporter,
		logger,
	)
	return coord.Run(ctx, ids)
}

// newRouter opens the sink selected by output_mode and the outcome lists
func newRouter(cfg *config.Config, filter fetcher.Filter, logger *slog.Logger) (*router.Router, error) {
	var (
		sink router.Sink
		err  error
	)
	switch cfg.OutputMode {
	case config.OutputFiles:
		sink, err = router.NewFileSink(cfg.OutputDir, cfg.FilenameWithMarket)
	default:
		sink, err = router.NewLogSink(cfg.OutputFile)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open output: %w", err)
	}

	highRank, err := router.CreateCodeList(cfg.HighRankFile)
	if err != nil {
		sink.Close()
		return nil, err
	}
	failed, err := router.CreateCodeList(cfg.FailedFile)
	if err != nil {
		sink.Close()
		highRank.Close()
		return nil, err
	}

	return router.New(router.Options{
		Sink:     sink,
		HighRank: highRank,
		Failed:   failed,
		Filter:   filter,
		Logger:   logger,
	}), nil
}
