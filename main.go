package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"rankfetcher/internal/config"
	"rankfetcher/internal/logging"
	"rankfetcher/internal/metrics"
)

// exitInterrupted is the conventional status of a run stopped by SIGINT
const exitInterrupted = 130

// errInterrupted is returned after the summary of a canceled run
var errInterrupted = errors.New("run interrupted")

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "rankfetch",
	Short: "Fetch GF ranks for a batch of stock codes",
	Long: `rankfetch requests the GF rank of every stock code in a numeric range or a
code file, retries transient failures with exponential backoff and stores the
payloads of codes whose rank reaches the threshold.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runFetch,
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&cfgPath, "config", "", "config file (default is ./rankfetch.yaml or $HOME/.rankfetch/rankfetch.yaml)")

	f.Int("concurrency", 100, "maximum number of concurrent requests")
	f.Int("retries", 3, "retries per code after the first attempt")
	f.Float64("backoff-factor", 0.5, "backoff base in seconds; the delay before attempt k is factor*2^(k-1)")
	f.Float64("max-backoff", 300, "cap on a single backoff delay in seconds")
	f.Float64("backoff-jitter", 0, "randomization factor applied to backoff delays, in [0, 1)")
	f.Float64("request-timeout", 15, "per-attempt timeout in seconds")
	f.Float64("rate-limit", 0, "requests per second per host (0 disables pacing)")
	f.Int("rate-burst", 1, "burst allowed by the rate limiter")
	f.Int("breaker-failures", 0, "consecutive transient failures that open the circuit breaker (0 disables it)")

	f.Int("rank-threshold", 90, "minimum rank of an accepted payload")
	f.String("output-mode", config.OutputJSONL, "output mode: jsonl or files")
	f.String("output-dir", "out", "directory of per-code files")
	f.String("output-file", "output.jsonl", "append-only JSONL output")
	f.Bool("filename-with-market", false, "name per-code files <code>_<market>.json")
	f.String("high-rank-file", "rank_above_90.txt", "list of codes at or above the threshold")
	f.String("failed-file", "failed.txt", "list of failed codes with their error")

	f.String("source-file", "", "file with one code per line (overrides the range)")
	f.Int("range-start", 603001, "first code of the range")
	f.Int("range-end", 605600, "end of the range, exclusive")
	f.String("unknown-market", config.UnknownMarketStrict, "codes without a market: strict fails them, lenient queries SHSE")

	f.Bool("verify-tls", true, "verify the API certificate")
	f.String("api-base-url", "https://www.gurufocus.com/reader/_api/gf_rank", "rank API base URL")

	f.String("log-level", "info", "log level: debug, info, warn or error")
	f.String("log-file", "", "rotating JSON log file")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	f.Int("progress-every", 100, "log progress every N codes (0 disables it)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errInterrupted) {
			os.Exit(exitInterrupted)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func runFetch(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath, cmd.Flags())
	if err != nil {
		return err
	}

	logger, closer, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return &config.Error{Key: "log_level", Reason: "unusable logging setup", Err: err}
	}
	defer closer.Close()

	runID := uuid.NewString()
	logger = logger.With("run_id", runID)
	slog.SetDefault(logger)

	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The first signal stops new requests; a second one aborts immediately
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		sig := <-sigChan
		logger.Warn("received signal, finishing in-flight requests", "signal", sig.String())
		cancel()
		<-sigChan
		logger.Error("received second signal, aborting")
		os.Exit(exitInterrupted)
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if cfg.MetricsAddr != "" {
		metrics.Serve(ctx, cfg.MetricsAddr, reg, logger)
	}

	summary, err := run(ctx, cfg, runID, logger, reg)
	if err != nil {
		if errors.Is(err, config.ErrConfig) {
			logger.Error("configuration error", "error", err)
		}
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), summary.Summary())

	if ctx.Err() != nil {
		return errInterrupted
	}
	return nil
}
