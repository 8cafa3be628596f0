package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors of one run. All methods are safe on a nil receiver,
// so components can be built without metrics in tests.
type Metrics struct {
	attempts        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	backoffs        prometheus.Counter
	outcomes        *prometheus.CounterVec
	inFlight        prometheus.Gauge
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rankfetch_attempts_total",
			Help: "Total number of request attempts by result",
		}, []string{"result"}),

		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rankfetch_request_duration_seconds",
			Help:    "Latency of a single request attempt",
			Buckets: prometheus.DefBuckets,
		}, []string{"result"}),

		backoffs: factory.NewCounter(prometheus.CounterOpts{
			Name: "rankfetch_backoffs_total",
			Help: "Total number of backoff sleeps before a retry",
		}),

		outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rankfetch_outcomes_total",
			Help: "Terminal outcomes by status and market",
		}, []string{"status", "market"}),

		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rankfetch_in_flight",
			Help: "Identifiers currently being fetched",
		}),
	}
}

// ObserveAttempt records one request attempt. result is an HTTP status code
// or, for transport failures, an error category.
func (m *Metrics) ObserveAttempt(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(result).Inc()
	m.requestDuration.WithLabelValues(result).Observe(d.Seconds())
}

// StatusLabel turns an HTTP status into an attempt result label.
func StatusLabel(code int) string {
	return strconv.Itoa(code)
}

// IncBackoff counts one backoff sleep.
func (m *Metrics) IncBackoff() {
	if m == nil {
		return
	}
	m.backoffs.Inc()
}

// IncOutcome counts one terminal outcome.
func (m *Metrics) IncOutcome(status, market string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(status, market).Inc()
}

// TrackInFlight increments the in-flight gauge and returns the matching decrement.
func (m *Metrics) TrackInFlight() func() {
	if m == nil {
		return func() {}
	}
	m.inFlight.Inc()
	return m.inFlight.Dec
}

// Serve exposes gatherer on addr at /metrics until ctx is done.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	go func() {
		logger.Info("metrics server listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()
}
