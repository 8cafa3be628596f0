package fetcher_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"rankfetcher/internal/fetcher"
	"rankfetcher/internal/request"
	"rankfetcher/internal/testutil"
)

const testFactor = 500 * time.Millisecond

func newWorker(transport fetcher.Transport, sleeper *testutil.SleepRecorder, retries int) *fetcher.Worker {
	return fetcher.NewWorker(fetcher.Options{
		Transport: transport,
		Builder:   request.NewBuilder(request.Options{BaseURL: "https://example.test/gf_rank", Version: "1.7.44"}),
		Policy:    fetcher.RetryPolicy{Retries: retries, BackoffFactor: testFactor},
		Filter:    fetcher.Filter{Threshold: 90},
		Timeout:   time.Second,
		Sleep:     sleeper.Sleep,
	})
}

func TestWorker_RetriesTransientThenSucceeds(t *testing.T) {
	transport := testutil.NewFakeTransport(testutil.Status(404)).
		Script("603005",
			testutil.Status(503),
			testutil.Status(503),
			testutil.Status(503),
			testutil.Rank(100))
	sleeper := testutil.NewSleepRecorder()
	w := newWorker(transport, sleeper, 3)

	out := w.Fetch(context.Background(), testutil.MustParse("603005"))

	if out.Status != fetcher.StatusSuccess {
		t.Fatalf("Status = %v, want success (err: %v)", out.Status, out.Err)
	}
	if out.AttemptCount() != 4 {
		t.Errorf("AttemptCount() = %d, want 4", out.AttemptCount())
	}
	if got := transport.Calls("603005"); got != 4 {
		t.Errorf("transport calls = %d, want 4", got)
	}

	delays := sleeper.Delays()
	want := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("backoff sleeps = %v, want %v", delays, want)
	}
	policy := fetcher.RetryPolicy{Retries: 3, BackoffFactor: testFactor}
	for i, d := range delays {
		if d != want[i] {
			t.Errorf("sleep[%d] = %v, want %v", i, d, want[i])
		}
		// Sleep i precedes attempt i+2.
		if d != policy.Delay(i+2) {
			t.Errorf("sleep[%d] = %v, want policy.Delay(%d) = %v", i, d, i+2, policy.Delay(i+2))
		}
	}

	for i, rec := range out.Attempts {
		if rec.Number != i+1 {
			t.Errorf("Attempts[%d].Number = %d, want %d", i, rec.Number, i+1)
		}
	}
	if out.Attempts[0].StatusCode != 503 || out.Attempts[0].Result != string(fetcher.ErrorTypeServer) {
		t.Errorf("Attempts[0] = %+v, want a 503 server failure", out.Attempts[0])
	}
	if out.Attempts[3].Result != "ok" {
		t.Errorf("Attempts[3].Result = %q, want ok", out.Attempts[3].Result)
	}
}

func TestWorker_NonRetryableStatusShortCircuits(t *testing.T) {
	transport := testutil.NewFakeTransport(testutil.Status(404))
	sleeper := testutil.NewSleepRecorder()
	w := newWorker(transport, sleeper, 3)

	out := w.Fetch(context.Background(), testutil.MustParse("603001"))

	if out.Status != fetcher.StatusFailed {
		t.Fatalf("Status = %v, want failed", out.Status)
	}
	if out.Err.Type != fetcher.ErrorTypeHTTP || out.Err.StatusCode != 404 {
		t.Errorf("Err = %v, want http error with status 404", out.Err)
	}
	if out.AttemptCount() != 1 {
		t.Errorf("AttemptCount() = %d, want 1", out.AttemptCount())
	}
	if len(sleeper.Delays()) != 0 {
		t.Errorf("expected no backoff sleeps, got %v", sleeper.Delays())
	}
}

func TestWorker_ExhaustsRetries(t *testing.T) {
	tests := []struct {
		name    string
		retries int
		reply   testutil.Reply
		status  int
	}{
		{"503 with 3 retries", 3, testutil.Status(503), 503},
		{"429 with 1 retry", 1, testutil.Status(429), 429},
		{"network error with no retries", 0, testutil.Reply{Err: errors.New("connection reset by peer")}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := testutil.NewFakeTransport(tt.reply)
			sleeper := testutil.NewSleepRecorder()
			w := newWorker(transport, sleeper, tt.retries)

			out := w.Fetch(context.Background(), testutil.MustParse("603001"))

			if out.Status != fetcher.StatusFailed || out.Err.Type != fetcher.ErrorTypeExhausted {
				t.Fatalf("outcome = %v %v, want exhausted failure", out.Status, out.Err)
			}
			if out.AttemptCount() != tt.retries+1 {
				t.Errorf("AttemptCount() = %d, want %d", out.AttemptCount(), tt.retries+1)
			}
			if len(sleeper.Delays()) != tt.retries {
				t.Errorf("backoff sleeps = %d, want %d", len(sleeper.Delays()), tt.retries)
			}
			if out.Err.StatusCode != tt.status {
				t.Errorf("Err.StatusCode = %d, want %d", out.Err.StatusCode, tt.status)
			}
			var last *fetcher.FetchError
			if !errors.As(out.Err.Unwrap(), &last) || !last.Retryable {
				t.Errorf("exhausted error should wrap the last transient error, got %v", out.Err.Unwrap())
			}
		})
	}
}

func TestWorker_DecodeErrorIsTerminal(t *testing.T) {
	transport := testutil.NewFakeTransport(testutil.JSON(`<html><title>Just a moment...</title></html>`))
	sleeper := testutil.NewSleepRecorder()
	w := newWorker(transport, sleeper, 3)

	out := w.Fetch(context.Background(), testutil.MustParse("603001"))

	if out.Status != fetcher.StatusFailed || out.Err.Type != fetcher.ErrorTypeDecode {
		t.Fatalf("outcome = %v %v, want decode failure", out.Status, out.Err)
	}
	if out.AttemptCount() != 1 {
		t.Errorf("AttemptCount() = %d, want 1", out.AttemptCount())
	}
	if out.Attempts[0].Result != string(fetcher.ErrorTypeDecode) {
		t.Errorf("Attempts[0].Result = %q, want decode", out.Attempts[0].Result)
	}
}

func TestWorker_RankFilter(t *testing.T) {
	tests := []struct {
		name       string
		reply      testutil.Reply
		wantStatus fetcher.Status
		wantReason string
	}{
		{"below threshold", testutil.Rank(50), fetcher.StatusSkipped, "low rank 50"},
		{"just below", testutil.Rank(89), fetcher.StatusSkipped, "low rank 89"},
		{"at threshold", testutil.Rank(90), fetcher.StatusSuccess, ""},
		{"above threshold", testutil.Rank(95), fetcher.StatusSuccess, ""},
		{"no rank", testutil.JSON(`{"name": "x"}`), fetcher.StatusSuccess, ""},
		{"fractional below", testutil.JSON(`{"rank": 89.5}`), fetcher.StatusSkipped, "low rank 89.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newWorker(testutil.NewFakeTransport(tt.reply), testutil.NewSleepRecorder(), 3)

			out := w.Fetch(context.Background(), testutil.MustParse("603001"))

			if out.Status != tt.wantStatus {
				t.Fatalf("Status = %v, want %v (err: %v)", out.Status, tt.wantStatus, out.Err)
			}
			if out.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", out.Reason, tt.wantReason)
			}
			if out.Payload == nil {
				t.Error("Payload is nil")
			}
		})
	}
}

func TestWorker_TimeoutIsRetried(t *testing.T) {
	transport := testutil.NewFakeTransport(testutil.Rank(95)).
		Script("603001",
			testutil.Reply{Status: 200, Body: `{"rank": 95}`, Delay: time.Second},
			testutil.Rank(95))
	sleeper := testutil.NewSleepRecorder()
	w := fetcher.NewWorker(fetcher.Options{
		Transport: transport,
		Builder:   request.NewBuilder(request.Options{BaseURL: "https://example.test"}),
		Policy:    fetcher.RetryPolicy{Retries: 3, BackoffFactor: testFactor},
		Filter:    fetcher.Filter{Threshold: 90},
		Timeout:   20 * time.Millisecond,
		Sleep:     sleeper.Sleep,
	})

	out := w.Fetch(context.Background(), testutil.MustParse("603001"))

	if out.Status != fetcher.StatusSuccess {
		t.Fatalf("Status = %v, want success (err: %v)", out.Status, out.Err)
	}
	if out.AttemptCount() != 2 {
		t.Fatalf("AttemptCount() = %d, want 2", out.AttemptCount())
	}
	if out.Attempts[0].Result != string(fetcher.ErrorTypeTimeout) {
		t.Errorf("Attempts[0].Result = %q, want timeout", out.Attempts[0].Result)
	}
}

func TestWorker_UnknownMarketStrict(t *testing.T) {
	transport := testutil.NewFakeTransport(testutil.Rank(95))
	w := newWorker(transport, testutil.NewSleepRecorder(), 3)

	out := w.Fetch(context.Background(), testutil.MustParse("830799"))

	if out.Status != fetcher.StatusFailed || out.Err.Type != fetcher.ErrorTypeUnknownMarket {
		t.Fatalf("outcome = %v %v, want unknown_market failure", out.Status, out.Err)
	}
	if out.AttemptCount() != 0 || transport.TotalCalls() != 0 {
		t.Errorf("unknown market should never reach the transport")
	}
}

func TestWorker_CanceledBeforeStart(t *testing.T) {
	transport := testutil.NewFakeTransport(testutil.Rank(95))
	w := newWorker(transport, testutil.NewSleepRecorder(), 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := w.Fetch(ctx, testutil.MustParse("603001"))

	if out.Status != fetcher.StatusFailed || out.Err.Type != fetcher.ErrorTypeCanceled {
		t.Fatalf("outcome = %v %v, want canceled failure", out.Status, out.Err)
	}
	if transport.TotalCalls() != 0 {
		t.Errorf("transport calls = %d, want 0", transport.TotalCalls())
	}
}

func TestWorker_CanceledDuringBackoff(t *testing.T) {
	transport := testutil.NewFakeTransport(testutil.Status(503))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := fetcher.NewWorker(fetcher.Options{
		Transport: transport,
		Builder:   request.NewBuilder(request.Options{BaseURL: "https://example.test"}),
		Policy:    fetcher.RetryPolicy{Retries: 3, BackoffFactor: testFactor},
		Sleep: func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		},
	})

	out := w.Fetch(ctx, testutil.MustParse("603001"))

	if out.Status != fetcher.StatusFailed || out.Err.Type != fetcher.ErrorTypeCanceled {
		t.Fatalf("outcome = %v %v, want canceled failure", out.Status, out.Err)
	}
	if out.AttemptCount() != 1 {
		t.Errorf("AttemptCount() = %d, want 1", out.AttemptCount())
	}
}

func TestWorker_InFlightAttemptSurvivesCancel(t *testing.T) {
	transport := testutil.NewFakeTransport(testutil.Reply{Status: 200, Body: `{"rank": 95}`, Delay: 100 * time.Millisecond})
	w := newWorker(transport, testutil.NewSleepRecorder(), 3)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	out := w.Fetch(ctx, testutil.MustParse("603001"))

	if out.Status != fetcher.StatusSuccess {
		t.Errorf("Status = %v, want success: the attempt was already on the wire (err: %v)", out.Status, out.Err)
	}
}
