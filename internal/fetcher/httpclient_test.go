package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"rankfetcher/internal/identifier"
	"rankfetcher/internal/request"
)

func buildDescriptor(t *testing.T, baseURL, code string, creds request.Credentials) request.Descriptor {
	t.Helper()
	id, err := identifier.Parse(code)
	if err != nil {
		t.Fatalf("Parse() returned unexpected error: %v", err)
	}
	d, err := request.NewBuilder(request.Options{BaseURL: baseURL, Version: "1.7.44", Credentials: creds}).Build(id)
	if err != nil {
		t.Fatalf("Build() returned unexpected error: %v", err)
	}
	return d
}

func TestRestyTransport_Do(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/gf_rank/SHSE:603001" {
			t.Errorf("path = %q, want /gf_rank/SHSE:603001", r.URL.Path)
		}
		if r.URL.Query().Get("v") != "1.7.44" {
			t.Errorf("v = %q, want 1.7.44", r.URL.Query().Get("v"))
		}
		if got := r.Header.Get("Authorization"); got != "token-1" {
			t.Errorf("authorization = %q, want token-1", got)
		}
		if got := r.Header.Get("Signature"); got != "sig-1" {
			t.Errorf("signature = %q, want sig-1", got)
		}
		if c, err := r.Cookie("session"); err != nil || c.Value != "abc" {
			t.Errorf("session cookie = %v, %v; want abc", c, err)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"rank": 95}`))
	})

	server := httptest.NewServer(handler)
	defer server.Close()

	transport := NewRestyTransport(NewHTTPClient(ClientOptions{VerifyTLS: true, MaxIdleConns: 10}))
	defer transport.Close()

	d := buildDescriptor(t, server.URL+"/gf_rank", "603001", request.Credentials{
		Authorization: "token-1",
		Signature:     "sig-1",
		Cookie:        "session=abc",
	})

	resp, err := transport.Do(context.Background(), d)
	if err != nil {
		t.Fatalf("Do() returned unexpected error: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if string(resp.Body) != `{"rank": 95}` {
		t.Errorf("Body = %q", resp.Body)
	}
}

func TestRestyTransport_DoesNotRetry(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	transport := NewRestyTransport(NewHTTPClient(ClientOptions{VerifyTLS: true, MaxIdleConns: 10}))
	defer transport.Close()

	resp, err := transport.Do(context.Background(), buildDescriptor(t, server.URL, "603001", request.Credentials{}))
	if err != nil {
		t.Fatalf("Do() returned unexpected error: %v", err)
	}
	if resp.StatusCode != 503 {
		t.Errorf("StatusCode = %d, want 503", resp.StatusCode)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server saw %d requests, want 1", got)
	}
}

func TestRestyTransport_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	transport := NewRestyTransport(NewHTTPClient(ClientOptions{VerifyTLS: true, MaxIdleConns: 10}))
	defer transport.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := transport.Do(ctx, buildDescriptor(t, server.URL, "603001", request.Credentials{}))
	verdict, fetchErr := Classify(nil, err)
	if verdict != VerdictRetry || fetchErr.Type != ErrorTypeTimeout {
		t.Errorf("Classify() = %v %v, want retryable timeout", verdict, fetchErr)
	}
}

func TestRestyTransport_VerifyTLS(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"rank": 95}`))
	}))
	defer server.Close()

	d := buildDescriptor(t, server.URL, "603001", request.Credentials{})

	strict := NewRestyTransport(NewHTTPClient(ClientOptions{VerifyTLS: true, MaxIdleConns: 10}))
	defer strict.Close()
	if _, err := strict.Do(context.Background(), d); err == nil {
		t.Error("Do() with verification expected a certificate error, got nil")
	}

	insecure := NewRestyTransport(NewHTTPClient(ClientOptions{VerifyTLS: false, MaxIdleConns: 10}))
	defer insecure.Close()
	resp, err := insecure.Do(context.Background(), d)
	if err != nil {
		t.Fatalf("Do() without verification returned unexpected error: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
}
