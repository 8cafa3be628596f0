package fetcher

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"net/http"
	"time"

	"resty.dev/v3"

	"rankfetcher/internal/request"
)

const (
	defaultDialTimeout         = 10 * time.Second
	defaultTLSHandshakeTimeout = 10 * time.Second
	defaultIdleConnTimeout     = 90 * time.Second
)

// ClientOptions configures the shared connection pool.
type ClientOptions struct {
	VerifyTLS bool

	// MaxIdleConns bounds idle connections in total and per host
	MaxIdleConns int

	// MaxConnsPerHost bounds dialing, active and idle connections per host; 0 means no limit
	MaxConnsPerHost int
}

// NewHTTPClient creates the resty client shared by all workers. Its own retry
// mechanism stays disabled: retries are driven by Worker so each attempt is
// classified, counted and backed off explicitly.
func NewHTTPClient(opts ClientOptions) *resty.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   defaultDialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        opts.MaxIdleConns,
		MaxIdleConnsPerHost: opts.MaxIdleConns,
		MaxConnsPerHost:     opts.MaxConnsPerHost,
		IdleConnTimeout:     defaultIdleConnTimeout,
		TLSHandshakeTimeout: defaultTLSHandshakeTimeout,
		ForceAttemptHTTP2:   true,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: !opts.VerifyTLS,
		},
	}

	if !opts.VerifyTLS {
		slog.Warn("TLS certificate verification is disabled")
	}

	return resty.NewWithClient(&http.Client{Transport: transport}).
		SetRetryCount(0)
}

// RestyTransport issues descriptor requests through a shared resty client.
type RestyTransport struct {
	client *resty.Client
}

// NewRestyTransport wraps client
func NewRestyTransport(client *resty.Client) *RestyTransport {
	return &RestyTransport{client: client}
}

// Do implements Transport
func (t *RestyTransport) Do(ctx context.Context, d request.Descriptor) (*Response, error) {
	req := t.client.R().
		SetContext(ctx).
		SetHeaders(d.Headers)

	if len(d.Cookies) > 0 {
		cookies := make([]*http.Cookie, 0, len(d.Cookies))
		for name, value := range d.Cookies {
			cookies = append(cookies, &http.Cookie{Name: name, Value: value})
		}
		req.SetCookies(cookies)
	}

	resp, err := req.Get(d.URL)
	if err != nil {
		return nil, err
	}

	return &Response{
		StatusCode: resp.StatusCode(),
		Body:       resp.Bytes(),
	}, nil
}

// Close releases the client's idle connections
func (t *RestyTransport) Close() error {
	return t.client.Close()
}
