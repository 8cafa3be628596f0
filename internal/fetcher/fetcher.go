package fetcher

import (
	"context"

	"rankfetcher/internal/identifier"
	"rankfetcher/internal/request"
)

// Fetcher turns one identifier into exactly one terminal Outcome.
// Implementations must not return before the outcome is final.
type Fetcher interface {
	Fetch(ctx context.Context, id identifier.Identifier) Outcome
}

// Response is the part of an HTTP response the worker classifies.
type Response struct {
	StatusCode int
	Body       []byte
}

// Transport issues a single request attempt. It must honor ctx's deadline
// and must not retry on its own.
type Transport interface {
	Do(ctx context.Context, d request.Descriptor) (*Response, error)
}

// TransportFunc adapts a function to the Transport interface
type TransportFunc func(ctx context.Context, d request.Descriptor) (*Response, error)

// Do implements Transport
func (f TransportFunc) Do(ctx context.Context, d request.Descriptor) (*Response, error) {
	return f(ctx, d)
}
