package request

import (
	"errors"
	"fmt"
	"maps"
	"net/url"
	"strings"

	"rankfetcher/internal/identifier"
	"rankfetcher/internal/rankapi"
)

// ErrUnknownMarket is returned by Build in strict mode for codes whose
// leading digit maps to no exchange.
var ErrUnknownMarket = errors.New("unknown market")

// Descriptor is everything needed to issue one rank request. Build returns a
// fresh Descriptor per call; its maps are never shared with the Builder.
type Descriptor struct {
	Identifier identifier.Identifier
	Market     identifier.Market
	URL        string
	Headers    map[string]string
	Cookies    map[string]string
}

// Credentials are opaque user-supplied strings. Empty values are not sent.
type Credentials struct {
	Authorization string
	Cookie        string
	Signature     string
	UserAgent     string
}

// Options configures a Builder.
type Options struct {
	BaseURL     string
	Version     string
	Credentials Credentials

	// Lenient maps unknown markets to SHSE instead of rejecting them.
	Lenient bool
}

// Builder constructs request descriptors from identifiers. It holds only
// static configuration and is safe for concurrent use.
type Builder struct {
	baseURL string
	version string
	lenient bool
	headers map[string]string
	cookies map[string]string
}

// NewBuilder creates a Builder. Headers and cookies are resolved once here.
func NewBuilder(opts Options) *Builder {
	headers := maps.Clone(rankapi.DefaultHeaders)
	if opts.Credentials.UserAgent != "" {
		headers["user-agent"] = opts.Credentials.UserAgent
	}
	if opts.Credentials.Authorization != "" {
		headers["authorization"] = opts.Credentials.Authorization
	}
	if opts.Credentials.Signature != "" {
		headers["signature"] = opts.Credentials.Signature
	}

	return &Builder{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		version: opts.Version,
		lenient: opts.Lenient,
		headers: headers,
		cookies: ParseCookies(opts.Credentials.Cookie),
	}
}

// Build returns the descriptor for id. The URL has the form
// <base>/<MARKET>:<code>?v=<version>.
func (b *Builder) Build(id identifier.Identifier) (Descriptor, error) {
	market := id.Market
	if market == identifier.MarketUnknown {
		if !b.lenient {
			return Descriptor{}, fmt.Errorf("%w: code %s", ErrUnknownMarket, id.Code)
		}
		market = identifier.MarketSHSE
	}

	u := fmt.Sprintf("%s/%s:%s", b.baseURL, market, id.Code)
	if b.version != "" {
		u += "?v=" + url.QueryEscape(b.version)
	}

	return Descriptor{
		Identifier: id,
		Market:     market,
		URL:        u,
		Headers:    maps.Clone(b.headers),
		Cookies:    maps.Clone(b.cookies),
	}, nil
}

// ParseCookies splits a "k1=v1; k2=v2" cookie string. Entries without '=' are ignored.
func ParseCookies(s string) map[string]string {
	cookies := make(map[string]string)
	for _, part := range strings.Split(s, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || name == "" {
			continue
		}
		cookies[name] = value
	}
	return cookies
}
