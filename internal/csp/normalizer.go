package csp

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"

	"github.com/nao1215/cspgen/internal/model"
)

var (
	// ErrSkippedScheme is returned for references that never load a network
	// resource: data:, javascript:, about:, blob:, mailto:, tel: and
	// fragment-only references.
	ErrSkippedScheme = errors.New("reference does not load a network resource")

	// ErrUnresolvable is returned when a reference cannot be parsed or
	// resolved to an absolute URL with a host.
	ErrUnresolvable = errors.New("unresolvable reference")
)

// skippedPrefixes are scheme prefixes that are ignored before parsing.
// Matching is done on the lowercased, trimmed reference.
var skippedPrefixes = []string{
	"data:",
	"javascript:",
	"about:",
	"blob:",
	"mailto:",
	"tel:",
	"filesystem:",
	"chrome-extension:",
	"moz-extension:",
}

// networkSchemes are the schemes a CSP host-source can describe.
var networkSchemes = map[string]string{
	"http":  "80",
	"https": "443",
	"ws":    "80",
	"wss":   "443",
}

// Normalizer reduces resource references to CSP origin tokens.
//
// A token is 'self' when the resource host equals the crawl origin host
// (case-insensitive, default ports ignored). Otherwise it is the
// resource's host with any non-default port, optionally prefixed by its
// scheme. Paths, queries and fragments never appear in a token.
type Normalizer struct {
	// originHost is the canonical host[:port] treated as 'self'.
	originHost string

	// withScheme emits scheme://host tokens instead of bare hosts.
	withScheme bool

	// collapse rewrites hosts to *.<registrable domain>.
	collapse bool
}

// NormalizerOption configures a Normalizer.
type NormalizerOption func(*Normalizer)

// WithSchemeTokens makes tokens carry their scheme (https://cdn.example.com).
func WithSchemeTokens(enabled bool) NormalizerOption {
	return func(n *Normalizer) {
		n.withScheme = enabled
	}
}

// WithCollapsedSubdomains rewrites every external host to a wildcard over
// its registrable domain (static.cdn.example.co.uk -> *.example.co.uk).
// Hosts that already are a registrable domain and IP addresses are kept.
func WithCollapsedSubdomains(enabled bool) NormalizerOption {
	return func(n *Normalizer) {
		n.collapse = enabled
	}
}

// NewNormalizer creates a Normalizer whose 'self' origin is the host of
// originURL.
func NewNormalizer(originURL string, opts ...NormalizerOption) (*Normalizer, error) {
	n := &Normalizer{}
	for _, opt := range opts {
		opt(n)
	}
	if err := n.SetOrigin(originURL); err != nil {
		return nil, err
	}
	return n, nil
}

// SetOrigin changes the host treated as 'self'. The crawler calls it when
// the start page redirects to a different host.
func (n *Normalizer) SetOrigin(originURL string) error {
	u, err := url.Parse(strings.TrimSpace(originURL))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnresolvable, err)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("%w: origin %q has no host", ErrUnresolvable, originURL)
	}
	n.originHost = canonicalHost(u)
	return nil
}

// OriginHost returns the canonical host[:port] treated as 'self'.
func (n *Normalizer) OriginHost() string {
	return n.originHost
}

// Resolve resolves raw against base and validates that the result is a
// network URL with a host. base may be nil for absolute references.
func (n *Normalizer) Resolve(base *url.URL, raw string) (*url.URL, error) {
	ref := strings.TrimSpace(raw)
	if ref == "" {
		return nil, fmt.Errorf("%w: empty reference", ErrUnresolvable)
	}
	if strings.HasPrefix(ref, "#") {
		return nil, fmt.Errorf("%w: fragment-only reference %q", ErrSkippedScheme, ref)
	}

	lower := strings.ToLower(ref)
	for _, prefix := range skippedPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return nil, fmt.Errorf("%w: %s", ErrSkippedScheme, strings.TrimSuffix(prefix, ":"))
		}
	}

	u, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrUnresolvable, ref, err)
	}
	if base != nil {
		u = base.ResolveReference(u)
	}

	if !u.IsAbs() {
		return nil, fmt.Errorf("%w: %q is relative and has no base", ErrUnresolvable, ref)
	}
	if _, ok := networkSchemes[strings.ToLower(u.Scheme)]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrSkippedScheme, u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: %q has no host", ErrUnresolvable, ref)
	}

	return u, nil
}

// IsSameOrigin reports whether u points at the crawl origin host.
func (n *Normalizer) IsSameOrigin(u *url.URL) bool {
	return u != nil && u.Hostname() != "" && canonicalHost(u) == n.originHost
}

// Token returns the origin token for an already resolved URL.
func (n *Normalizer) Token(u *url.URL) string {
	if n.IsSameOrigin(u) {
		return model.SourceSelf
	}

	host := canonicalHost(u)
	if n.collapse {
		host = collapseHost(u, host)
	}
	if n.withScheme {
		return strings.ToLower(u.Scheme) + "://" + host
	}
	return host
}

// Normalize resolves raw against base and returns its origin token.
func (n *Normalizer) Normalize(base *url.URL, raw string) (string, error) {
	u, err := n.Resolve(base, raw)
	if err != nil {
		return "", err
	}
	return n.Token(u), nil
}

// canonicalHost returns the lowercase ASCII host of u with its port when the
// port is not the scheme's default.
func canonicalHost(u *url.URL) string {
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if net.ParseIP(host) == nil {
		if ascii, err := idna.Lookup.ToASCII(host); err == nil {
			host = ascii
		}
	}

	port := u.Port()
	if def, ok := networkSchemes[strings.ToLower(u.Scheme)]; ok && port == def {
		port = ""
	}

	if port != "" {
		return net.JoinHostPort(host, port)
	}
	if strings.Contains(host, ":") {
		return "[" + host + "]"
	}
	return host
}

// collapseHost rewrites canonical to a wildcard over the registrable domain.
func collapseHost(u *url.URL, canonical string) string {
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if net.ParseIP(host) != nil {
		return canonical
	}
	if ascii, err := idna.Lookup.ToASCII(host); err == nil {
		host = ascii
	}

	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil || domain == host {
		return canonical
	}

	wildcard := "*." + domain
	if _, port, err := net.SplitHostPort(canonical); err == nil && port != "" {
		return wildcard + ":" + port
	}
	return wildcard
}
