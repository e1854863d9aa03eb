// Package httpclient implements C2: retryable JSON GET and streaming
// tarball download with registry-scoped auth and size verification.
package httpclient

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig mirrors the store Config's retry knobs.
type RetryConfig struct {
	Count      int
	Factor     float64
	MinTimeout time.Duration
	MaxTimeout time.Duration
	Randomize  bool
}

func (r RetryConfig) backOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if r.MinTimeout > 0 {
		eb.InitialInterval = r.MinTimeout
	}
	if r.MaxTimeout > 0 {
		eb.MaxInterval = r.MaxTimeout
	}
	if r.Factor > 0 {
		eb.Multiplier = r.Factor
	}
	if !r.Randomize {
		eb.RandomizationFactor = 0
	}
	eb.MaxElapsedTime = 0 // bounded by retry count instead, via WithMaxRetries
	count := r.Count
	if count <= 0 {
		count = 2
	}
	return backoff.WithMaxRetries(eb, uint64(count))
}

// Client performs the store's network I/O. The zero value is not usable;
// construct with New.
type Client struct {
	hc          *http.Client
	retry       RetryConfig
	userAgent   string
	alwaysAuth  bool
	registry    string
	credentials CredentialSource
	logger      *slog.Logger
}

// CredentialSource resolves a bearer/basic Authorization header value for a
// registry host. Returning "" means no credentials are configured.
type CredentialSource interface {
	Authorization(host string) string
}

// Option configures a Client.
type Option func(*Client)

// WithRetry sets the retry policy used by Download.
func WithRetry(cfg RetryConfig) Option { return func(c *Client) { c.retry = cfg } }

// WithUserAgent sets the User-Agent header sent on every request.
func WithUserAgent(ua string) Option { return func(c *Client) { c.userAgent = ua } }

// WithAlwaysAuth forces credentials to be sent even to hosts that don't
// match the configured registry.
func WithAlwaysAuth(always bool) Option { return func(c *Client) { c.alwaysAuth = always } }

// WithRegistry sets the configured registry URL, used for auth-scoping
// decisions (§4.2: send credentials if the tarball host equals this host).
func WithRegistry(registry string) Option { return func(c *Client) { c.registry = registry } }

// WithCredentials sets the credential source consulted for Authorization
// headers.
func WithCredentials(src CredentialSource) Option { return func(c *Client) { c.credentials = src } }

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option { return func(c *Client) { c.logger = l } }

// WithTLS configures the client's transport TLS settings (certificate, key,
// CA, and strict verification), matching the store Config's TLS knobs.
func WithTLS(certPEM, keyPEM, caPEM []byte, strict bool) Option {
	return func(c *Client) {
		tr, ok := c.hc.Transport.(*http.Transport)
		if !ok || tr == nil {
			tr = http.DefaultTransport.(*http.Transport).Clone() //nolint:errcheck // always *http.Transport
		}
		cfg := tlsConfig(certPEM, keyPEM, caPEM, strict)
		if cfg != nil {
			tr.TLSClientConfig = cfg
		}
		c.hc.Transport = tr
	}
}

// WithHTTPClient overrides the underlying *http.Client entirely, primarily
// for tests.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.hc = hc } }

// ProxyConfig mirrors the store Config's proxy knobs.
type ProxyConfig struct {
	HTTP         string
	HTTPS        string
	LocalAddress string
}

// WithProxy routes requests through cfg's HTTP/HTTPS proxies and, if
// LocalAddress is set, dials outbound connections from that local address,
// matching npm's proxy/https-proxy/local-address config knobs. A zero
// ProxyConfig leaves the transport untouched.
func WithProxy(cfg ProxyConfig) Option {
	return func(c *Client) {
		if cfg.HTTP == "" && cfg.HTTPS == "" && cfg.LocalAddress == "" {
			return
		}
		tr, ok := c.hc.Transport.(*http.Transport)
		if !ok || tr == nil {
			tr = http.DefaultTransport.(*http.Transport).Clone() //nolint:errcheck // always *http.Transport
		}
		if cfg.HTTP != "" || cfg.HTTPS != "" {
			tr.Proxy = proxyFunc(cfg)
		}
		if cfg.LocalAddress != "" {
			dialer := &net.Dialer{LocalAddr: &net.TCPAddr{IP: net.ParseIP(cfg.LocalAddress)}}
			tr.DialContext = dialer.DialContext
		}
		c.hc.Transport = tr
	}
}

// proxyFunc picks HTTPS for https:// requests, falling back to HTTP, and
// HTTP otherwise, the same fallback Go's own httpproxy package applies
// between HTTPS_PROXY and HTTP_PROXY.
func proxyFunc(cfg ProxyConfig) func(*http.Request) (*url.URL, error) {
	return func(req *http.Request) (*url.URL, error) {
		raw := cfg.HTTP
		if req.URL.Scheme == "https" && cfg.HTTPS != "" {
			raw = cfg.HTTPS
		}
		if raw == "" {
			return nil, nil
		}
		return url.Parse(raw)
	}
}

// New creates a Client with the given options.
func New(opts ...Option) *Client {
	c := &Client{
		hc:        &http.Client{Timeout: 0},
		userAgent: "pstore/1.0",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}

// GetJSON fires a GET against url, scoping credentials to registry per
// §4.2, and decodes the response body as JSON into a fresh map.
func (c *Client) GetJSON(ctx context.Context, rawURL string, registry string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrNetwork, err)
	}
	req.Header.Set("Accept", "application/json")
	c.applyAuth(req, rawURL, registry)

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: unexpected status %s for %s", ErrNetwork, resp.Status, rawURL)
	}

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode json: %v", ErrNetwork, err)
	}
	return out, nil
}

// shouldAuth implements the auth-scoping rule from §4.2: send credentials if
// alwaysAuth is set, OR no registry is configured, OR the target host
// matches the registry host.
func (c *Client) shouldAuth(targetURL, registry string) bool {
	if c.alwaysAuth {
		return true
	}
	if registry == "" {
		registry = c.registry
	}
	if registry == "" {
		return true
	}
	tu, err1 := url.Parse(targetURL)
	ru, err2 := url.Parse(registry)
	if err1 != nil || err2 != nil {
		return false
	}
	return tu.Hostname() == ru.Hostname()
}

func (c *Client) applyAuth(req *http.Request, targetURL, registry string) {
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.credentials == nil || !c.shouldAuth(targetURL, registry) {
		return
	}
	host := req.URL.Hostname()
	if auth := c.credentials.Authorization(host); auth != "" {
		req.Header.Set("Authorization", auth)
	}
}

func tlsConfig(certPEM, keyPEM, caPEM []byte, strict bool) *tls.Config {
	if len(certPEM) == 0 && len(keyPEM) == 0 && len(caPEM) == 0 && strict {
		return nil
	}
	cfg := &tls.Config{InsecureSkipVerify: !strict} //nolint:gosec // opt-in via config, matches npm's strict-ssl knob
	if len(certPEM) > 0 && len(keyPEM) > 0 {
		if pair, err := tls.X509KeyPair(certPEM, keyPEM); err == nil {
			cfg.Certificates = []tls.Certificate{pair}
		}
	}
	if len(caPEM) > 0 {
		pool := x509.NewCertPool()
		if pool.AppendCertsFromPEM(caPEM) {
			cfg.RootCAs = pool
		}
	}
	return cfg
}

// drainAndClose fully drains and closes resp.Body so the underlying
// connection can be reused by the transport's keep-alive pool.
func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}
