package probe

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

// TransportConfig configures NewHTTPClient.
type TransportConfig struct {
	// Proxy is an optional SOCKS5 proxy, either "host:port" or
	// "socks5://[user:pass@]host:port".
	Proxy string
	// Timeout is the overall request timeout.
	Timeout time.Duration
	// UserAgent is set on requests that do not carry one.
	UserAgent string
}

// NewHTTPClient creates the HTTP client used by the probes. When cfg.Proxy
// is set, every connection is dialed through that SOCKS5 proxy.
func NewHTTPClient(cfg TransportConfig) (*http.Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	if cfg.Proxy != "" {
		dialer, err := socksDialer(cfg.Proxy)
		if err != nil {
			return nil, err
		}
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			if cd, ok := dialer.(proxy.ContextDialer); ok {
				return cd.DialContext(ctx, network, addr)
			}
			return dialer.Dial(network, addr)
		}
	}

	var rt http.RoundTripper = transport
	if cfg.UserAgent != "" {
		rt = &userAgentTransport{base: transport, userAgent: cfg.UserAgent}
	}

	return &http.Client{
		Transport: rt,
		Timeout:   cfg.Timeout,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}, nil
}

// socksDialer builds a SOCKS5 dialer from a "host:port" or socks5:// URL.
func socksDialer(address string) (proxy.Dialer, error) {
	if !strings.Contains(address, "://") {
		address = "socks5://" + address
	}
	u, err := url.Parse(address)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy address: %w", err)
	}
	if u.Scheme != "socks5" && u.Scheme != "socks5h" {
		return nil, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}
	if u.Hostname() == "" || u.Port() == "" {
		return nil, fmt.Errorf("proxy address must be host:port: %s", u.Redacted())
	}

	var auth *proxy.Auth
	if u.User != nil {
		password, _ := u.User.Password()
		auth = &proxy.Auth{User: u.User.Username(), Password: password}
	}

	dialer, err := proxy.SOCKS5("tcp", u.Host, auth, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}
	return dialer, nil
}

// userAgentTransport sets a User-Agent header on requests without one.
type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

// RoundTrip implements http.RoundTripper.
func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.base.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(clone)
}

// fetched is a downloaded HTTP response body.
type fetched struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

// fetch performs a GET and reads at most maxBody bytes of the body.
// Non-2xx responses are returned together with ErrUnexpectedStatus.
func fetch(ctx context.Context, client *http.Client, rawURL, userAgent string, maxBody int64) (*fetched, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	f := &fetched{
		URL:        resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return f, fmt.Errorf("%w: %s returned %d", ErrUnexpectedStatus, rawURL, resp.StatusCode)
	}
	if resp.ContentLength > maxBody {
		return f, fmt.Errorf("response from %s exceeds %d bytes", rawURL, maxBody)
	}

	f.Body, err = io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return f, fmt.Errorf("failed to read response from %s: %w", rawURL, err)
	}
	return f, nil
}
