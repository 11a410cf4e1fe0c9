// Package packy fetches budget figures from the PackyCode backend.
package packy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/theirongolddev/pburn/internal/model"
)

const (
	// DefaultEndpoint is the users/info endpoint that reports budget usage.
	DefaultEndpoint  = "https://www.packycode.com/api/backend/users/info"
	DefaultUserAgent = "pburn/1.0"
	DefaultTimeout   = 10 * time.Second

	maxBodySize = 1 << 20 // 1 MB
)

// TokenSource yields the bearer token for each request. It is consulted per
// request so a token replaced with `config set-token` is picked up by a
// running daemon.
type TokenSource func(ctx context.Context) (string, error)

// StaticToken returns a TokenSource for a fixed token.
func StaticToken(tok string) TokenSource {
	return func(context.Context) (string, error) { return tok, nil }
}

// Options configures a Client. Zero values fall back to the defaults.
type Options struct {
	Endpoint   string
	Proxy      string
	UserAgent  string
	Timeout    time.Duration
	MinSpacing time.Duration // minimum gap between requests, default 1s
}

// Client talks to the budget endpoint. Safe for concurrent use.
type Client struct {
	endpoint  string
	userAgent string
	token     TokenSource
	http      *http.Client
	limiter   *rate.Limiter
}

// NewClient creates a client. It fails with model.ErrConfig on a malformed
// endpoint or proxy URL.
func NewClient(token TokenSource, opts Options) (*Client, error) {
	if token == nil {
		return nil, &model.ConfigError{Field: "api.token", Reason: "no token source"}
	}
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MinSpacing <= 0 {
		opts.MinSpacing = time.Second
	}

	u, err := url.Parse(opts.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &model.ConfigError{Field: "api.endpoint", Reason: fmt.Sprintf("invalid URL %q", opts.Endpoint)}
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.Proxy != "" {
		pu, err := url.Parse(opts.Proxy)
		if err != nil || pu.Host == "" {
			return nil, &model.ConfigError{Field: "api.proxy", Reason: fmt.Sprintf("invalid URL %q", opts.Proxy)}
		}
		transport.Proxy = http.ProxyURL(pu)
	}

	return &Client{
		endpoint:  opts.Endpoint,
		userAgent: opts.UserAgent,
		token:     token,
		http:      &http.Client{Transport: transport, Timeout: opts.Timeout},
		limiter:   rate.NewLimiter(rate.Every(opts.MinSpacing), 1),
	}, nil
}

// Endpoint returns the URL being polled.
func (c *Client) Endpoint() string { return c.endpoint }

// Fetch retrieves the current daily and monthly budget figures.
func (c *Client) Fetch(ctx context.Context) (model.RawUsage, error) {
	body, err := c.get(ctx)
	if err != nil {
		return model.RawUsage{}, err
	}

	var info UserInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return model.RawUsage{}, fmt.Errorf("packy: parsing response: %v: %w", err, model.ErrParse)
	}
	return info.Usage()
}

// get performs the authenticated GET and maps failures onto the error taxonomy.
func (c *Client) get(ctx context.Context) ([]byte, error) {
	tok, err := c.token(ctx)
	if err != nil {
		return nil, fmt.Errorf("packy: resolving token: %w", err)
	}
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return nil, fmt.Errorf("packy: no API token configured: %w", model.ErrAuth)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("packy: waiting for rate limiter: %v: %w", err, model.ErrNetwork)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("packy: creating request: %v: %w", err, model.ErrNetwork)
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("packy: request failed: %v: %w", err, model.ErrNetwork)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("packy: reading response: %v: %w", err, model.ErrNetwork)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("packy: status %d: %s: %w", resp.StatusCode, snippet(body), model.ErrAuth)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("packy: status %d: %s: %w", resp.StatusCode, snippet(body), model.ErrNetwork)
	}
	return body, nil
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if s == "" {
		return "empty body"
	}
	return truncate(s, 200)
}
