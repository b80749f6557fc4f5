// Package transport provides the HTTP client source adapters use: per-host
// rate limiting, optional response caching, authentication, and mapping of
// HTTP failures onto the factmap error types.
package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/agentstation/factmap/pkg/constants"
	"github.com/agentstation/factmap/pkg/errors"
	"github.com/agentstation/factmap/pkg/logging"
)

// DefaultHTTPTimeout is the default timeout for HTTP requests.
var DefaultHTTPTimeout = constants.DefaultHTTPTimeout

// Client performs rate-limited GET requests for one source.
type Client struct {
	name    string
	http    *http.Client
	auth    Authenticator
	apiKey  string
	limiter *Limiter
	cache   *Cache
	agent   string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithAuth sets the authenticator and the key it applies.
func WithAuth(auth Authenticator, apiKey string) Option {
	return func(c *Client) {
		if auth != nil {
			c.auth = auth
		}
		c.apiKey = apiKey
	}
}

// WithLimiter shares a limiter between clients.
func WithLimiter(l *Limiter) Option {
	return func(c *Client) {
		c.limiter = l
	}
}

// WithCache enables response caching.
func WithCache(cache *Cache) Option {
	return func(c *Client) {
		c.cache = cache
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(agent string) Option {
	return func(c *Client) {
		c.agent = agent
	}
}

// New creates a client. name identifies the source in errors.
func New(name string, opts ...Option) *Client {
	c := &Client{
		name:    name,
		http:    &http.Client{Timeout: DefaultHTTPTimeout},
		auth:    &NoAuth{},
		limiter: NewLimiter(constants.DefaultRequestsPerSecond, constants.DefaultBurst),
		agent:   constants.AppName,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get fetches rawURL and returns the response body. A 404 is a
// NotFoundError; other non-2xx statuses are APIErrors, which are transient
// for 429 and 5xx.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	if c.cache != nil {
		if body, ok := c.cache.Get(rawURL); ok {
			return body, nil
		}
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, rawURL); err != nil {
			return nil, c.failure(ctx, rawURL, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.WrapResource("create", "request", "GET "+rawURL, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.agent)
	if c.apiKey != "" {
		c.auth.Apply(req, c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.failure(ctx, rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, constants.MaxResponseBytes))
	if err != nil {
		return nil, c.failure(ctx, rawURL, err)
	}
	logging.FromContext(ctx).Debug().
		Str("url", redact(rawURL)).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("Fetched")

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, errors.NewNotFoundError(c.name, redact(rawURL))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &errors.APIError{
			Source:     c.name,
			StatusCode: resp.StatusCode,
			Endpoint:   redact(rawURL),
			Message:    truncate(string(body), 200),
		}
	}

	if c.cache != nil {
		c.cache.Set(rawURL, body)
	}
	return body, nil
}

// failure maps a request that got no response onto the error types.
func (c *Client) failure(ctx context.Context, rawURL string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return &errors.TimeoutError{
			Operation: "GET " + redact(rawURL),
			Duration:  c.http.Timeout.String(),
			Message:   err.Error(),
		}
	}
	return &errors.APIError{
		Source:   c.name,
		Endpoint: redact(rawURL),
		Message:  fmt.Sprintf("request failed: %v", err),
		Err:      err,
	}
}

// redact drops the query string, which may carry an API key.
func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.RawQuery = ""
	return u.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
