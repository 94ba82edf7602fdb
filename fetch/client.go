package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pithecene-io/bundler/iox"
	"github.com/pithecene-io/bundler/log"
)

// Defaults for a Client.
const (
	DefaultTimeout    = 30 * time.Second
	DefaultAttempts   = 3
	DefaultRetryDelay = 2 * time.Second
	DefaultUserAgent  = "bundler/1"
)

// Config configures a Client.
type Config struct {
	// Timeout bounds each individual attempt, body read included.
	Timeout time.Duration
	// Attempts is the total number of tries per call (1 = no retry).
	Attempts int
	// RetryDelay is the fixed wait between attempts.
	RetryDelay time.Duration
	// UserAgent is sent on every request.
	UserAgent string
	// Headers are added to every request.
	Headers map[string]string
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Attempts <= 0 {
		c.Attempts = DefaultAttempts
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	return c
}

// Client performs GET requests with per-attempt timeout and bounded retry.
// Only transient failures (timeouts, network errors, 429, 5xx) are retried;
// 4xx responses fail immediately.
type Client struct {
	config Config
	http   *http.Client
	logger *log.Logger
}

// NewClient creates a Client. A nil httpClient uses a fresh http.Client
// without a global timeout (the per-attempt context bounds each call).
func NewClient(cfg Config, httpClient *http.Client, logger *log.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		config: cfg.withDefaults(),
		http:   httpClient,
		logger: log.OrNop(logger),
	}
}

// Config returns the effective configuration.
func (c *Client) Config() Config {
	return c.config
}

// GetBytes fetches rawURL and returns the full response body.
func (c *Client) GetBytes(ctx context.Context, rawURL string) ([]byte, error) {
	return c.get(ctx, rawURL)
}

// GetJSON fetches rawURL with the given query parameters and decodes the
// JSON body into v.
func (c *Client) GetJSON(ctx context.Context, rawURL string, query url.Values, v any) error {
	target, err := withQuery(rawURL, query)
	if err != nil {
		return err
	}

	body, err := c.get(ctx, target)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, v); err != nil {
		return &Error{Kind: ErrDecode, URL: target, Err: err}
	}
	return nil
}

func (c *Client) get(ctx context.Context, target string) ([]byte, error) {
	var lastErr error

	for i := range c.config.Attempts {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("fetch canceled: %w", err)
		}

		if i > 0 {
			c.logger.Warn("retrying request", map[string]any{
				"url":     target,
				"attempt": i + 1,
				"of":      c.config.Attempts,
				"error":   lastErr.Error(),
			})
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("fetch canceled during backoff: %w", ctx.Err())
			case <-time.After(c.config.RetryDelay):
			}
		}

		body, err := c.attempt(ctx, target)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return nil, err
		}
	}

	return nil, lastErr
}

// attempt performs one GET bounded by the configured timeout.
func (c *Client) attempt(ctx context.Context, target string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transportError(target, err)
	}
	defer iox.DiscardClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain body to allow connection reuse
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, statusError(target, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(target, err)
	}
	return body, nil
}

func withQuery(rawURL string, query url.Values) (string, error) {
	if len(query) == 0 {
		return rawURL, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	q := u.Query()
	for k, vs := range query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// JoinURL joins a base URL and a relative remote path with exactly one slash.
func JoinURL(base, remotePath string) string {
	if remotePath == "" {
		return base
	}
	if u, err := url.Parse(remotePath); err == nil && u.IsAbs() {
		return remotePath
	}
	for len(base) > 0 && base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	for len(remotePath) > 0 && remotePath[0] == '/' {
		remotePath = remotePath[1:]
	}
	return base + "/" + remotePath
}
