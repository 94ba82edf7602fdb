// Package products downloads the full product catalog from the paginated
// product API and exports it as JSON, CSV, msgpack or a partitioned
// dataset archive.
package products

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/time/rate"

	"github.com/pithecene-io/bundler/iox"
	"github.com/pithecene-io/bundler/log"
	"github.com/pithecene-io/bundler/metrics"
	"github.com/pithecene-io/bundler/types"
)

// Request and response headers of the product API.
const (
	HeaderPageNum      = "App-Pagination-Num"
	HeaderPageLimit    = "App-Pagination-Limit"
	HeaderTotalRecords = "App-Pagination-Total-Records"
	HeaderTotalPages   = "App-Pagination-Total-Pages"
	HeaderHasNext      = "App-Pagination-Has-Next-Page"
	HeaderCurrentPage  = "App-Pagination-Current-Page-Num"
)

// Defaults for a Client.
const (
	DefaultPageSize    = 100
	DefaultMaxAttempts = 5
	DefaultRetryDelay  = 5 * time.Second
	DefaultPageDelay   = 300 * time.Millisecond
	DefaultTimeout     = 30 * time.Second
)

var (
	// ErrAuthExpired is returned on 401. It is terminal: the credential
	// must be refreshed out of band before running again.
	ErrAuthExpired = errors.New("product API credential rejected or expired")

	// ErrRetriesExhausted is returned when a page keeps failing after
	// MaxAttempts attempts.
	ErrRetriesExhausted = errors.New("page retries exhausted")
)

// APIError is a non-2xx response other than 401.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("product API error: status %d", e.Status)
	}
	return fmt.Sprintf("product API error: status %d: %s", e.Status, e.Body)
}

// Config configures a Client.
type Config struct {
	// URL is the product collection endpoint.
	URL string
	// PageSize is sent as the page limit.
	PageSize int
	// MaxAttempts bounds the tries per page, including the first.
	MaxAttempts int
	// RetryDelay is the fixed wait after a failed attempt.
	RetryDelay time.Duration
	// PageDelay is the minimum spacing between page requests. Zero
	// disables the delay.
	PageDelay time.Duration
	// Timeout bounds each request.
	Timeout time.Duration
	// Headers are added to every request (e.g. Origin, Referer).
	Headers map[string]string
}

func (c Config) withDefaults() Config {
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// Client reads the product API page by page.
type Client struct {
	config  Config
	http    *http.Client
	creds   CredentialProvider
	limiter *rate.Limiter
	logger  *log.Logger
	metrics *metrics.Collector
}

// NewClient creates a Client. A nil httpClient uses a default client;
// logger and collector may be nil.
func NewClient(cfg Config, creds CredentialProvider, httpClient *http.Client, logger *log.Logger, collector *metrics.Collector) *Client {
	cfg = cfg.withDefaults()
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	limit := rate.Inf
	if cfg.PageDelay > 0 {
		limit = rate.Every(cfg.PageDelay)
	}

	return &Client{
		config:  cfg,
		http:    httpClient,
		creds:   creds,
		limiter: rate.NewLimiter(limit, 1),
		logger:  log.OrNop(logger).Named("products"),
		metrics: collector,
	}
}

type pageBody struct {
	Data []types.Product `json:"data"`
}

// FetchPage fetches one zero-based page.
func (c *Client) FetchPage(ctx context.Context, page int) (*types.ProductPage, error) {
	token, err := c.creds.Token(ctx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(HeaderPageNum, strconv.Itoa(page))
	req.Header.Set(HeaderPageLimit, strconv.Itoa(c.config.PageSize))
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch page %d: %w", page, err)
	}
	defer iox.DiscardClose(resp.Body)

	body, err := readBody(resp)
	if err != nil {
		return nil, fmt.Errorf("read page %d: %w", page, err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrAuthExpired
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Status: resp.StatusCode, Body: truncate(string(body), 200)}
	}

	var pb pageBody
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&pb); err != nil {
		return nil, fmt.Errorf("decode page %d: %w", page, err)
	}
	if pb.Data == nil {
		pb.Data = []types.Product{}
	}

	return &types.ProductPage{
		Data:         pb.Data,
		TotalRecords: headerInt(resp.Header, HeaderTotalRecords),
		TotalPages:   headerInt(resp.Header, HeaderTotalPages),
		HasNext:      strings.EqualFold(resp.Header.Get(HeaderHasNext), "true"),
		CurrentPage:  headerInt(resp.Header, HeaderCurrentPage),
	}, nil
}

// DownloadAll fetches every page and returns the products in page order.
// The first page supplies the totals; when the API omits the page count it
// is derived from the record count and page size.
func (c *Client) DownloadAll(ctx context.Context) ([]types.Product, error) {
	first, err := c.fetchWithRetry(ctx, 0)
	if err != nil {
		return nil, err
	}

	totalPages := first.TotalPages
	if totalPages <= 0 && first.TotalRecords > 0 {
		totalPages = (first.TotalRecords + c.config.PageSize - 1) / c.config.PageSize
	}
	c.logger.Info("catalog size", map[string]any{
		"total_records": first.TotalRecords,
		"total_pages":   totalPages,
		"page_size":     c.config.PageSize,
	})

	all := make([]types.Product, 0, max(first.TotalRecords, len(first.Data)))
	all = append(all, first.Data...)

	for page := 1; page < totalPages; page++ {
		p, err := c.fetchWithRetry(ctx, page)
		if err != nil {
			return all, err
		}
		all = append(all, p.Data...)
		c.logger.Debug("page fetched", map[string]any{
			"page":     page + 1,
			"of":       totalPages,
			"products": len(all),
		})
	}

	return all, nil
}

func (c *Client) fetchWithRetry(ctx context.Context, page int) (*types.ProductPage, error) {
	var lastErr error
	for attempt := 1; attempt <= c.config.MaxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}

		p, err := c.FetchPage(ctx, page)
		if err == nil {
			c.metrics.RecordPage(len(p.Data))
			return p, nil
		}
		lastErr = err

		if !retryable(err) || ctx.Err() != nil {
			return nil, err
		}
		if attempt == c.config.MaxAttempts {
			break
		}

		c.metrics.IncPageRetry()
		c.logger.Warn("page failed, retrying", map[string]any{
			"page":    page,
			"attempt": attempt,
			"of":      c.config.MaxAttempts,
			"delay":   c.config.RetryDelay.String(),
			"error":   err.Error(),
		})
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("page %d: %w", page, ctx.Err())
		case <-time.After(c.config.RetryDelay):
		}
	}
	return nil, fmt.Errorf("%w: page %d after %d attempts: %w", ErrRetriesExhausted, page, c.config.MaxAttempts, lastErr)
}

// retryable reports whether a page failure may clear up on its own.
// Credential problems and 4xx responses other than 429 never do.
func retryable(err error) bool {
	if errors.Is(err, ErrAuthExpired) || errors.Is(err, ErrNoCredential) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500 || apiErr.Status == http.StatusTooManyRequests
	}
	return true
}

func readBody(resp *http.Response) ([]byte, error) {
	if !strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		return io.ReadAll(resp.Body)
	}
	zr, err := gzip.NewReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	defer iox.DiscardClose(zr)
	return io.ReadAll(zr)
}

func headerInt(h http.Header, key string) int {
	n, err := strconv.Atoi(strings.TrimSpace(h.Get(key)))
	if err != nil {
		return 0
	}
	return n
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
