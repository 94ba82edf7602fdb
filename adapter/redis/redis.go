// Package redis publishes completion events on a Redis pub/sub channel.
//
// Optionally the latest event is also stored under a key so workers that
// were offline during the PUBLISH can catch up.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/bundler/adapter"
)

// DefaultChannel is the default pub/sub channel name.
const DefaultChannel = "bundler:completed"

// DefaultTimeout is the default per-publish timeout.
const DefaultTimeout = 5 * time.Second

// DefaultRetries is the default number of retry attempts.
const DefaultRetries = 3

// Config configures the Redis adapter.
type Config struct {
	// URL is the connection URL: redis://[:password@]host:port[/db].
	URL string
	// Channel is the pub/sub channel (default bundler:completed).
	Channel string
	// LastKey, when set, receives a copy of every published event.
	LastKey string
	// LastTTL expires LastKey. Zero keeps it forever.
	LastTTL time.Duration
	// Timeout is the per-attempt timeout (default 5s).
	Timeout time.Duration
	// Retries is the number of retries after the first attempt.
	Retries int
	// Backoff is the first retry delay (default adapter.BaseBackoff).
	Backoff time.Duration
}

// Adapter publishes completion events via Redis.
type Adapter struct {
	config Config
	client *goredis.Client
}

// New creates a Redis adapter. The URL is required.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis adapter requires a URL")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: invalid URL: %w", err)
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = adapter.BaseBackoff
	}

	return &Adapter{
		config: cfg,
		client: goredis.NewClient(opts),
	}, nil
}

// Publish sends the event to the channel, and to LastKey when configured,
// in one transaction. Failures are retried with backoff.
func (a *Adapter) Publish(ctx context.Context, event *adapter.BundleCompletedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}

	err = adapter.Retry(ctx, a.config.Retries, a.config.Backoff, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
		_, err := a.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			p.Publish(ctx, a.config.Channel, body)
			if a.config.LastKey != "" {
				p.Set(ctx, a.config.LastKey, body, a.config.LastTTL)
			}
			return nil
		})
		return err
	}, isClosed)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}

func isClosed(err error) bool {
	return errors.Is(err, goredis.ErrClosed)
}

// Close closes the connection pool.
func (a *Adapter) Close() error {
	return a.client.Close()
}

var _ adapter.Adapter = (*Adapter)(nil)
