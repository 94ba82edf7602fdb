package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap/zapcore"

	"github.com/pithecene-io/bundler/adapter"
	"github.com/pithecene-io/bundler/adapter/redis"
	"github.com/pithecene-io/bundler/adapter/webhook"
	"github.com/pithecene-io/bundler/cli/config"
	"github.com/pithecene-io/bundler/log"
	"github.com/pithecene-io/bundler/metrics"
	"github.com/pithecene-io/bundler/storage"
)

// Exit codes shared by bundle and products.
const (
	exitSuccess     = 0
	exitFailure     = 1
	exitConfig      = 2
	exitAuth        = 3
	exitInterrupted = 130
)

// runEnv carries the per-run plumbing every executing command needs.
type runEnv struct {
	config   *config.Config
	command  string
	runID    string
	logger   *log.Logger
	metrics  *metrics.Collector
	started  time.Time
	adapters []adapter.Adapter
}

// newRunEnv loads the config file, then builds the logger, collector and
// notification adapters for one run. Failures map to exitConfig.
func newRunEnv(c *cli.Context, command string) (*runEnv, error) {
	path := c.String("config")
	explicit := path != ""
	if !explicit {
		path = config.DefaultPath
	}
	cfg, err := config.LoadOptional(path, explicit)
	if err != nil {
		return nil, cli.Exit(err.Error(), exitConfig)
	}

	levelName := c.String("log-level")
	if levelName == "" {
		levelName = cfg.LogLevel
	}
	level := zapcore.InfoLevel
	if levelName != "" {
		if level, err = zapcore.ParseLevel(levelName); err != nil {
			return nil, cli.Exit(fmt.Sprintf("invalid log level %q", levelName), exitConfig)
		}
	}

	runID := c.String("run-id")
	if runID == "" {
		runID = uuid.NewString()
	}

	logger, err := log.NewLoggerWithWriter(
		log.RunContext{RunID: runID, Command: command},
		errWriter(c), level, stringOr(c.String("log-format"), cfg.LogFormat),
	)
	if err != nil {
		return nil, cli.Exit(err.Error(), exitConfig)
	}
	adapters, err := buildAdapters(cfg.Adapters)
	if err != nil {
		return nil, cli.Exit(err.Error(), exitConfig)
	}

	return &runEnv{
		config:   cfg,
		command:  command,
		runID:    runID,
		logger:   logger,
		metrics:  metrics.NewCollector(command, runID),
		started:  time.Now(),
		adapters: adapters,
	}, nil
}

// close releases the adapters and flushes the logger.
func (e *runEnv) close() {
	if err := adapter.CloseAll(e.adapters); err != nil {
		e.logger.Warn("adapter close failed", map[string]any{"error": err.Error()})
	}
	_ = e.logger.Sync()
}

// notify publishes event to the configured adapters. Notification failures
// are logged and never change the exit code.
func (e *runEnv) notify(ctx context.Context, event *adapter.BundleCompletedEvent) {
	if len(e.adapters) == 0 {
		return
	}
	event.RunID = e.runID
	event.Command = e.command
	event.Timestamp = time.Now().UTC().Format(time.RFC3339)
	event.DurationMs = time.Since(e.started).Milliseconds()

	// A cancelled run still reports its outcome.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	_ = adapter.Notify(ctx, e.adapters, event, e.logger)
}

// s3Config returns the storage settings from the config file.
func (e *runEnv) s3Config() storage.S3Config {
	s := e.config.Storage
	return storage.S3Config{
		Bucket:       s.Bucket,
		Prefix:       s.Prefix,
		Region:       s.Region,
		Endpoint:     s.Endpoint,
		UsePathStyle: s.PathStyle,
	}
}

func buildAdapters(cfgs []config.AdapterConfig) ([]adapter.Adapter, error) {
	var out []adapter.Adapter
	for i, ac := range cfgs {
		a, err := buildAdapter(ac)
		if err != nil {
			_ = adapter.CloseAll(out)
			return nil, fmt.Errorf("adapters[%d]: %w", i, err)
		}
		out = append(out, a)
	}
	return out, nil
}

func buildAdapter(ac config.AdapterConfig) (adapter.Adapter, error) {
	switch ac.Type {
	case "webhook":
		retries := webhook.DefaultRetries
		if ac.Retries != nil {
			retries = *ac.Retries
		}
		return webhook.New(webhook.Config{
			URL:     ac.URL,
			Headers: ac.Headers,
			Timeout: ac.Timeout.Duration,
			Retries: retries,
		})
	case "redis":
		retries := redis.DefaultRetries
		if ac.Retries != nil {
			retries = *ac.Retries
		}
		return redis.New(redis.Config{
			URL:     ac.URL,
			Channel: ac.Channel,
			LastKey: ac.LastKey,
			LastTTL: ac.LastTTL.Duration,
			Timeout: ac.Timeout.Duration,
			Retries: retries,
		})
	default:
		return nil, fmt.Errorf("unknown adapter type %q", ac.Type)
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// interrupted reports whether err stems from a cancelled run context.
func interrupted(ctx context.Context, err error) bool {
	return ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}

func errWriter(c *cli.Context) io.Writer {
	if c.App != nil && c.App.ErrWriter != nil {
		return c.App.ErrWriter
	}
	return os.Stderr
}

// durationOr returns d when set, else def.
func durationOr(d config.Duration, def time.Duration) time.Duration {
	if d.Duration > 0 {
		return d.Duration
	}
	return def
}

// stringOr returns s when non-empty, else def.
func stringOr(s, def string) string {
	if s != "" {
		return s
	}
	return def
}
