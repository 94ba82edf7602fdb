// Package adapter defines the notification boundary for finished runs.
//
// Adapters tell downstream systems (a CI hook, an app rebuild worker) that a
// bundle or product download has completed and where its outputs live.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pithecene-io/bundler/log"
)

// Event types.
const (
	EventBundleCompleted   = "bundle_completed"
	EventProductsCompleted = "products_completed"
)

// Outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
)

// BundleCompletedEvent is the payload published when a run finishes.
type BundleCompletedEvent struct {
	EventType  string         `json:"event_type"`
	RunID      string         `json:"run_id"`
	Command    string         `json:"command"`
	Outcome    string         `json:"outcome"`
	Error      string         `json:"error,omitempty"`
	Discovered int            `json:"discovered"`
	Downloaded map[string]int `json:"downloaded,omitempty"`
	Failed     int            `json:"failed"`
	TotalBytes int64          `json:"total_bytes"`
	Products   int            `json:"products,omitempty"`
	Outputs    []string       `json:"outputs"`
	Published  []string       `json:"published,omitempty"`
	Timestamp  string         `json:"timestamp"`
	DurationMs int64          `json:"duration_ms"`
}

// Adapter publishes completion events to a downstream system.
type Adapter interface {
	// Publish sends the event. It must respect context cancellation.
	Publish(ctx context.Context, event *BundleCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}

// BaseBackoff is the delay before the first retry; each further retry
// doubles it.
const BaseBackoff = 500 * time.Millisecond

// Retry runs op up to 1+retries times with exponential backoff between
// attempts. It stops early when permanent reports true for an error.
func Retry(ctx context.Context, retries int, base time.Duration, op func(context.Context) error, permanent func(error) bool) error {
	attempts := 1 + retries
	var lastErr error
	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context canceled: %w", err)
		}
		if i > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("context canceled during backoff: %w", ctx.Err())
			case <-time.After(base << (i - 1)):
			}
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if permanent != nil && permanent(lastErr) {
			return fmt.Errorf("non-retriable error: %w", lastErr)
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}

// Notify publishes event to every adapter. A failing adapter does not stop
// the others; the joined error reports all failures.
func Notify(ctx context.Context, adapters []Adapter, event *BundleCompletedEvent, logger *log.Logger) error {
	logger = log.OrNop(logger).Named("adapter")
	var errs []error
	for _, a := range adapters {
		if err := a.Publish(ctx, event); err != nil {
			logger.Warn("notification failed", map[string]any{
				"adapter": fmt.Sprintf("%T", a),
				"error":   err.Error(),
			})
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CloseAll closes every adapter.
func CloseAll(adapters []Adapter) error {
	var errs []error
	for _, a := range adapters {
		errs = append(errs, a.Close())
	}
	return errors.Join(errs...)
}
