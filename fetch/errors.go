// Package fetch is the HTTP layer shared by discovery, downloads and the
// product API. It issues GET requests with a per-call timeout and a bounded
// wait-and-retry loop, and classifies failures so callers can decide
// between "skip this item", "retry later" and "stop".
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for failure classification.
// Use errors.Is(err, ErrXxx) for typed assertions.
var (
	// ErrNotFound indicates the remote resource does not exist (404).
	ErrNotFound = errors.New("not found")

	// ErrAuth indicates missing or expired credentials (401).
	ErrAuth = errors.New("authentication failed")

	// ErrAccessDenied indicates valid credentials without permission (403).
	ErrAccessDenied = errors.New("access denied")

	// ErrThrottled indicates rate limiting (429).
	ErrThrottled = errors.New("rate limited")

	// ErrServer indicates a 5xx response.
	ErrServer = errors.New("server error")

	// ErrClient indicates any other 4xx response.
	ErrClient = errors.New("client error")

	// ErrTimeout indicates the per-call deadline elapsed.
	ErrTimeout = errors.New("operation timed out")

	// ErrNetwork indicates a transport-level failure (DNS, refused, reset).
	ErrNetwork = errors.New("network error")

	// ErrDecode indicates the response body could not be decoded.
	ErrDecode = errors.New("decode error")
)

// Error wraps an underlying failure with its classification.
type Error struct {
	// Kind is the sentinel error for classification (e.g. ErrNotFound).
	Kind error
	// URL is the requested URL.
	URL string
	// Status is the HTTP status code, or 0 when no response was received.
	Status int
	// Err is the underlying error, if any.
	Err error
}

func (e *Error) Error() string {
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("GET %s: %v (status %d): %v", e.URL, e.Kind, e.Status, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("GET %s: %v (status %d)", e.URL, e.Kind, e.Status)
	default:
		return fmt.Sprintf("GET %s: %v: %v", e.URL, e.Kind, e.Err)
	}
}

// Unwrap returns the underlying error for errors.Is/As chain traversal.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether the error matches the target sentinel.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// Retryable reports whether another attempt could plausibly succeed.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case ErrTimeout, ErrNetwork, ErrThrottled, ErrServer:
		return true
	default:
		return false
	}
}

// IsRetryable reports whether err is a classified transient failure.
func IsRetryable(err error) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Retryable()
	}
	return false
}

// statusError classifies a non-2xx response.
func statusError(url string, status int) *Error {
	var kind error
	switch {
	case status == http.StatusUnauthorized:
		kind = ErrAuth
	case status == http.StatusForbidden:
		kind = ErrAccessDenied
	case status == http.StatusNotFound:
		kind = ErrNotFound
	case status == http.StatusTooManyRequests:
		kind = ErrThrottled
	case status >= 500:
		kind = ErrServer
	default:
		kind = ErrClient
	}
	return &Error{Kind: kind, URL: url, Status: status}
}

// transportError classifies an error returned by http.Client.Do or while
// reading the body.
func transportError(url string, err error) *Error {
	var timeoutErr interface{ Timeout() bool }
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &timeoutErr) && timeoutErr.Timeout()) {
		return &Error{Kind: ErrTimeout, URL: url, Err: err}
	}
	return &Error{Kind: ErrNetwork, URL: url, Err: err}
}

// StatusError builds a classified error for a non-2xx status. Exposed for
// clients that issue their own requests but want the shared taxonomy.
func StatusError(url string, status int) *Error {
	return statusError(url, status)
}
