package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/sony/gobreaker"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during a wait.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrBlocked is returned while an upstream cooldown is active.
	ErrBlocked = errors.New("upstream cooldown active")
)

// ErrorKind classifies a failed page fetch.
type ErrorKind string

const (
	// KindTransport covers connection, DNS and timeout failures.
	KindTransport ErrorKind = "transport"

	// KindHTTP is a response with a non-2xx status.
	KindHTTP ErrorKind = "http"

	// KindDecode is a response body that is not valid JSON.
	KindDecode ErrorKind = "decode"

	// KindMalformed is valid JSON whose envelope lacks the expected shape.
	KindMalformed ErrorKind = "malformed"

	// KindBlocked is a request refused locally because the upstream blocked us.
	KindBlocked ErrorKind = "blocked"
)

// FetchError describes why a single page could not be fetched or decoded.
type FetchError struct {
	Kind       ErrorKind
	URL        string
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: %s error (status %d): %v", e.URL, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s error: %v", e.URL, e.Kind, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retryable reports whether repeating the same request may succeed.
func (e *FetchError) Retryable() bool {
	switch e.Kind {
	case KindTransport:
		if errors.Is(e.Err, context.Canceled) ||
			errors.Is(e.Err, gobreaker.ErrOpenState) ||
			errors.Is(e.Err, gobreaker.ErrTooManyRequests) {
			return false
		}
		return true
	case KindHTTP:
		return e.StatusCode >= 500
	default:
		return false
	}
}

// KindOf returns the ErrorKind carried by err, or "" when err is not a FetchError.
func KindOf(err error) ErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// isRetryable determines if an error should be retried.
func isRetryable(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Retryable()
	}
	return false
}

// tripsBreaker reports whether err counts as an upstream failure for the
// circuit breaker. Client-side problems (4xx, bad JSON) do not.
func tripsBreaker(err error) bool {
	var fe *FetchError
	if !errors.As(err, &fe) {
		return err != nil
	}
	switch fe.Kind {
	case KindTransport:
		return !errors.Is(fe.Err, context.Canceled)
	case KindHTTP:
		return fe.StatusCode >= 500
	default:
		return false
	}
}
