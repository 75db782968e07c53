package session

import (
	"context"
	"errors"
	"fmt"
)

// ErrTimeout indicates a navigation or wait exceeded its deadline.
type ErrTimeout struct {
	Err error
}

func (e ErrTimeout) Error() string {
	return fmt.Errorf("timeout: %w", e.Err).Error()
}

func (e ErrTimeout) Unwrap() error {
	return e.Err
}

// ErrConnection indicates a network connectivity failure.
type ErrConnection struct {
	Err error
}

func (e ErrConnection) Error() string {
	return fmt.Errorf("connection: %w", e.Err).Error()
}

func (e ErrConnection) Unwrap() error {
	return e.Err
}

// ErrForbidden indicates a forbidden response (HTTP 403).
type ErrForbidden struct {
	Err error
}

func (e ErrForbidden) Error() string {
	return fmt.Errorf("forbidden: %w", e.Err).Error()
}

func (e ErrForbidden) Unwrap() error {
	return e.Err
}

// ErrNotFound indicates a missing resource (HTTP 404).
type ErrNotFound struct {
	Err error
}

func (e ErrNotFound) Error() string {
	return fmt.Errorf("not_found: %w", e.Err).Error()
}

func (e ErrNotFound) Unwrap() error {
	return e.Err
}

// ErrRateLimited indicates the target rate-limited the request.
type ErrRateLimited struct {
	Err error
}

func (e ErrRateLimited) Error() string {
	return fmt.Errorf("rate_limited: %w", e.Err).Error()
}

func (e ErrRateLimited) Unwrap() error {
	return e.Err
}

// ErrElementNotFound indicates a selector matched nothing on the page.
type ErrElementNotFound struct {
	Selector string
}

func (e ErrElementNotFound) Error() string {
	return fmt.Sprintf("element_not_found: %s", e.Selector)
}

// ErrUnsupported indicates the session cannot perform an interaction,
// e.g. clicking a button without a browser.
type ErrUnsupported struct {
	Op string
}

func (e ErrUnsupported) Error() string {
	return fmt.Sprintf("unsupported: %s", e.Op)
}

// IsElementNotFound reports whether err is a missing element.
func IsElementNotFound(err error) bool {
	var nf ErrElementNotFound
	return errors.As(err, &nf)
}

// ErrorType returns a short label for err, used as a metric label.
func ErrorType(err error) string {
	if err == nil {
		return "unknown"
	}
	var timeout ErrTimeout
	if errors.As(err, &timeout) || errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	var conn ErrConnection
	if errors.As(err, &conn) {
		return "connection"
	}
	var forbidden ErrForbidden
	if errors.As(err, &forbidden) {
		return "forbidden"
	}
	var notFound ErrNotFound
	if errors.As(err, &notFound) {
		return "not_found"
	}
	var rateLimited ErrRateLimited
	if errors.As(err, &rateLimited) {
		return "rate_limited"
	}
	if IsElementNotFound(err) {
		return "element_not_found"
	}
	var unsupported ErrUnsupported
	if errors.As(err, &unsupported) {
		return "unsupported"
	}
	return "other"
}

// Retryable reports whether a failed navigation is worth another attempt.
func Retryable(err error) bool {
	switch ErrorType(err) {
	case "timeout", "connection", "rate_limited", "other":
		return true
	default:
		return false
	}
}
