// Package apperr defines the tagged error used across trapscan. The kind of
// a failure is fixed where it happens and travels with the error value.
package apperr

import (
	"context"
	"errors"
	"net"
	"time"
)

type Kind string

const (
	KindUnknown    Kind = "unknown"
	KindAuth       Kind = "auth"
	KindRateLimit  Kind = "rate_limit"
	KindTimeout    Kind = "timeout"
	KindNetwork    Kind = "network"
	KindNoContent  Kind = "no_content"
	KindUsageLimit Kind = "usage_limit"
	KindInvalid    Kind = "invalid"
	KindForbidden  Kind = "forbidden"
	KindNotFound   Kind = "not_found"
)

// Error carries a Kind plus optional transport details.
type Error struct {
	Kind       Kind
	Message    string
	Status     int           // HTTP status reported upstream, 0 if none
	RetryAfter time.Duration // server supplied cooldown for rate_limit
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return e.Message + ": " + e.Err.Error()
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error with the same kind and no message, so
// errors.Is(err, &Error{Kind: KindAuth}) works as a kind check.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// RateLimited builds a rate_limit error with an optional Retry-After.
func RateLimited(msg string, retryAfter time.Duration) *Error {
	return &Error{Kind: KindRateLimit, Message: msg, Status: 429, RetryAfter: retryAfter}
}

// KindOf returns the kind of err. Untagged context and net errors are
// mapped to timeout and network.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) {
		if ne.Timeout() {
			return KindTimeout
		}
		return KindNetwork
	}
	return KindUnknown
}

// RetryAfterOf returns the server supplied cooldown, zero if absent.
func RetryAfterOf(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

// Is reports whether err carries kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
