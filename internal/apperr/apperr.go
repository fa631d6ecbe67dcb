// Package apperr defines the error kinds surfaced by the interview core.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is a stable error category. A Kind is itself an error so callers can
// match with errors.Is(err, apperr.NotFound).
type Kind string

const (
	InvalidInput        Kind = "invalid_input"
	NotFound            Kind = "not_found"
	AlreadyEnded        Kind = "already_ended"
	ReportNotReady      Kind = "report_not_ready"
	GenerationFailed    Kind = "generation_failed"
	UpstreamUnavailable Kind = "upstream_unavailable"
	UpstreamRejected    Kind = "upstream_rejected"
	MalformedResponse   Kind = "malformed_response"
	Internal            Kind = "internal"
)

func (k Kind) Error() string { return string(k) }

// Error pairs a Kind with a message that is safe to show to callers.
// The cause is kept for logs and errors.Is/As but never rendered by Error().
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches cause to a new typed error.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

func (e *Error) Unwrap() []error {
	if e.cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.cause}
}

// Cause returns the underlying error, if any. Intended for logging only.
func (e *Error) Cause() error { return e.cause }

// KindOf returns the outermost Kind in err's chain, or Internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	return Internal
}

// Message returns the caller-safe message for err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Error()
	}
	var k Kind
	if errors.As(err, &k) {
		return string(k)
	}
	return "internal error"
}
