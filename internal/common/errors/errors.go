// Package errors provides the broker error taxonomy. Every orchestration
// operation converts its failures into an *Error before they reach the
// transport layer.
package errors

import (
	"fmt"
	"net/http"
)

// Kind classifies a broker failure.
type Kind string

const (
	KindAuthMissing         Kind = "AUTH_MISSING"
	KindNotFound            Kind = "NOT_FOUND"
	KindPreconditionFailed  Kind = "PRECONDITION_FAILED"
	KindUpstreamRejected    Kind = "UPSTREAM_REJECTED"
	KindUpstreamUnavailable Kind = "UPSTREAM_UNAVAILABLE"
	KindInternal            Kind = "INTERNAL"
)

// Error is a structured broker error. HTTPStatus mirrors the semantic
// outcome on the wire; Message is what the caller sees in the envelope.
type Error struct {
	Kind       Kind   `json:"kind"`
	HTTPStatus int    `json:"httpStatus"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`

	// ClientInfo is attached on contract-approval failures so the caller
	// can reach the client and resume manually.
	ClientInfo interface{} `json:"client_info,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// WithClientInfo returns a copy of e carrying the client contact info.
func (e *Error) WithClientInfo(info interface{}) *Error {
	clone := *e
	clone.ClientInfo = info
	return &clone
}

func NewAuthMissing() *Error {
	return &Error{
		Kind:       KindAuthMissing,
		HTTPStatus: http.StatusUnauthorized,
		Message:    "Authorization token is missing",
	}
}

func NewNotFound() *Error {
	return &Error{
		Kind:       KindNotFound,
		HTTPStatus: http.StatusNotFound,
		Message:    "Application not found",
	}
}

// NewNotFoundMessage reports a missing resource other than the application
// itself, e.g. a schedule file.
func NewNotFoundMessage(message string) *Error {
	return &Error{
		Kind:       KindNotFound,
		HTTPStatus: http.StatusNotFound,
		Message:    message,
	}
}

func NewPreconditionFailed(message string) *Error {
	return &Error{
		Kind:       KindPreconditionFailed,
		HTTPStatus: http.StatusUnprocessableEntity,
		Message:    message,
	}
}

// NewUpstreamRejected preserves the upstream HTTP status when one was
// reported; status 0 defaults to 400.
func NewUpstreamRejected(status int, message string) *Error {
	if status == 0 {
		status = http.StatusBadRequest
	}
	if message == "" {
		message = "upstream rejected the request"
	}
	return &Error{
		Kind:       KindUpstreamRejected,
		HTTPStatus: status,
		Message:    message,
	}
}

// NewUpstreamUnavailable covers transport failures and unclassified upstream
// errors. Status defaults to 500 so the caller can tell "upstream said no"
// from "upstream unreachable".
func NewUpstreamUnavailable(status int, details string) *Error {
	if status < http.StatusInternalServerError {
		status = http.StatusInternalServerError
	}
	return &Error{
		Kind:       KindUpstreamUnavailable,
		HTTPStatus: status,
		Message:    "upstream service unavailable",
		Details:    details,
	}
}

func NewInternal(err error) *Error {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return &Error{
		Kind:       KindInternal,
		HTTPStatus: http.StatusInternalServerError,
		Message:    "internal error",
		Details:    details,
	}
}

// From normalizes any error into an *Error, wrapping unknown ones as Internal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	if be, ok := err.(*Error); ok {
		return be
	}
	return NewInternal(err)
}

// HTTPStatusOf returns the wire status for any error.
func HTTPStatusOf(err error) int {
	return From(err).HTTPStatus
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	be, ok := err.(*Error)
	return ok && be.Kind == kind
}
