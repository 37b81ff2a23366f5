// Package apperr defines the error kinds shared across the simulation core
// and the HTTP surface, so handlers map errors to status codes by kind
// instead of matching on message substrings.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	InvalidInput          Kind = "invalid_input"
	NotFound              Kind = "not_found"
	ProviderUnavailable   Kind = "provider_unavailable"
	ProviderTimeout       Kind = "provider_timeout"
	ProviderUpstreamError Kind = "provider_upstream_error"
	DecodeError           Kind = "decode_error"
	SimulationTimeout     Kind = "simulation_timeout"
	Internal              Kind = "internal"
)

// Error is the sum-type error carried through the core: a Kind plus a
// human message and an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Status  int // provider HTTP status, when Kind == ProviderUpstreamError
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func Invalid(format string, args ...interface{}) *Error {
	return New(InvalidInput, fmt.Sprintf(format, args...))
}

func NotFoundf(format string, args ...interface{}) *Error {
	return New(NotFound, fmt.Sprintf(format, args...))
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// As extracts the *Error from err, if any.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
