// Package apperr defines the typed error vocabulary shared by every core
// component. Engines and services return these instead of bare errors so
// the HTTP boundary can translate them to status codes without string
// matching.
package apperr

import "fmt"

// Type is one of the taxonomy entries a coordinator maps to a status code.
type Type string

const (
	InvalidArgument  Type = "invalid_argument"
	Unauthorized     Type = "unauthorized"
	NotFound         Type = "not_found"
	Conflict         Type = "conflict"
	ValidationFailed Type = "validation_failed"
	RateLimited      Type = "rate_limited"
	Internal         Type = "internal"
)

// Error carries a structured failure: a taxonomy type, a human message and
// the operation/experiment context a structured logger needs.
type Error struct {
	ErrType    Type
	Message    string
	Operation  string
	Experiment string
	RequestID  string
}

func (e *Error) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("%s: %s: %s", e.Operation, e.ErrType, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.ErrType, e.Message)
}

// New builds an Error of the given type.
func New(t Type, format string, args ...interface{}) *Error {
	return &Error{ErrType: t, Message: fmt.Sprintf(format, args...)}
}

// WithContext returns a copy annotated with the operation and experiment id
// that produced it, for structured logging at the call site.
func (e *Error) WithContext(operation, experimentID string) *Error {
	cp := *e
	cp.Operation = operation
	cp.Experiment = experimentID
	return &cp
}

func NotFoundf(format string, args ...interface{}) *Error {
	return New(NotFound, format, args...)
}

func InvalidArgumentf(format string, args ...interface{}) *Error {
	return New(InvalidArgument, format, args...)
}

func Conflictf(format string, args ...interface{}) *Error {
	return New(Conflict, format, args...)
}

func ValidationFailedf(format string, args ...interface{}) *Error {
	return New(ValidationFailed, format, args...)
}

func Unauthorizedf(format string, args ...interface{}) *Error {
	return New(Unauthorized, format, args...)
}

func Internalf(format string, args ...interface{}) *Error {
	return New(Internal, format, args...)
}

// As reports whether err is an *Error and returns it.
func As(err error) (*Error, bool) {
	ae, ok := err.(*Error)
	return ae, ok
}

// StatusCode maps a Type to the HTTP status the transport layer should use.
func StatusCode(t Type) int {
	switch t {
	case InvalidArgument:
		return 400
	case Unauthorized:
		return 401
	case NotFound:
		return 404
	case Conflict:
		return 409
	case ValidationFailed:
		return 422
	case RateLimited:
		return 429
	default:
		return 500
	}
}
