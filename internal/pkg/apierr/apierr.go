package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies why an operation was rejected. Every kind is terminal to the
// requested operation; the engine never retries internally.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindConflict     Kind = "conflict"
	KindState        Kind = "state"
	KindForbidden    Kind = "forbidden"
	KindPrecondition Kind = "precondition"
	KindNotFound     Kind = "not_found"
)

type Error struct {
	Kind    Kind
	Message string
	// Details enumerates the specific unmet conditions: blocking release
	// versions, missing requirement ids, the current lifecycle state.
	Details []string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) WithDetails(details ...string) *Error {
	e.Details = append(e.Details, details...)
	return e
}

func (e *Error) WithCause(err error) *Error {
	e.Err = err
	return e
}

func Validation(format string, args ...interface{}) *Error {
	return New(KindValidation, format, args...)
}
func Conflict(format string, args ...interface{}) *Error {
	return New(KindConflict, format, args...)
}
func State(format string, args ...interface{}) *Error {
	return New(KindState, format, args...)
}
func Forbidden(format string, args ...interface{}) *Error {
	return New(KindForbidden, format, args...)
}
func Precondition(format string, args ...interface{}) *Error {
	return New(KindPrecondition, format, args...)
}
func NotFound(format string, args ...interface{}) *Error {
	return New(KindNotFound, format, args...)
}

// KindOf returns the kind of err if it is (or wraps) an *Error, else "".
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps an error kind to the status the handlers respond with.
// Unknown kinds (plain errors) map to 500.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindState:
		return http.StatusConflict
	case KindForbidden:
		return http.StatusForbidden
	case KindPrecondition:
		return http.StatusUnprocessableEntity
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
