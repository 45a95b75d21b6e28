// Package cerr defines the error taxonomy shared across the agent:
// a closed code set, a structured error carrying a user-facing message and a
// wrapped cause, and the mapping to HTTP statuses and event severities.
package cerr

import (
	"errors"
	"fmt"
	"net/http"
)

type Code int

const (
	OK Code = iota
	Canceled
	Unknown
	InvalidArgument
	DeadlineExceeded
	NotFound
	AlreadyExists
	FailedPrecondition
	ResourceExhausted
	Unimplemented
	Internal
	Unavailable
)

func (c Code) String() string {
	switch c {
	case OK:
		return "ok"
	case Canceled:
		return "canceled"
	case InvalidArgument:
		return "invalid_argument"
	case DeadlineExceeded:
		return "deadline_exceeded"
	case NotFound:
		return "not_found"
	case AlreadyExists:
		return "already_exists"
	case FailedPrecondition:
		return "failed_precondition"
	case ResourceExhausted:
		return "resource_exhausted"
	case Unimplemented:
		return "unimplemented"
	case Internal:
		return "internal"
	case Unavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Error is a coded error with a message safe to show to callers.
// The cause is kept for logs and errors.Is/As chains.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func NewError(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// CodeOf extracts the Code from an error chain, defaulting to Unknown.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return Unknown
}

// MessageOf extracts the user-facing message, falling back to a generic one
// so internal details never leak to callers by accident.
func MessageOf(err error) string {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Message
	}
	return "internal error"
}

var codeToHTTP = map[Code]int{
	OK:                 http.StatusOK,
	Canceled:           499,
	Unknown:            http.StatusInternalServerError,
	InvalidArgument:    http.StatusBadRequest,
	DeadlineExceeded:   http.StatusGatewayTimeout,
	NotFound:           http.StatusNotFound,
	AlreadyExists:      http.StatusConflict,
	FailedPrecondition: http.StatusPreconditionFailed,
	ResourceExhausted:  http.StatusTooManyRequests,
	Unimplemented:      http.StatusNotImplemented,
	Internal:           http.StatusInternalServerError,
	Unavailable:        http.StatusServiceUnavailable,
}

// HTTPStatus maps an error to the status code for the JSON boundary.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if s, ok := codeToHTTP[CodeOf(err)]; ok {
		return s
	}
	return http.StatusInternalServerError
}
