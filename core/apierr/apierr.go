// Package apierr defines the errors the CRUD engine surfaces to clients.
//
// Every error carries the HTTP status it maps to. Errors without a declared
// status are reported as 500 by the error stage.
package apierr

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// Error is an error with a declared HTTP status.
type Error struct {
	Status  int
	Message string

	// cause holds the stack captured at construction, or the wrapped error.
	cause error
}

// New creates an error with the given status and message.
func New(status int, message string) *Error {
	return &Error{
		Status:  status,
		Message: message,
		cause:   errors.New(message),
	}
}

// Wrap attaches a status and message to err.
func Wrap(err error, status int, message string) *Error {
	return &Error{
		Status:  status,
		Message: message,
		cause:   errors.WithStack(err),
	}
}

// NotFound reports an identity lookup that found nothing.
func NotFound(message string) *Error {
	if message == "" {
		message = "Not found"
	}
	return New(http.StatusNotFound, message)
}

// Validation reports a schema-level rejection.
func Validation(message string) *Error {
	if message == "" {
		message = "Validation failed"
	}
	return New(http.StatusBadRequest, message)
}

// Validationf is Validation with formatting.
func Validationf(format string, args ...any) *Error {
	return Validation(fmt.Sprintf(format, args...))
}

// Error returns the client-facing message.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// StatusCode returns the declared HTTP status.
func (e *Error) StatusCode() int {
	return e.Status
}

// Label returns the envelope status for the error: "fail" for client
// errors, "error" for everything else.
func (e *Error) Label() string {
	return Label(e.Status)
}

// Label returns "fail" for 4xx statuses and "error" otherwise.
func Label(status int) string {
	if status >= 400 && status < 500 {
		return "fail"
	}
	return "error"
}

// StatusOf returns the declared status of err, or 500.
func StatusOf(err error) int {
	var sc interface{ StatusCode() int }
	if errors.As(err, &sc) {
		if status := sc.StatusCode(); status > 0 {
			return status
		}
	}
	return http.StatusInternalServerError
}

// IsNotFound reports whether err declares a 404 status.
func IsNotFound(err error) bool {
	return err != nil && StatusOf(err) == http.StatusNotFound
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// Stack returns the formatted stack trace recorded in err's chain, or "".
func Stack(err error) string {
	var st stackTracer
	if !errors.As(err, &st) {
		return ""
	}
	return fmt.Sprintf("%+v", st)
}
