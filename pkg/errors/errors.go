// Package errors classifies the failures of a run. The class decides what a
// runner does with an adapter error: config and capability errors stop the
// link, connection and timeout errors are retried by the connection layer,
// anything else is recorded on the ledger row and the link moves on.
package errors

import (
	"errors"
	"fmt"
)

// ErrorType is the class of an Error.
type ErrorType string

const (
	ErrorTypeInternal   ErrorType = "internal"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeNotFound   ErrorType = "not_found"
	// ErrorTypeTimeout and ErrorTypeConnection are retryable.
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeConnection also covers ledger writes.
	ErrorTypeConnection ErrorType = "connection"
	// ErrorTypeConfig and ErrorTypeCapability are fatal for a link.
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeCapability ErrorType = "capability"
	ErrorTypeData       ErrorType = "data"
	ErrorTypeFile       ErrorType = "file"
	ErrorTypeQuery      ErrorType = "query"
)

// Error is a classified error with optional key/value details.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return string(e.Type) + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// WithDetail records key=value on e and returns e.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{}, 1)
	}
	e.Details[key] = value
	return e
}

// New returns an Error of class t.
func New(t ErrorType, message string) *Error {
	return &Error{Type: t, Message: message}
}

// Newf is New with a format string.
func Newf(t ErrorType, format string, args ...interface{}) *Error {
	return New(t, fmt.Sprintf(format, args...))
}

// Wrap classifies err under t. A nil err stays nil.
func Wrap(err error, t ErrorType, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Type: t, Message: message, Cause: err}
}

// IsType reports whether the outermost Error in err's chain has class t.
func IsType(err error, t ErrorType) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == t
}

// IsRetryable reports whether the outermost Error in err's chain is a
// connection or timeout error.
func IsRetryable(err error) bool {
	return IsType(err, ErrorTypeConnection) || IsType(err, ErrorTypeTimeout)
}

// IsFatal reports whether a config or capability error appears anywhere in
// err's chain.
func IsFatal(err error) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Type == ErrorTypeConfig || e.Type == ErrorTypeCapability {
			return true
		}
		err = e.Cause
	}
	return false
}

// Is, As and Join are the standard helpers, for callers that import this
// package under the name errors.
var (
	Is   = errors.Is
	As   = errors.As
	Join = errors.Join
)
