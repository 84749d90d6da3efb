// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for the hioload-aio core.

package api

import (
	"errors"
	"fmt"
	"syscall"
)

// Common errors used across the library. Structured *Error values match the
// sentinel of their code through errors.Is.
var (
	ErrClosed            = errors.New("resource is closed")
	ErrAlreadyInProgress = errors.New("operation already in progress")
	ErrTimeout           = errors.New("operation timeout")
	ErrAsynchronousClose = errors.New("channel closed asynchronously")
	ErrStale             = errors.New("stale result context")
	ErrNativeFailure     = errors.New("native call failed")
	ErrCancelled         = errors.New("operation cancelled")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotSupported      = errors.New("operation not supported")
)

// ErrorCode represents specific error conditions in the library.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeClosed
	ErrCodeAlreadyInProgress
	ErrCodeTimeout
	ErrCodeAsynchronousClose
	ErrCodeStale
	ErrCodeNativeFailure
	ErrCodeCancelled
	ErrCodeInvalidArgument
	ErrCodeNotSupported
)

var codeSentinels = map[ErrorCode]error{
	ErrCodeClosed:            ErrClosed,
	ErrCodeAlreadyInProgress: ErrAlreadyInProgress,
	ErrCodeTimeout:           ErrTimeout,
	ErrCodeAsynchronousClose: ErrAsynchronousClose,
	ErrCodeStale:             ErrStale,
	ErrCodeNativeFailure:     ErrNativeFailure,
	ErrCodeCancelled:         ErrCancelled,
	ErrCodeInvalidArgument:   ErrInvalidArgument,
	ErrCodeNotSupported:      ErrNotSupported,
}

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
	// Errno is the OS error code of a NativeFailure, zero otherwise.
	Errno syscall.Errno
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Errno != 0 {
		msg = fmt.Sprintf("%s: %s (errno %d)", msg, e.Errno.Error(), int(e.Errno))
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if len(e.Context) == 0 {
		return msg
	}
	return fmt.Sprintf("%s (context: %+v)", msg, e.Context)
}

// Is reports whether target is the sentinel for e's code.
func (e *Error) Is(target error) bool {
	if s, ok := codeSentinels[e.Code]; ok && s == target {
		return true
	}
	return false
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WithCause attaches the underlying cause.
func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

// NativeError wraps an OS error code returned by the native primitive op.
// A nil err yields nil. Errors that are not an Errno become the cause.
func NativeError(op string, err error) error {
	if err == nil {
		return nil
	}
	e := NewError(ErrCodeNativeFailure, op)
	var errno syscall.Errno
	if errors.As(err, &errno) {
		e.Errno = errno
	} else {
		e.Cause = err
	}
	return e
}

// AsynchronousClose builds the uniform error raised when a blocked caller's
// channel was closed, or its wait interrupted, before the call completed.
func AsynchronousClose(cause error) error {
	return NewError(ErrCodeAsynchronousClose, ErrAsynchronousClose.Error()).WithCause(cause)
}

// ErrnoOf extracts the OS error code carried by err, if any.
func ErrnoOf(err error) (syscall.Errno, bool) {
	var e *Error
	if errors.As(err, &e) && e.Errno != 0 {
		return e.Errno, true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno, true
	}
	return 0, false
}
