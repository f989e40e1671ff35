package common

import (
	"errors"
	"fmt"
	"runtime"
)

type DetailedError interface {
	Detail() string
}

// ErrorKind classifies what went wrong so callers can decide whether
// to abort evidence generation or carry on.
type ErrorKind string

const (
	ErrIO                   ErrorKind = "IOError"
	ErrTimeUnavailable      ErrorKind = "TimeUnavailable"
	ErrNoTimestampAuthority ErrorKind = "NoTimestampAuthority"
	ErrMalformedResponse    ErrorKind = "MalformedResponse"
	ErrTimeout              ErrorKind = "Timeout"
	ErrMisuse               ErrorKind = "Misuse"
)

// Error is a custom error type that includes some additional fields
// to help us debug. See the Detail method.
type Error struct {
	Err     error
	File    string
	IsFatal bool
	Kind    ErrorKind
	Line    int
	Message string
}

func NewError(kind ErrorKind, message string, err error, isFatal bool) *Error {
	_, file, line, _ := runtime.Caller(1)
	return &Error{
		Err:     err,
		File:    file,
		IsFatal: isFatal,
		Kind:    kind,
		Line:    line,
		Message: message,
	}
}

// IOError is shorthand for the most common error in this code base.
// I/O errors on the artifact or its sidecars are always fatal.
func IOError(message string, err error) *Error {
	e := NewError(ErrIO, message, err, true)
	_, e.File, e.Line, _ = runtime.Caller(1)
	return e
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// This returns a detailed error message.
func (e *Error) Detail() string {
	prefix := ""
	if e.IsFatal {
		prefix = "FATAL: "
	}
	underlyingError := ""
	if e.Err != nil {
		underlyingError = fmt.Sprintf("(Underlying error: %s)", e.Err.Error())
	}
	return fmt.Sprintf("%s%s %s [%s:%d] %s",
		prefix, e.Kind, e.Message, e.File, e.Line, underlyingError)
}

// IsKind returns true if err, or any error it wraps, is an *Error of
// the specified kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	for err != nil {
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}

// KindOf returns the kind of the outermost *Error in err's chain,
// or an empty string.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// HttpError is a custom error struct that captures details of errors
// coming from timestamp authorities and other HTTP services.
type HttpError struct {
	Err        error
	Message    string
	Method     string
	StatusCode int
	URL        string
}

func NewHttpError(message string, err error, method, url string, statusCode int) *HttpError {
	return &HttpError{
		Err:        err,
		Message:    message,
		Method:     method,
		URL:        url,
		StatusCode: statusCode,
	}
}

func (e *HttpError) Unwrap() error {
	return e.Err
}

func (e *HttpError) Error() string {
	return e.Message
}

func (e *HttpError) Detail() string {
	underlyingError := ""
	if e.Err != nil {
		underlyingError = fmt.Sprintf("(Underlying error: %s)", e.Err.Error())
	}
	return fmt.Sprintf(
		"%s: %s returned status %d. Message: %s %s",
		e.Method, e.URL, e.StatusCode, e.Message, underlyingError)
}
