// Package tfserr defines the errno-shaped error type every TFS layer
// returns, so callers can map failures to POSIX-style codes at the upcall
// boundary without string-matching error messages.
package tfserr

import "fmt"

// Code identifies the POSIX-style error category a failure belongs to.
type Code string

const (
	ENOENT  Code = "no such file or directory"
	ENOTDIR Code = "not a directory"
	EISDIR  Code = "is a directory"
	EEXIST  Code = "file exists"
	ENOSPC  Code = "no space left on device"
	ENOMEM  Code = "cannot allocate memory"
	EIO     Code = "input/output error"
	EINVAL  Code = "invalid argument"
	EALREADY Code = "operation already in progress"
)

func (c Code) Error() string { return string(c) }

// New creates an *Error carrying Code c with its default message.
func (c Code) New() *Error {
	return &Error{Code: c}
}

// WithMessage creates an *Error carrying Code c with a custom message.
func (c Code) WithMessage(msg string) *Error {
	return &Error{Code: c, message: msg}
}

// Wrap creates an *Error carrying Code c that wraps an underlying cause.
func (c Code) Wrap(cause error) *Error {
	return &Error{Code: c, cause: cause}
}

// Error is a wrapper around a Code with an optional message override and an
// optional wrapped cause, mirroring dargueta-disko's DriverError.
type Error struct {
	Code    Code
	message string
	cause   error
}

func (e *Error) Error() string {
	switch {
	case e.message != "":
		return e.message
	case e.cause != nil:
		return fmt.Sprintf("%s: %s", e.Code.Error(), e.cause.Error())
	default:
		return e.Code.Error()
	}
}

func (e *Error) Unwrap() error { return e.cause }

// Is reports whether target is the same Code as e, so callers can use
// errors.Is(err, tfserr.ENOENT) instead of comparing messages.
func (e *Error) Is(target error) bool {
	code, ok := target.(Code)
	return ok && e.Code == code
}
