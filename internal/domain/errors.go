package domain

import (
	"errors"
	"fmt"
)

// Code identifies a class of failure for programmatic handling.
type Code string

const (
	CodeUnknownTool    Code = "unknown_tool"
	CodeValidation     Code = "validation"
	CodeCommandFailure Code = "command_failure"
	CodeIOFailure      Code = "io_failure"
	CodeConfig         Code = "config"
)

// Error wraps an underlying error with a code and message.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message == "" {
		if e.Err != nil {
			return e.Err.Error()
		}
		return string(e.Code)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewError creates a coded error with a message.
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError creates a coded error that wraps an underlying error.
func WrapError(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UnknownTool reports a call for a name that is not in the catalog.
func UnknownTool(name string) *Error {
	return NewError(CodeUnknownTool, "Unknown tool: "+name)
}

// Validationf reports caller-supplied arguments that violate a precondition.
func Validationf(format string, args ...any) *Error {
	return NewError(CodeValidation, fmt.Sprintf(format, args...))
}

// CommandFailure reports a failed external invocation. diagnostic is the
// program's own error text and is kept verbatim; err is only rendered when
// there is no diagnostic.
func CommandFailure(diagnostic string, err error) *Error {
	if diagnostic == "" {
		return WrapError(CodeCommandFailure, "command failed", err)
	}
	return NewError(CodeCommandFailure, "command failed: "+diagnostic)
}

// IOFailure reports an unreadable or unparseable input source.
func IOFailure(message string, err error) *Error {
	return WrapError(CodeIOFailure, message, err)
}

// ConfigErrorf reports a startup configuration defect.
func ConfigErrorf(format string, args ...any) *Error {
	return NewError(CodeConfig, fmt.Sprintf(format, args...))
}
