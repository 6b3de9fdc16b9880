package coach

import (
	"errors"
	"fmt"
)

// ErrorCode represents a categorized error type.
type ErrorCode int

const (
	ErrorUnknown ErrorCode = iota

	// Stream errors (reported by the server or produced while decoding frames)
	ErrorServer
	ErrorDecode
	ErrorSerialization
	ErrorUnhandledType
	ErrorDispatch

	// Client-side errors
	ErrorIllegalTransition
	ErrorConnection
	ErrorDisconnected
	ErrorTimeout
	ErrorInvalidConfig
	ErrorNotConnected
	ErrorInvalidInput
)

// String returns the string representation of an ErrorCode.
func (e ErrorCode) String() string {
	switch e {
	case ErrorUnknown:
		return "unknown"
	case ErrorServer:
		return "server_error"
	case ErrorDecode:
		return "decode_error"
	case ErrorSerialization:
		return "serialization_error"
	case ErrorUnhandledType:
		return "unhandled_type"
	case ErrorDispatch:
		return "dispatch_error"
	case ErrorIllegalTransition:
		return "illegal_transition"
	case ErrorConnection:
		return "connection_error"
	case ErrorDisconnected:
		return "disconnected"
	case ErrorTimeout:
		return "timeout"
	case ErrorInvalidConfig:
		return "invalid_config"
	case ErrorNotConnected:
		return "not_connected"
	case ErrorInvalidInput:
		return "invalid_input"
	default:
		return fmt.Sprintf("unknown_code_%d", e)
	}
}

// CoachError is a structured error with code and context.
type CoachError struct {
	Code    ErrorCode
	Message string
	Wrapped error
}

// Error implements the error interface.
func (e *CoachError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s (wrapped: %v)", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for errors.Unwrap support.
func (e *CoachError) Unwrap() error {
	return e.Wrapped
}

// Is reports whether target is a *CoachError with the same code.
func (e *CoachError) Is(target error) bool {
	t, ok := target.(*CoachError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewError creates a new CoachError with the given code and message.
func NewError(code ErrorCode, message string) *CoachError {
	return &CoachError{
		Code:    code,
		Message: message,
	}
}

// WrapError wraps an existing error with a CoachError.
func WrapError(code ErrorCode, message string, err error) *CoachError {
	return &CoachError{
		Code:    code,
		Message: message,
		Wrapped: err,
	}
}

// CodeOf returns the code of the first CoachError in err's chain, or ErrorUnknown.
func CodeOf(err error) ErrorCode {
	var ce *CoachError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ErrorUnknown
}

// IsServerError checks if an error was reported by the server through an error frame.
func IsServerError(err error) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == ErrorServer
}

// IsStreamError reports whether err describes a bad or failed frame rather
// than a transport problem.
func IsStreamError(err error) bool {
	code := CodeOf(err)
	return code >= ErrorServer && code <= ErrorDispatch
}

// IsConnectionError checks if an error is a connection-related error.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	switch CodeOf(err) {
	case ErrorConnection, ErrorDisconnected, ErrorTimeout:
		return true
	default:
		return false
	}
}
