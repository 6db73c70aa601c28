package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType represents different types of errors that can occur
type ErrorType string

const (
	// Collection taxonomy
	ErrorTypeTransientFetch ErrorType = "transient_fetch"
	ErrorTypeTerminalKey    ErrorType = "terminal_key"
	ErrorTypeStorageIO      ErrorType = "storage_io"
	ErrorTypeCorruptRecord  ErrorType = "corrupt_record"

	// Producer-side API errors
	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeRateLimit   ErrorType = "rate_limit"
	ErrorTypeAuth        ErrorType = "auth"
	ErrorTypeParsing     ErrorType = "parsing"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeServerError ErrorType = "server_error"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Error represents a classified error with an optional wrapped cause
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s error: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeTransientFetch, ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeServerError, ErrorTypeStorageIO:
		return true
	case ErrorTypeTerminalKey, ErrorTypeAuth, ErrorTypeNotFound, ErrorTypeParsing, ErrorTypeCorruptRecord:
		return false
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 429:
		return true
	case 400, 401, 403, 404:
		return false
	default:
		return statusCode >= 500
	}
}

// TypeOf returns the ErrorType carried by err, or ErrorTypeUnknown
func TypeOf(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// Is reports whether err carries the given type anywhere in its chain
func Is(err error, errorType ErrorType) bool {
	var e *Error
	return stderrors.As(err, &e) && e.Type == errorType
}

// NewTransient wraps a fetch failure that may succeed on retry
func NewTransient(message string, cause error) *Error {
	return &Error{Type: ErrorTypeTransientFetch, Message: message, Err: cause}
}

// NewTerminal marks a key-scoped failure that retrying will not fix
func NewTerminal(message string, cause error) *Error {
	return &Error{Type: ErrorTypeTerminalKey, Message: message, Err: cause}
}

// NewStorage wraps an append or checkpoint write failure
func NewStorage(message string, cause error) *Error {
	return &Error{Type: ErrorTypeStorageIO, Message: message, Err: cause}
}

// NewCorrupt describes an unreadable entry found while reading a store
func NewCorrupt(message string, cause error) *Error {
	return &Error{Type: ErrorTypeCorruptRecord, Message: message, Err: cause}
}
