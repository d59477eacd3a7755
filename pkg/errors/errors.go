package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType classifies failures seen while talking to the platform
type ErrorType string

const (
	ErrorTypeNetwork              ErrorType = "network"
	ErrorTypeRateLimit            ErrorType = "rate_limit"
	ErrorTypePlatformRejection    ErrorType = "platform_rejection"
	ErrorTypeParsing              ErrorType = "parsing"
	ErrorTypeDecodeFailure        ErrorType = "decode_failure"
	ErrorTypeNotFound             ErrorType = "not_found"
	ErrorTypeSignatureUnavailable ErrorType = "signature_unavailable"
	ErrorTypeUnknown              ErrorType = "unknown"
)

// Error is a classified failure. Code carries the HTTP status for network
// errors and the envelope code for platform rejections.
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error (code %d): %s: %v", e.Type, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error
func New(t ErrorType, code int, message string) *Error {
	return &Error{Type: t, Code: code, Message: message}
}

// Wrap classifies an underlying error
func Wrap(t ErrorType, err error, message string) *Error {
	return &Error{Type: t, Message: message, Err: err}
}

// Rejection builds the error for a non-zero envelope code. Rate-limit
// codes get their own type so callers can tell them apart in logs.
func Rejection(code int, message string) *Error {
	t := ErrorTypePlatformRejection
	if code == -412 || code == -352 || code == -509 {
		t = ErrorTypeRateLimit
	}
	return &Error{Type: t, Code: code, Message: message}
}

// TypeOf returns the classification of err, or ErrorTypeUnknown
func TypeOf(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// CodeOf returns the code attached to err, or 0
func CodeOf(err error) int {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return 0
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypePlatformRejection, ErrorTypeParsing:
		return true
	case ErrorTypeDecodeFailure, ErrorTypeNotFound:
		return false
	default:
		return false
	}
}

// IsRetryableError reports whether err is a classified retryable failure.
// Unclassified errors (timeouts from net/http, for instance) are retried too.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	var e *Error
	if stderrors.As(err, &e) {
		return IsRetryable(e.Type)
	}
	return true
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 412, 429: // Bilibili answers 412 when it flags a client
		return true
	case 500, 502, 503, 504:
		return true
	case 401, 403, 404:
		return false
	default:
		return statusCode >= 500
	}
}

// IsRetryableCode checks an envelope code. Only "not found" style codes
// are final; everything else may be a transient rejection.
func IsRetryableCode(code int) bool {
	switch code {
	case 0:
		return false
	case -404, 62002, 62004, 12002:
		return false
	default:
		return true
	}
}
