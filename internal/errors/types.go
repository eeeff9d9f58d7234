// Package errors defines the error taxonomy shared by the router, tools, and
// external adapters, plus transient/permanent classification for retry logic.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"syscall"
)

// Kind classifies an error for propagation policy decisions.
type Kind int

const (
	// KindParse - command syntax violation.
	KindParse Kind = iota
	// KindValidation - schema mismatch on tool input or LLM output.
	KindValidation
	// KindNotFound - entity or preference key missing where required.
	KindNotFound
	// KindConflict - optimistic-concurrency failure on atomic increment/consumption.
	KindConflict
	// KindTimeout - deadline exceeded on an external call.
	KindTimeout
	// KindTransport - external server unreachable or protocol violation.
	KindTransport
	// KindCancelled - caller cancelled.
	KindCancelled
	// KindInternal - bug or invariant violation.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindParse:
		return "parse"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindTimeout:
		return "timeout"
	case KindTransport:
		return "transport"
	case KindCancelled:
		return "cancelled"
	default:
		return "internal"
	}
}

// Error carries a kind plus a user-presentable message.
type Error struct {
	Kind    Kind
	Message string // short, user-safe text
	Err     error  // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an Error of the given kind wrapping a cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the Kind of an error, defaulting to KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// UserMessage renders an error as the short text shown to users. Stack traces
// and wrapped causes never leak.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		switch e.Kind {
		case KindParse:
			return "Invalid command: " + e.Message
		case KindValidation, KindNotFound, KindConflict:
			return e.Message
		case KindTimeout:
			return "That took too long to complete. Please try again."
		case KindTransport:
			return "I couldn't reach an external service. Please try again in a moment."
		}
	}
	return "Something went wrong on my end. Please try again."
}

// TransientError represents an error that can be retried.
type TransientError struct {
	Err        error
	RetryAfter int    // seconds to wait before retry, from Retry-After
	StatusCode int    // HTTP status code if applicable
	Message    string // LLM-friendly message
}

func (e *TransientError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("transient error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError wraps err as explicitly retryable.
func NewTransientError(err error, message string) *TransientError {
	return &TransientError{Err: err, Message: message}
}

// PermanentError represents an error that should not be retried.
type PermanentError struct {
	Err        error
	StatusCode int
	Message    string
}

func (e *PermanentError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("permanent error: %v", e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// NewPermanentError wraps err as explicitly non-retryable.
func NewPermanentError(err error, message string) *PermanentError {
	return &PermanentError{Err: err, Message: message}
}

// IsTransient checks if an error is retry-able.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var transientErr *TransientError
	if errors.As(err, &transientErr) {
		return true
	}
	var permanentErr *PermanentError
	if errors.As(err, &permanentErr) {
		return false
	}

	if isNetworkError(err) {
		return true
	}
	if statusCode := extractHTTPStatusCode(err); statusCode > 0 {
		return isTransientHTTPStatus(statusCode)
	}
	if isSyscallError(err) {
		return true
	}

	return false
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"connection refused",
		"connection reset",
		"no such host",
		"network is unreachable",
		"context deadline exceeded",
		"timeout",
		"i/o timeout",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func isSyscallError(err error) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.ETIMEDOUT, syscall.EPIPE:
			return true
		}
	}
	return false
}

// extractHTTPStatusCode scans an error message for a 3-digit HTTP status.
func extractHTTPStatusCode(err error) int {
	fields := strings.FieldsFunc(err.Error(), func(r rune) bool {
		return r < '0' || r > '9'
	})
	for _, field := range fields {
		if len(field) != 3 {
			continue
		}
		code, convErr := strconv.Atoi(field)
		if convErr != nil {
			continue
		}
		if code >= 400 && code < 600 {
			return code
		}
	}
	return 0
}

func isTransientHTTPStatus(code int) bool {
	switch code {
	case 408, 429, 500, 502, 503, 504:
		return true
	}
	return false
}
