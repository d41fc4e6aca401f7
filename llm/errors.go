package llm

import (
	"errors"
	"fmt"
)

// Kind is the stable discriminator every Error carries, suitable for a
// switch in caller code.
type Kind string

const (
	KindNetwork       Kind = "network"
	KindProvider      Kind = "provider"
	KindSerialization Kind = "serialization"
	KindValidation    Kind = "validation"
	KindToolExecution Kind = "tool_execution"
	KindTimeout       Kind = "timeout"
	KindNotFound      Kind = "not_found"
	KindCanceled      Kind = "canceled"
)

// Error is the canonical error type returned across the runtime. It always
// carries a Kind and a human-readable message, and chains an optional
// underlying cause.
type Error struct {
	Kind       Kind
	Message    string
	Backend    string  // set for KindProvider
	RetryAfter float64 // seconds; set for KindProvider when the backend signaled one, <=0 otherwise
	Cause      error

	// retriableStatus records that a KindProvider error came from an HTTP
	// 429 or 5xx response, even when no Retry-After value was present.
	retriableStatus bool
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Retriable reports whether the retry layer should treat this error as
// transient, per the propagation policy in the error-handling design.
func (e *Error) Retriable() bool {
	switch e.Kind {
	case KindNetwork, KindTimeout:
		return true
	case KindProvider:
		return e.RetryAfter > 0 || e.httpStatusRetriable()
	default:
		return false
	}
}

func (e *Error) httpStatusRetriable() bool {
	return e.retriableStatus
}

func NewNetworkError(message string, cause error) *Error {
	return &Error{Kind: KindNetwork, Message: message, Cause: cause}
}

func NewProviderError(backend, message string, retryAfter float64, retriableStatus bool) *Error {
	return &Error{Kind: KindProvider, Message: message, Backend: backend, RetryAfter: retryAfter, retriableStatus: retriableStatus}
}

func NewSerializationError(message string, cause error) *Error {
	return &Error{Kind: KindSerialization, Message: message, Cause: cause}
}

func NewValidationError(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

func NewToolExecutionError(name, message string, cause error) *Error {
	return &Error{Kind: KindToolExecution, Message: fmt.Sprintf("tool %q: %s", name, message), Cause: cause}
}

func NewTimeoutError(message string) *Error {
	return &Error{Kind: KindTimeout, Message: message}
}

func NewNotFoundError(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

func NewCanceledError(message string) *Error {
	return &Error{Kind: KindCanceled, Message: message}
}

// IsKind reports whether err is (or wraps) an *Error of the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
