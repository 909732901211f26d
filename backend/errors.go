package backend

import (
	"fmt"
	"strings"
)

// BackendError is the base error type for all backend errors.
type BackendError struct {
	Message   string
	Cause     error
	Retryable bool
}

func (e *BackendError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *BackendError) Unwrap() error {
	return e.Cause
}

// Concrete error types.

// ConnectionError means the backend host could not be reached.
type ConnectionError struct{ BackendError }

// RequestTimeoutError means one round-trip exceeded its deadline.
type RequestTimeoutError struct{ BackendError }

// ServerError means the backend returned a 5xx-class failure.
type ServerError struct{ BackendError }

// ModelNotFoundError means the requested model is not pulled on the host.
type ModelNotFoundError struct{ BackendError }

// InvalidRequestError means the backend rejected the request as malformed.
type InvalidRequestError struct{ BackendError }

// ConfigurationError means the client itself was misconfigured.
type ConfigurationError struct{ BackendError }

// AbortError means the caller's context was cancelled mid-request.
type AbortError struct{ BackendError }

// IsRetryable returns true if the error is safe to retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch e := err.(type) {
	case *ConnectionError:
		return true
	case *RequestTimeoutError:
		return true
	case *ServerError:
		return true
	case *ModelNotFoundError:
		return false
	case *InvalidRequestError:
		return false
	case *ConfigurationError:
		return false
	case *AbortError:
		return false
	case *BackendError:
		return e.Retryable
	default:
		// Unknown errors default to retryable: a local backend fails
		// transiently far more often than it fails permanently.
		return true
	}
}

// classifyError converts a raw provider error into the backend taxonomy
// based on its message content. gollm does not surface status codes for the
// Ollama provider, so classification is textual.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	lower := strings.ToLower(msg)
	base := BackendError{Message: msg, Cause: err}

	switch {
	case strings.Contains(lower, "connection refused"),
		strings.Contains(lower, "no such host"),
		strings.Contains(lower, "dial tcp"):
		base.Retryable = true
		return &ConnectionError{BackendError: base}
	case strings.Contains(lower, "context deadline exceeded"),
		strings.Contains(lower, "timeout"):
		base.Retryable = true
		return &RequestTimeoutError{BackendError: base}
	case strings.Contains(lower, "context canceled"):
		return &AbortError{BackendError: base}
	case strings.Contains(lower, "model") && strings.Contains(lower, "not found"),
		strings.Contains(lower, "404"):
		return &ModelNotFoundError{BackendError: base}
	case strings.Contains(lower, "400"), strings.Contains(lower, "invalid request"):
		return &InvalidRequestError{BackendError: base}
	case strings.Contains(lower, "500"), strings.Contains(lower, "502"),
		strings.Contains(lower, "503"), strings.Contains(lower, "internal server"):
		base.Retryable = true
		return &ServerError{BackendError: base}
	default:
		base.Retryable = true
		return &base
	}
}
