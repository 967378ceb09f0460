package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// APIError represents a standardized API error response
type APIError struct {
	Code    ErrorCode  `json:"code"`
	Message string     `json:"message"`
	Field   string     `json:"field,omitempty"`
	Details string     `json:"details,omitempty"`
	Status  int        `json:"-"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field: %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// MarshalJSON customizes JSON encoding
func (e *APIError) MarshalJSON() ([]byte, error) {
	type Alias APIError
	return json.Marshal(&struct {
		*Alias
	}{
		Alias: (*Alias)(e),
	})
}

// NotFound creates a NOT_FOUND error
func NotFound(resource string) *APIError {
	return &APIError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Status:  http.StatusNotFound,
	}
}

// Unauthorized creates an UNAUTHORIZED error
func Unauthorized(message string) *APIError {
	return &APIError{
		Code:    ErrUnauthorized,
		Message: message,
		Status:  http.StatusUnauthorized,
	}
}

// Forbidden creates a FORBIDDEN error
func Forbidden(message string) *APIError {
	return &APIError{
		Code:    ErrForbidden,
		Message: message,
		Status:  http.StatusForbidden,
	}
}

// Conflict creates a CONFLICT error
func Conflict(resource string) *APIError {
	return &APIError{
		Code:    ErrConflict,
		Message: fmt.Sprintf("%s already exists or is in an invalid state", resource),
		Status:  http.StatusConflict,
	}
}

// ValidationError creates a VALIDATION_ERROR
func ValidationError(field, message string) *APIError {
	return &APIError{
		Code:    ErrValidation,
		Message: message,
		Field:   field,
		Status:  http.StatusUnprocessableEntity,
	}
}

// BadRequest creates a BAD_REQUEST error
func BadRequest(message string) *APIError {
	return &APIError{
		Code:    ErrBadRequest,
		Message: message,
		Status:  http.StatusBadRequest,
	}
}

// InternalError creates an INTERNAL_ERROR
func InternalError(message string) *APIError {
	return &APIError{
		Code:    ErrInternalError,
		Message: message,
		Status:  http.StatusInternalServerError,
	}
}

// AlreadyExists creates an ALREADY_EXISTS error
func AlreadyExists(resource string) *APIError {
	return &APIError{
		Code:    ErrAlreadyExists,
		Message: fmt.Sprintf("%s already exists", resource),
		Status:  http.StatusConflict,
	}
}

// RateLimited creates a RATE_LIMITED error
func RateLimited(message string) *APIError {
	if message == "" {
		message = "rate limit exceeded"
	}
	return &APIError{
		Code:    ErrRateLimited,
		Message: message,
		Status:  http.StatusTooManyRequests,
	}
}

// ServiceUnavailable creates a SERVICE_UNAVAILABLE error
func ServiceUnavailable(service string) *APIError {
	return &APIError{
		Code:    ErrServiceUnavail,
		Message: fmt.Sprintf("%s is temporarily unavailable", service),
		Status:  http.StatusServiceUnavailable,
	}
}

// Timeout creates a TIMEOUT error
func Timeout(operation string) *APIError {
	return &APIError{
		Code:    ErrTimeout,
		Message: fmt.Sprintf("%s timed out", operation),
		Status:  http.StatusGatewayTimeout,
	}
}

// WithDetails adds additional details to an error
func (e *APIError) WithDetails(details string) *APIError {
	e.Details = details
	return e
}

// DecodeError creates a DECODE_ERROR: the audio bytes could not be decoded
// to PCM samples. Always fatal for the operation that raised it.
func DecodeError(reason string) *APIError {
	return &APIError{
		Code:    ErrDecodeError,
		Message: fmt.Sprintf("audio decode failed: %s", reason),
		Status:  http.StatusBadRequest,
	}
}

// AdapterErr creates an ADAPTER_ERROR: an external metadata/audio adapter
// failed. Fails the child task; the parent (e.g. playlist) continues.
func AdapterErr(source, reason string) *APIError {
	return &APIError{
		Code:    ErrAdapterError,
		Message: fmt.Sprintf("adapter %s failed: %s", source, reason),
		Status:  http.StatusBadGateway,
	}
}

// StoreContentionErr creates a STORE_CONTENTION error for a transient,
// retryable write conflict. Callers should retry with backoff before
// escalating to StoreErr.
func StoreContentionErr(op string) *APIError {
	return &APIError{
		Code:    ErrStoreContention,
		Message: fmt.Sprintf("store contention on %s", op),
		Status:  http.StatusServiceUnavailable,
	}
}

// StoreErr creates a STORE_ERROR: a persistent storage failure, fatal for
// the enclosing task.
func StoreErr(op string, cause error) *APIError {
	msg := fmt.Sprintf("store operation %s failed", op)
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, cause)
	}
	return &APIError{
		Code:    ErrStoreError,
		Message: msg,
		Status:  http.StatusInternalServerError,
	}
}

// EmptyFingerprintErr creates an EMPTY_FINGERPRINT error. Recognition
// callers should treat it as "no match"; ingestion callers should refuse
// to store the track.
func EmptyFingerprintErr() *APIError {
	return &APIError{
		Code:    ErrEmptyFingerprint,
		Message: "no fingerprint hashes produced from audio",
		Status:  http.StatusUnprocessableEntity,
	}
}
