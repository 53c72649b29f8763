// Package errors provides the standardized error taxonomy for activity exports.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Upstream API errors
const (
	ErrCodeAuthFailed           ErrorCode = "MARKETO_AUTH_FAILED"
	ErrCodeAuthRetriesExhausted ErrorCode = "MARKETO_AUTH_RETRIES_EXHAUSTED"
	ErrCodeAPIError             ErrorCode = "MARKETO_API_ERROR"
	ErrCodeMalformedPage        ErrorCode = "MARKETO_MALFORMED_PAGE"
	ErrCodeTransportError       ErrorCode = "MARKETO_TRANSPORT_ERROR"
)

// Record / projection errors
const (
	ErrCodeUnsupportedActivityType ErrorCode = "UNSUPPORTED_ACTIVITY_TYPE"
	ErrCodeMalformedActivityDate   ErrorCode = "MALFORMED_ACTIVITY_DATE"
)

// Infrastructure errors
const (
	ErrCodeSinkWriteFailed  ErrorCode = "SINK_WRITE_FAILED"
	ErrCodeCheckpointFailed ErrorCode = "CHECKPOINT_FAILED"
	ErrCodeConfigInvalid    ErrorCode = "CONFIG_INVALID"
	ErrCodeInternal         ErrorCode = "INTERNAL_ERROR"
)

// UpstreamCodeTokenExpired is the upstream error code signalling an expired access token.
const UpstreamCodeTokenExpired = "602"

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	if e.Details == "" {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
}

// Unwrap exposes the underlying cause, if any.
func (e *StandardError) Unwrap() error {
	return e.cause
}

// APIError is a single entry of an upstream "errors" array.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// IsAuthExpired reports whether any upstream error signals an expired access token.
func IsAuthExpired(apiErrors []APIError) bool {
	for _, e := range apiErrors {
		if e.Code == UpstreamCodeTokenExpired {
			return true
		}
	}
	return false
}

// ==========================
// 2. Error Constructors
// ==========================

// NewAuthFailedError wraps a failure to acquire or refresh the access token.
func NewAuthFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeAuthFailed,
		Message:   "Failed to obtain access token",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewAuthRetriesExhaustedError is returned when refreshed tokens keep being rejected as expired.
func NewAuthRetriesExhaustedError(attempts int) *StandardError {
	return &StandardError{
		Code:      ErrCodeAuthRetriesExhausted,
		Message:   "Access token still expired after refresh",
		Details:   fmt.Sprintf("gave up after %d refresh attempts", attempts),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewAPIError creates a non-retryable error surfacing the upstream code and message.
func NewAPIError(operation string, apiErrors []APIError) *StandardError {
	code, message := "", "unknown error"
	if len(apiErrors) > 0 {
		code, message = apiErrors[0].Code, apiErrors[0].Message
	}
	parts := make([]string, 0, len(apiErrors))
	for _, e := range apiErrors {
		parts = append(parts, fmt.Sprintf("%s %s", e.Code, e.Message))
	}
	return &StandardError{
		Code:      ErrCodeAPIError,
		Message:   fmt.Sprintf("Upstream API rejected %s", operation),
		Details:   strings.Join(parts, "; "),
		Retryable: false,
		Metadata: map[string]interface{}{
			"operation":       operation,
			"upstreamCode":    code,
			"upstreamMessage": message,
		},
		Timestamp: time.Now().UTC(),
	}
}

// NewMalformedPageError is returned when a successful page lacks its result section.
func NewMalformedPageError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeMalformedPage,
		Message:   "Upstream page is malformed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewTransportError wraps network, HTTP status and decoding failures.
func NewTransportError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeTransportError,
		Message:   fmt.Sprintf("Request %s failed", operation),
		Details:   err.Error(),
		Retryable: true,
		Metadata:  map[string]interface{}{"operation": operation},
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewUnsupportedActivityTypeError flags a record whose type cannot be projected in this run.
func NewUnsupportedActivityTypeError(activityTypeID int) *StandardError {
	return &StandardError{
		Code:      ErrCodeUnsupportedActivityType,
		Message:   "Activity type is not supported for this export",
		Details:   fmt.Sprintf("activityTypeId: %d", activityTypeID),
		Retryable: false,
		Metadata:  map[string]interface{}{"activityTypeId": activityTypeID},
		Timestamp: time.Now().UTC(),
	}
}

// NewMalformedActivityDateError flags an activityDate that is not an ISO-8601 UTC timestamp.
func NewMalformedActivityDateError(value string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeMalformedActivityDate,
		Message:   "Activity date is malformed",
		Details:   fmt.Sprintf("activityDate %q: %v", value, err),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewSinkWriteError wraps a failure of an output sink.
func NewSinkWriteError(sink string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSinkWriteFailed,
		Message:   fmt.Sprintf("Failed to write to %s sink", sink),
		Details:   err.Error(),
		Retryable: false,
		Metadata:  map[string]interface{}{"sink": sink},
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewCheckpointError wraps a failure of the checkpoint store.
func NewCheckpointError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeCheckpointFailed,
		Message:   fmt.Sprintf("Checkpoint %s failed", operation),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewConfigInvalidError wraps a configuration validation failure.
func NewConfigInvalidError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeConfigInvalid,
		Message:   "Invalid configuration",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// ==========================
// 3. Helpers
// ==========================

// AsStandardError finds a StandardError in err's chain.
func AsStandardError(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// CodeOf returns the error code of err, or INTERNAL_ERROR for foreign errors.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	if stdErr, ok := AsStandardError(err); ok {
		return stdErr.Code
	}
	return ErrCodeInternal
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}
