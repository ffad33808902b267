// Package errors provides the portal's error taxonomy and its mapping onto
// HTTP responses and broker message dispositions.
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

const (
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidPayload   ErrorCode = "INVALID_EVENT_PAYLOAD"
	ErrCodeUnknownEvent     ErrorCode = "UNKNOWN_EVENT_TYPE"

	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"

	ErrCodeApplicationNotFound  ErrorCode = "APPLICATION_NOT_FOUND"
	ErrCodeRecordNotFound       ErrorCode = "RECORD_NOT_FOUND"
	ErrCodeDuplicateApplication ErrorCode = "DUPLICATE_APPLICATION"
	ErrCodeDuplicateRecord      ErrorCode = "DUPLICATE_RECORD"

	ErrCodePreconditionFailed ErrorCode = "PRECONDITION_FAILED"
	ErrCodeStatusConflict     ErrorCode = "STATUS_CONFLICT"
	ErrCodeTransitionRefused  ErrorCode = "TRANSITION_REFUSED"

	ErrCodeDatabaseQueryFailed ErrorCode = "DATABASE_QUERY_FAILED"
	ErrCodeDatabaseWriteFailed ErrorCode = "DATABASE_WRITE_FAILED"
	ErrCodePolicyUnavailable   ErrorCode = "POLICY_SERVICE_UNAVAILABLE"
	ErrCodePublishFailed       ErrorCode = "EVENT_PUBLISH_FAILED"

	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

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
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// Is matches another *StandardError by code, so callers can write
// errors.Is(err, errors.ErrNotFound).
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithMetadata attaches a key to the error's metadata and returns the error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = map[string]interface{}{}
	}
	e.Metadata[key] = value
	return e
}

// Sentinels for errors.Is comparisons.
var (
	ErrValidation          = &StandardError{Code: ErrCodeValidationFailed}
	ErrApplicationNotFound = &StandardError{Code: ErrCodeApplicationNotFound}
	ErrRecordNotFound      = &StandardError{Code: ErrCodeRecordNotFound}
	ErrDuplicate           = &StandardError{Code: ErrCodeDuplicateRecord}
	ErrForbidden           = &StandardError{Code: ErrCodeForbidden}
	ErrPrecondition        = &StandardError{Code: ErrCodePreconditionFailed}
	ErrStatusConflict      = &StandardError{Code: ErrCodeStatusConflict}
)

// ==========================
// 2. Error Constructors
// ==========================

func NewValidationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidationFailed,
		Message:   "Request validation failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewInvalidPayloadError(eventType, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidPayload,
		Message:   "Event payload is malformed",
		Details:   fmt.Sprintf("eventType: %s, %s", eventType, details),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewUnknownEventError(eventType string) *StandardError {
	return &StandardError{
		Code:      ErrCodeUnknownEvent,
		Message:   "No handler registered for event type",
		Details:   fmt.Sprintf("eventType: %s", eventType),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewUnauthorizedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeUnauthorized,
		Message:   "Authentication required",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewForbiddenError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeForbidden,
		Message:   "Access denied",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewApplicationNotFoundError(applicationID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeApplicationNotFound,
		Message:   "Application not found",
		Details:   fmt.Sprintf("applicationId: %s", applicationID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewRecordNotFoundError(kind, applicationID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeRecordNotFound,
		Message:   fmt.Sprintf("%s not found", kind),
		Details:   fmt.Sprintf("applicationId: %s", applicationID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewDuplicateApplicationError(applicationID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeDuplicateApplication,
		Message:   "Application already exists",
		Details:   fmt.Sprintf("applicationId: %s", applicationID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewDuplicateRecordError(kind, applicationID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeDuplicateRecord,
		Message:   fmt.Sprintf("%s already exist for this application, please update existing details", kind),
		Details:   fmt.Sprintf("applicationId: %s", applicationID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewPreconditionFailedError marks an ordering problem that should be
// redelivered rather than dropped, e.g. a payment before its subscription.
func NewPreconditionFailedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodePreconditionFailed,
		Message:   "Required record is not present yet",
		Details:   details,
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewStatusConflictError(applicationID string, expected string) *StandardError {
	return &StandardError{
		Code:      ErrCodeStatusConflict,
		Message:   "Application status changed concurrently",
		Details:   fmt.Sprintf("applicationId: %s, expected: %s", applicationID, expected),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewTransitionRefusedError(from, to string) *StandardError {
	return &StandardError{
		Code:      ErrCodeTransitionRefused,
		Message:   "Status transition not allowed",
		Details:   fmt.Sprintf("from: %s, to: %s", from, to),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewDatabaseQueryError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseQueryFailed,
		Message:   "Database query failed",
		Details:   fmt.Sprintf("operation: %s, error: %s", operation, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewDatabaseWriteError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseWriteFailed,
		Message:   "Database write failed",
		Details:   fmt.Sprintf("operation: %s, error: %s", operation, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewPolicyUnavailableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodePolicyUnavailable,
		Message:   "Policy service unavailable",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewPublishFailedError(eventType string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodePublishFailed,
		Message:   "Event publish failed",
		Details:   fmt.Sprintf("eventType: %s, error: %s", eventType, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewInternalError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// ==========================
// 3. Classification
// ==========================

// Normalize always returns a *StandardError; unknown errors become
// retryable internal errors so a broker redelivers them.
func Normalize(err error) *StandardError {
	if err == nil {
		return nil
	}
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	return NewInternalError(err)
}

func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDatabaseQueryFailed,
		ErrCodeDatabaseWriteFailed,
		ErrCodeInternal,
		ErrCodePublishFailed:
		return 3

	case ErrCodePreconditionFailed,
		ErrCodeStatusConflict:
		return 5 // ordering races settle after a few redeliveries

	case ErrCodePolicyUnavailable:
		return 2

	default:
		return 0
	}
}

func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "VALIDATION") || strings.Contains(codeStr, "PAYLOAD") || strings.Contains(codeStr, "UNKNOWN_EVENT"):
		return "VALIDATION"
	case codeStr == string(ErrCodeUnauthorized) || codeStr == string(ErrCodeForbidden) || strings.Contains(codeStr, "POLICY"):
		return "AUTH"
	case strings.Contains(codeStr, "NOT_FOUND"):
		return "NOT_FOUND"
	case strings.Contains(codeStr, "DUPLICATE") || strings.Contains(codeStr, "CONFLICT"):
		return "CONFLICT"
	case strings.Contains(codeStr, "PRECONDITION") || strings.Contains(codeStr, "TRANSITION"):
		return "WORKFLOW"
	case strings.Contains(codeStr, "DATABASE"):
		return "DATABASE"
	case strings.Contains(codeStr, "PUBLISH"):
		return "MESSAGING"
	default:
		return "OTHER"
	}
}
