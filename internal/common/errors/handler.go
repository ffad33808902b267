// internal/common/errors/handler.go
package errors

import (
	"net/http"
)

// Disposition tells the consumer loop what to do with a message after its
// handler returned.
type Disposition int

const (
	// Ack commits the message; processing finished.
	Ack Disposition = iota
	// Retry leaves the message for redelivery.
	Retry
	// Drop commits the message without side effects.
	Drop
	// Defer redelivers the message later without spending a retry attempt.
	// Used while another consumer holds the event's claim.
	Defer
)

func (d Disposition) String() string {
	switch d {
	case Ack:
		return "ack"
	case Retry:
		return "retry"
	case Drop:
		return "drop"
	case Defer:
		return "defer"
	}
	return "unknown"
}

// HTTPStatus maps an error code onto the status used in the API envelope.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeValidationFailed, ErrCodeInvalidPayload, ErrCodeUnknownEvent, ErrCodeTransitionRefused:
		return http.StatusBadRequest
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeForbidden, ErrCodePolicyUnavailable:
		return http.StatusForbidden
	case ErrCodeApplicationNotFound, ErrCodeRecordNotFound:
		return http.StatusNotFound
	case ErrCodeDuplicateApplication, ErrCodeDuplicateRecord, ErrCodeStatusConflict, ErrCodePreconditionFailed:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// ErrorHandler classifies handler failures for the inbox.
type ErrorHandler struct {
	logger Logger
}

type Logger interface {
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Classify returns the disposition for err without logging.
func Classify(err error) Disposition {
	if err == nil {
		return Ack
	}
	stdErr := Normalize(err)
	if stdErr.Retryable {
		return Retry
	}
	return Drop
}

// HandleEventError logs a failed event and returns its disposition.
// Not-found errors are expected under out-of-order delivery and are logged
// at warn level.
func (h *ErrorHandler) HandleEventError(eventType, eventID string, err error) Disposition {
	if err == nil {
		return Ack
	}
	stdErr := Normalize(err)
	disposition := Classify(stdErr)

	fields := map[string]interface{}{
		"eventType":     eventType,
		"eventId":       eventID,
		"errorCode":     string(stdErr.Code),
		"message":       stdErr.Message,
		"details":       stdErr.Details,
		"retryable":     stdErr.Retryable,
		"retries":       GetRetryCount(stdErr.Code),
		"errorCategory": GetErrorCategory(stdErr.Code),
		"disposition":   disposition.String(),
	}
	if GetErrorCategory(stdErr.Code) == "NOT_FOUND" {
		h.logger.Warn("Event dropped", fields)
		return disposition
	}
	h.logger.Error("Event failed", fields)
	return disposition
}
