// internal/api/response.go
package api

import (
	"encoding/json"
	"net/http"

	apperrors "portal-service/internal/common/errors"
)

type successBody struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

type errorDetail struct {
	Message string              `json:"message"`
	Code    apperrors.ErrorCode `json:"code"`
}

type errorBody struct {
	Success bool        `json:"success"`
	Error   errorDetail `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter, status int, data interface{}, message string) {
	writeJSON(w, status, successBody{Success: true, Data: data, Message: message})
}

// writeError maps err onto the error envelope. Internal errors never leak
// their cause to the caller.
func writeError(w http.ResponseWriter, err error) int {
	stdErr := apperrors.Normalize(err)
	status := apperrors.HTTPStatus(stdErr.Code)

	message := stdErr.Message
	if stdErr.Details != "" && status < http.StatusInternalServerError {
		message = stdErr.Message + ": " + stdErr.Details
	}
	writeJSON(w, status, errorBody{Error: errorDetail{Message: message, Code: stdErr.Code}})
	return status
}
