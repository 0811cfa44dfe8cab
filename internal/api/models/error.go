package models

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the body of every failed request, whether the request
// was invalid, rate limited or crashed.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// NewErrorResponse creates a failure body with the given message.
func NewErrorResponse(message string) *ErrorResponse {
	return &ErrorResponse{Success: false, Error: message}
}

// Write writes the body as JSON with the given status code.
func (e *ErrorResponse) Write(w http.ResponseWriter, status int, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	if requestID != "" {
		w.Header().Set("X-Request-Id", requestID)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(e)
}
