package errors

import (
	"fmt"
	"net/http"
)

// APIError represents a custom error type for API responses
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Details string `json:"details,omitempty"`
}

// Error returns the error message
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewAPIError(code, message string, status int, details ...string) *APIError {
	err := &APIError{
		Code:    code,
		Message: message,
		Status:  status,
	}
	if len(details) > 0 {
		err.Details = details[0]
	}
	return err
}

var (
	ErrInvalidInput = NewAPIError("INVALID_INPUT", "Invalid request data", http.StatusBadRequest)
	ErrUnauthorized = NewAPIError("UNAUTHORIZED", "Authentication required", http.StatusUnauthorized)
	ErrNotFound     = NewAPIError("NOT_FOUND", "Resource not found", http.StatusNotFound)
	ErrInternal     = NewAPIError("INTERNAL_SERVER_ERROR", "Internal server error", http.StatusInternalServerError)
	ErrConflict     = NewAPIError("CONFLICT", "Resource conflict", http.StatusConflict)
	ErrOffline      = NewAPIError("OFFLINE", "You are offline. New pins cannot be created right now", http.StatusServiceUnavailable)
)

// Validation reports a missing or malformed user-supplied field. No backend
// call is made for requests that fail validation.
func Validation(message string) *APIError {
	return NewAPIError("VALIDATION_ERROR", message, http.StatusBadRequest)
}

// BackendRead wraps a failed list/fetch against the document store. Existing
// in-memory state is left untouched by the caller.
func BackendRead(err error) *APIError {
	return Wrap(err, "BACKEND_READ", "Could not load locations. Please try again", http.StatusBadGateway)
}

// BackendWrite wraps a failed create/update/delete. The operation is
// considered not applied.
func BackendWrite(err error) *APIError {
	return Wrap(err, "BACKEND_WRITE", "Could not save your changes. Please try again", http.StatusBadGateway)
}

// Storage wraps a failed image upload or delete. Non-fatal relative to the
// owning record mutation.
func Storage(err error, message string) *APIError {
	return Wrap(err, "STORAGE_ERROR", message, http.StatusBadGateway)
}

func Wrap(err error, code, message string, status int) *APIError {
	if apiErr, ok := err.(*APIError); ok {
		return apiErr
	}
	return NewAPIError(code, message, status, err.Error())
}
