package common

import (
	"fmt"
	"net/http"
)

type APIError struct {
	Status  int            `json:"-"`
	Message string         `json:"error"`
	Fields  map[string]any `json:"fields,omitempty"`
}

func (e APIError) Error() string {
	return e.Message
}

func Errf(status int, format string, args ...any) APIError {
	return APIError{Status: status, Message: fmt.Sprintf(format, args...)}
}

// NewAPIError creates an APIError with status, message, and optional fields
func NewAPIError(status int, message string, fields map[string]any) APIError {
	return APIError{
		Status:  status,
		Message: message,
		Fields:  fields,
	}
}

// NotFound covers both a missing resource and one owned by somebody else;
// callers must not be able to tell the two apart.
func NotFound(resource string) APIError {
	return Errf(http.StatusNotFound, "%s not found", resource)
}

// Conflictf reports a request that is valid in form but impossible in the
// resource's current state.
func Conflictf(format string, args ...any) APIError {
	return Errf(http.StatusConflict, format, args...)
}
