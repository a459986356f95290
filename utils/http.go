package utils

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse represents a structured error response.
// Detail is the only field clients should rely on.
type ErrorResponse struct {
	Detail string            `json:"detail"`
	Error  string            `json:"error,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

// MessageResponse is the body of the gateway's success replies
type MessageResponse struct {
	Message string `json:"message"`
}

// SuccessResponse represents a generic success response
type SuccessResponse struct {
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return nil
	}

	return json.NewEncoder(w).Encode(data)
}

// WriteOK writes a 200 OK response with optional data
func WriteOK(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, SuccessResponse{Data: data})
}

// WriteMessage writes a 200 OK response of the form {"message": ...}
func WriteMessage(w http.ResponseWriter, message string) error {
	return WriteJSON(w, http.StatusOK, MessageResponse{Message: message})
}

// WriteBadRequest writes a 400 Bad Request response
func WriteBadRequest(w http.ResponseWriter, detail string) error {
	return WriteJSON(w, http.StatusBadRequest, ErrorResponse{
		Detail: detail,
		Error:  "bad_request",
	})
}

// WriteUnauthorized writes a 401 Unauthorized response
func WriteUnauthorized(w http.ResponseWriter, detail string) error {
	if detail == "" {
		detail = "Not authenticated"
	}
	w.Header().Set("WWW-Authenticate", "Bearer")
	return WriteJSON(w, http.StatusUnauthorized, ErrorResponse{
		Detail: detail,
		Error:  "unauthorized",
	})
}

// WriteNotFound writes a 404 Not Found response
func WriteNotFound(w http.ResponseWriter, detail string) error {
	if detail == "" {
		detail = "Not Found"
	}
	return WriteJSON(w, http.StatusNotFound, ErrorResponse{
		Detail: detail,
		Error:  "not_found",
	})
}

// WriteUnprocessable writes a 422 response for request-validation failures
func WriteUnprocessable(w http.ResponseWriter, detail string, fields map[string]string) error {
	if detail == "" {
		detail = "Validation failed"
	}
	return WriteJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
		Detail: detail,
		Error:  "validation_error",
		Fields: fields,
	})
}

// WriteServiceUnavailable writes a 503 response for upstream outages
func WriteServiceUnavailable(w http.ResponseWriter, detail string) error {
	if detail == "" {
		detail = "Service temporarily unavailable"
	}
	return WriteJSON(w, http.StatusServiceUnavailable, ErrorResponse{
		Detail: detail,
		Error:  "service_unavailable",
	})
}

// WriteInternalServerError writes a 500 Internal Server Error response
func WriteInternalServerError(w http.ResponseWriter, detail string) error {
	if detail == "" {
		detail = "Internal server error"
	}
	return WriteJSON(w, http.StatusInternalServerError, ErrorResponse{
		Detail: detail,
		Error:  "internal_error",
	})
}

// WriteError writes an error response based on the status code
func WriteError(w http.ResponseWriter, status int, detail string) error {
	var errorType string
	switch status {
	case http.StatusBadRequest:
		errorType = "bad_request"
	case http.StatusUnauthorized:
		errorType = "unauthorized"
	case http.StatusNotFound:
		errorType = "not_found"
	case http.StatusMethodNotAllowed:
		errorType = "method_not_allowed"
	case http.StatusUnprocessableEntity:
		errorType = "validation_error"
	case http.StatusServiceUnavailable:
		errorType = "service_unavailable"
	default:
		errorType = "internal_error"
	}

	return WriteJSON(w, status, ErrorResponse{
		Detail: detail,
		Error:  errorType,
	})
}
