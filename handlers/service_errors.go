package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/auth-gateway/services"
	"github.com/upb/auth-gateway/utils"
)

// maxJSONBodyBytes bounds request bodies decoded by the gateway's handlers
const maxJSONBodyBytes = 1 << 20

// HandleServiceError maps domain errors to HTTP responses.
// Only the error's public message is written; the wrapped cause is logged.
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	message := services.PublicMessage(err)

	// Map error type to HTTP status and response
	var writeErr error
	switch {
	case services.IsValidationError(err):
		writeErr = utils.WriteUnprocessable(w, message, nil)

	case services.IsUnauthorizedError(err):
		writeErr = utils.WriteUnauthorized(w, message)

	case services.IsRegistrationError(err):
		writeErr = utils.WriteBadRequest(w, message)

	case services.IsNotFoundError(err):
		writeErr = utils.WriteNotFound(w, message)

	case services.IsExternalError(err):
		logger.Warn("identity provider unavailable", zap.Error(err))
		writeErr = utils.WriteServiceUnavailable(w, message)

	case services.IsConfigurationError(err), services.IsInternalError(err):
		// Log internal errors but return generic message
		logger.Error("internal server error",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		writeErr = utils.WriteInternalServerError(w, "")

	default:
		// Unknown error type - log and return internal error
		logger.Error("unhandled error type", zap.Error(err))
		writeErr = utils.WriteInternalServerError(w, "")
	}

	if writeErr != nil {
		logger.Error("failed to write error response", zap.Error(writeErr))
	}
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var writeErr error
	if utils.IsValidationError(err) {
		writeErr = utils.WriteUnprocessable(w, "", utils.GetValidationFields(err))
	} else {
		writeErr = utils.WriteUnprocessable(w, err.Error(), nil)
	}

	if writeErr != nil {
		logger.Error("failed to write validation error response", zap.Error(writeErr))
	}
}

// decodeJSON decodes a bounded JSON request body into dst and validates it.
// The returned error is safe to show to the caller.
func decodeJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}

	decoder := json.NewDecoder(io.LimitReader(r.Body, maxJSONBodyBytes))
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return fmt.Errorf("field %s has the wrong type", typeErr.Field)
		}
		return errors.New("request body must be valid JSON")
	}

	return utils.ValidateStruct(dst)
}
