package handlers

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"catalog-hierarchy/errors"
	"catalog-hierarchy/models"
	"catalog-hierarchy/services"

	"github.com/go-playground/validator/v10"
)

// encodeLogger reports response encoding failures, which happen after the
// status line is sent and cannot reach the client.
var encodeLogger services.Logger = services.NewDefaultLogger()

// writeJSONResponse writes a JSON response with the given status code
func writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		encodeLogger.Error("Failed to encode JSON response", err)
	}
}

// writeErrorResponse writes an error response with the given status code
func writeErrorResponse(w http.ResponseWriter, statusCode int, message, details string) {
	errorResp := models.APIError{
		Type:    "error",
		Code:    http.StatusText(statusCode),
		Message: message,
		Details: details,
	}

	writeJSONResponse(w, statusCode, errorResp)
}

// writeAppErrorResponse writes an AppError as HTTP response. Client errors
// are logged at warn, everything else at error.
func writeAppErrorResponse(w http.ResponseWriter, logger services.Logger, err error) {
	if appErr, ok := errors.AsAppError(err); ok {
		apiError := models.APIError{
			Type:    string(appErr.Type),
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: appErr.Details,
		}

		status := appErr.GetHTTPStatusCode()
		writeJSONResponse(w, status, apiError)

		if status >= http.StatusInternalServerError {
			logger.Error("API error", err, services.String("code", appErr.Code))
		} else {
			logger.Warn("API error",
				services.String("code", appErr.Code),
				services.String("message", appErr.Message),
				services.String("details", appErr.Details))
		}
		return
	}

	logger.Error("Unexpected error type", err)
	writeErrorResponse(w, http.StatusInternalServerError, "Internal server error", err.Error())
}

// decodeAndValidate reads a JSON body into dst and runs struct validation.
// An empty body is accepted when allowEmpty is set.
func decodeAndValidate(r *http.Request, v *validator.Validate, dst interface{}, allowEmpty bool) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if !(allowEmpty && stderrors.Is(err, io.EOF)) {
			return errors.NewValidationError(errors.ErrCodeInvalidFormat, "Invalid request body", err).
				WithDetails("%v", err)
		}
	}

	if err := v.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if stderrors.As(err, &fieldErrs) {
			return errors.NewValidationError(errors.ErrCodeInvalidInput, "Request validation failed", err).
				WithDetails("%s", describeFieldErrors(fieldErrs))
		}
		return errors.NewValidationError(errors.ErrCodeInvalidInput, "Request validation failed", err)
	}
	return nil
}

func describeFieldErrors(fieldErrs validator.ValidationErrors) string {
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}

// optionalIntParam parses an integer query parameter. Absent means nil.
func optionalIntParam(r *http.Request, name string) (*int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidFormat, "Invalid integer parameter", err).
			WithDetails("%s=%q", name, raw)
	}
	return &n, nil
}

func boolParam(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errors.NewValidationError(errors.ErrCodeInvalidFormat, "Invalid boolean parameter", err).
			WithDetails("%s=%q", name, raw)
	}
	return b, nil
}

// optionalIDParam returns nil when the query parameter is absent or empty.
func optionalIDParam(r *http.Request, name string) *string {
	return models.StringPtr(r.URL.Query().Get(name))
}
