// Package handlers provides HTTP request handlers for the portrisk API.
// This file contains common utilities shared across all handlers.
package handlers

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/anstrom/portrisk/internal/api/middleware"
	"github.com/anstrom/portrisk/internal/errors"
	"github.com/anstrom/portrisk/internal/logging"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Code      string    `json:"code,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// retryAfterSeconds is advertised on errors a client may retry.
const retryAfterSeconds = 5

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, r *http.Request, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already sent, so only log.
		logging.Error("Failed to encode JSON response",
			"request_id", middleware.GetRequestID(r),
			"error", err)
	}
}

// writeError writes an error response. The status comes from the error code
// when err carries one, otherwise statusCode is used.
func writeError(w http.ResponseWriter, r *http.Request, statusCode int, err error) {
	code := errors.GetCode(err)
	if status, ok := statusForCode(code); ok {
		statusCode = status
	}

	response := ErrorResponse{
		Error:     http.StatusText(statusCode),
		Message:   err.Error(),
		Timestamp: time.Now().UTC(),
		RequestID: middleware.GetRequestID(r),
	}
	if code != errors.CodeUnknown {
		response.Code = string(code)
	}
	if errors.IsRetryable(err) {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	}

	WriteJSON(w, r, statusCode, response)
}

// statusForCode maps application error codes to HTTP statuses.
func statusForCode(code errors.ErrorCode) (int, bool) {
	switch code {
	case errors.CodeValidation, errors.CodeInvalidRange, errors.CodeTargetInvalid, errors.CodeConfiguration:
		return http.StatusBadRequest, true
	case errors.CodeNotFound:
		return http.StatusNotFound, true
	case errors.CodeQueueFull, errors.CodePoolClosed:
		return http.StatusServiceUnavailable, true
	case errors.CodeRateLimited:
		return http.StatusTooManyRequests, true
	case errors.CodeTimeout:
		return http.StatusGatewayTimeout, true
	case errors.CodeTargetResolution:
		return http.StatusUnprocessableEntity, true
	default:
		return 0, false
	}
}

// parseJSON decodes a single JSON object from the request body, rejecting
// unknown fields and trailing data.
func parseJSON(r *http.Request, dest interface{}) error {
	if r.Body == nil {
		return errors.NewScanError(errors.CodeValidation, "request body is required")
	}

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dest); err != nil {
		if stderrors.Is(err, io.EOF) {
			return errors.NewScanError(errors.CodeValidation, "request body is required")
		}
		var maxErr *http.MaxBytesError
		if stderrors.As(err, &maxErr) {
			return errors.NewScanError(errors.CodeValidation,
				fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit))
		}
		return errors.WrapScanError(errors.CodeValidation, "invalid JSON body", err)
	}
	if decoder.More() {
		return errors.NewScanError(errors.CodeValidation, "request body must contain a single JSON object")
	}
	return nil
}

// validateRequest runs struct tag validation and turns failures into a
// VALIDATION error naming the offending fields.
func validateRequest(v *validator.Validate, req interface{}) error {
	err := v.Struct(req)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !stderrors.As(err, &validationErrs) {
		return errors.WrapScanError(errors.CodeValidation, "invalid request", err)
	}

	msgs := make([]string, 0, len(validationErrs))
	for _, fe := range validationErrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return errors.NewScanError(errors.CodeValidation, "invalid request: "+strings.Join(msgs, "; "))
}

// newValidator returns a validator that reports JSON field names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// extractStringFromPath extracts the string id from the URL path.
func extractStringFromPath(r *http.Request) (string, error) {
	idStr, exists := mux.Vars(r)["id"]
	if !exists || strings.TrimSpace(idStr) == "" {
		return "", errors.NewScanError(errors.CodeValidation, "id not provided")
	}
	return idStr, nil
}
