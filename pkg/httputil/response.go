// Package httputil provides the JSON response envelope used by the
// calibration server.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/testscribe/testscribe/internal/domain"
)

// Response is the standard API envelope.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// Error is the wire form of a failed request.
type Error struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// JSON writes a JSON response.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := Response{
		Success: status >= 200 && status < 300,
		Data:    data,
	}
	json.NewEncoder(w).Encode(resp)
}

// JSONError writes a JSON error response.
func JSONError(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := Response{
		Success: false,
		Error: &Error{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
	json.NewEncoder(w).Encode(resp)
}

// ErrorFromDomain converts a domain error into an HTTP response.
func ErrorFromDomain(w http.ResponseWriter, err error) {
	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) {
		JSONError(w, domainErrorToStatus(domainErr), domainErr.Code, domainErr.Message, domainErr.Details)
		return
	}
	JSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error", nil)
}

func domainErrorToStatus(err *domain.DomainError) int {
	switch err.Code {
	case domain.ErrCodeInvalidRequest, domain.ErrCodeMissingField, domain.ErrCodeSchemaViolation:
		return http.StatusBadRequest
	case domain.ErrCodeInvalidProfile:
		return http.StatusUnprocessableEntity
	case domain.ErrCodeSessionNotFound:
		return http.StatusNotFound
	case domain.ErrCodeSessionLimit:
		return http.StatusTooManyRequests
	case domain.ErrCodeFetchTimeout:
		return http.StatusGatewayTimeout
	case domain.ErrCodeFetchError, domain.ErrCodeLLMTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// DecodeJSON decodes the request body, rejecting unknown fields.
func DecodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return domain.InvalidRequestError("request body is required")
	}

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return domain.InvalidRequestError("invalid JSON: " + err.Error())
	}
	return nil
}
