package domain

import (
	"errors"
	"fmt"
)

// Error codes by layer.
const (
	// Input errors
	ErrCodeInvalidRequest  = "INVALID_REQUEST"
	ErrCodeMissingField    = "MISSING_FIELD"
	ErrCodeSchemaViolation = "SCHEMA_VIOLATION"

	// LLM errors
	ErrCodeLLMTransport     = "LLM_TRANSPORT"
	ErrCodeLLMEmpty         = "LLM_EMPTY"
	ErrCodeLLMBadJSON       = "LLM_BAD_JSON"
	ErrCodeCompileExhausted = "COMPILE_EXHAUSTED"

	// Profile errors
	ErrCodeInvalidProfile     = "INVALID_PROFILE"
	ErrCodeProfileWriteFailed = "PROFILE_WRITE_FAILED"

	// Annotation errors
	ErrCodeAnnotationUnparseable = "ANNOTATION_UNPARSEABLE"

	// Snapshot/fetch errors
	ErrCodeFetchTimeout = "FETCH_TIMEOUT"
	ErrCodeFetchError   = "FETCH_ERROR"

	// Calibration session errors
	ErrCodeSessionNotFound = "SESSION_NOT_FOUND"
	ErrCodeSessionLimit    = "SESSION_LIMIT"
)

// DomainError is a structured error for pipeline operations.
type DomainError struct {
	Code    string
	Message string
	Details map[string]any
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is for error comparison
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithDetail attaches one key/value pair of context.
func (e *DomainError) WithDetail(key string, value any) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// Sentinel domain errors (used with errors.Is)
var (
	ErrInvalidRequest        = &DomainError{Code: ErrCodeInvalidRequest, Message: "invalid request"}
	ErrSchemaViolation       = &DomainError{Code: ErrCodeSchemaViolation, Message: "schema violation"}
	ErrLLMTransport          = &DomainError{Code: ErrCodeLLMTransport, Message: "llm transport failure"}
	ErrLLMEmpty              = &DomainError{Code: ErrCodeLLMEmpty, Message: "empty llm response"}
	ErrLLMBadJSON            = &DomainError{Code: ErrCodeLLMBadJSON, Message: "unparseable llm json"}
	ErrCompileExhausted      = &DomainError{Code: ErrCodeCompileExhausted, Message: "compile attempts exhausted"}
	ErrInvalidProfile        = &DomainError{Code: ErrCodeInvalidProfile, Message: "invalid site profile"}
	ErrAnnotationUnparseable = &DomainError{Code: ErrCodeAnnotationUnparseable, Message: "annotation unparseable"}
	ErrFetchTimeout          = &DomainError{Code: ErrCodeFetchTimeout, Message: "fetch timeout"}
	ErrFetchError            = &DomainError{Code: ErrCodeFetchError, Message: "fetch error"}
	ErrSessionNotFound       = &DomainError{Code: ErrCodeSessionNotFound, Message: "session not found"}
	ErrSessionLimit          = &DomainError{Code: ErrCodeSessionLimit, Message: "session limit reached"}
)

// ErrorCode returns the domain error code for err, or empty string.
func ErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// Error constructors

// InvalidRequestError reports an unusable TestRequest.
func InvalidRequestError(reason string) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidRequest,
		Message: reason,
		Err:     ErrInvalidRequest,
	}
}

// MissingFieldError reports an absent required field.
func MissingFieldError(field string) *DomainError {
	return &DomainError{
		Code:    ErrCodeMissingField,
		Message: fmt.Sprintf("missing required field: %s", field),
		Details: map[string]any{"field": field},
	}
}

// SchemaViolationError reports a DSL schema failure at a json-pointer path.
func SchemaViolationError(pointer, message string) *DomainError {
	return &DomainError{
		Code:    ErrCodeSchemaViolation,
		Message: fmt.Sprintf("%s: %s", pointer, message),
		Details: map[string]any{"pointer": pointer},
		Err:     ErrSchemaViolation,
	}
}

// LLMTransportError reports a network or HTTP level LLM failure.
func LLMTransportError(err error) *DomainError {
	return &DomainError{
		Code:    ErrCodeLLMTransport,
		Message: "llm request failed",
		Err:     fmt.Errorf("%w: %w", ErrLLMTransport, err),
	}
}

// CompileExhaustedError reports that the repair loop gave up.
func CompileExhaustedError(attempts int, last error) *DomainError {
	return &DomainError{
		Code:    ErrCodeCompileExhausted,
		Message: fmt.Sprintf("no valid plan after %d attempts", attempts),
		Details: map[string]any{"attempts": attempts},
		Err:     last,
	}
}

// InvalidProfileError reports a structurally unusable site profile.
func InvalidProfileError(path, reason string) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidProfile,
		Message: reason,
		Details: map[string]any{"path": path},
		Err:     ErrInvalidProfile,
	}
}

// ProfileWriteError reports a failed profile persist.
func ProfileWriteError(path string, err error) *DomainError {
	return &DomainError{
		Code:    ErrCodeProfileWriteFailed,
		Message: fmt.Sprintf("writing profile %s", path),
		Details: map[string]any{"path": path},
		Err:     err,
	}
}

// FetchTimeoutError reports an exceeded navigation or wait deadline.
func FetchTimeoutError(url string, err error) *DomainError {
	return &DomainError{
		Code:    ErrCodeFetchTimeout,
		Message: fmt.Sprintf("timed out loading %s", url),
		Details: map[string]any{"url": url},
		Err:     fmt.Errorf("%w: %w", ErrFetchTimeout, err),
	}
}

// FetchErrorFrom reports any other navigation or evaluation failure.
func FetchErrorFrom(url string, err error) *DomainError {
	return &DomainError{
		Code:    ErrCodeFetchError,
		Message: fmt.Sprintf("loading %s", url),
		Details: map[string]any{"url": url},
		Err:     fmt.Errorf("%w: %w", ErrFetchError, err),
	}
}

// SessionNotFoundError reports an unknown or already closed session.
func SessionNotFoundError(id string) *DomainError {
	return &DomainError{
		Code:    ErrCodeSessionNotFound,
		Message: fmt.Sprintf("session %s not found", id),
		Details: map[string]any{"session_id": id},
		Err:     ErrSessionNotFound,
	}
}

// SessionLimitError reports that every session slot is taken.
func SessionLimitError(max int) *DomainError {
	return &DomainError{
		Code:    ErrCodeSessionLimit,
		Message: fmt.Sprintf("all %d session slots are in use", max),
		Details: map[string]any{"max_sessions": max},
		Err:     ErrSessionLimit,
	}
}
