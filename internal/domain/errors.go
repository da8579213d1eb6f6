package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors shared by the stores, the session layer and the HTTP API.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidCell       = errors.New("invalid cell value")
	ErrUnknownCell       = errors.New("unknown cell")
	ErrNoActiveSession   = errors.New("no active session")
	ErrUnknownSession    = errors.New("unknown session")
	ErrInvalidSlot       = errors.New("invalid conclusion slot")
	ErrUnknownField      = errors.New("unknown metadata field")
	ErrNotConfirmed      = errors.New("operation not confirmed")
	ErrUnsupportedFormat = errors.New("unsupported export format")
	ErrExportFailed      = errors.New("export failed")
	ErrUnavailable       = errors.New("patient service unavailable")
)

// APIError represents a standardized error response body
type APIError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes for different failure scenarios
const (
	CodeInvalidInput   = "INVALID_INPUT"
	CodeNotFound       = "NOT_FOUND"
	CodeStorageError   = "STORAGE_ERROR"
	CodeExportError    = "EXPORT_ERROR"
	CodeRateLimit      = "RATE_LIMIT_EXCEEDED"
	CodeInternalServer = "INTERNAL_SERVER_ERROR"
	CodeValidation     = "VALIDATION_ERROR"
)

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
	Cause   error       `json:"-"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// Unwrap returns the sentinel the validation failure belongs to, if any.
func (e *ValidationError) Unwrap() error {
	return e.Cause
}

// NewAPIError creates a new APIError with timestamp
func NewAPIError(code, message, details, requestID string) *APIError {
	return &APIError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// NewCellError creates a ValidationError for a rejected cell write. cause is
// ErrUnknownCell or ErrInvalidCell.
func NewCellError(key CellKey, value string, cause error) *ValidationError {
	msg := "only numbers, '.', ',' and '-' are allowed"
	if errors.Is(cause, ErrUnknownCell) {
		msg = "cell is not editable"
	}
	return &ValidationError{
		Field:   string(key),
		Message: msg,
		Value:   value,
		Cause:   cause,
	}
}
