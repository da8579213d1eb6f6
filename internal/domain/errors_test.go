package domain

import (
	"errors"
	"testing"
	"time"
)

func TestAPIError(t *testing.T) {
	tests := []struct {
		name      string
		code      string
		message   string
		details   string
		requestID string
	}{
		{
			name:      "Not found",
			code:      CodeNotFound,
			message:   "Пациент не найден",
			details:   "id=42",
			requestID: "req-123",
		},
		{
			name:      "Storage error",
			code:      CodeStorageError,
			message:   "failed to write patient file",
			requestID: "req-456",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewAPIError(tt.code, tt.message, tt.details, tt.requestID)

			if err.Code != tt.code {
				t.Errorf("Expected code %s, got %s", tt.code, err.Code)
			}
			if err.Message != tt.message {
				t.Errorf("Expected message %s, got %s", tt.message, err.Message)
			}
			if err.Details != tt.details {
				t.Errorf("Expected details %s, got %s", tt.details, err.Details)
			}
			if err.RequestID != tt.requestID {
				t.Errorf("Expected requestID %s, got %s", tt.requestID, err.RequestID)
			}
			if time.Since(err.Timestamp) > time.Minute {
				t.Errorf("Timestamp should be recent, got %v", err.Timestamp)
			}

			expectedError := tt.code + ": " + tt.message
			if err.Error() != expectedError {
				t.Errorf("Expected error string %s, got %s", expectedError, err.Error())
			}
		})
	}
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("precision", "must be between 0 and 10", 11)

	if err.Field != "precision" {
		t.Errorf("Expected field precision, got %s", err.Field)
	}
	expected := "validation error for field 'precision': must be between 0 and 10"
	if err.Error() != expected {
		t.Errorf("Expected error string %s, got %s", expected, err.Error())
	}
	if errors.Unwrap(err) != nil {
		t.Errorf("Expected no wrapped error, got %v", errors.Unwrap(err))
	}
}

func TestNewCellError(t *testing.T) {
	tests := []struct {
		name  string
		key   CellKey
		value string
		cause error
	}{
		{"invalid characters", CellG7, "12a", ErrInvalidCell},
		{"not editable", CellKey("M7"), "1", ErrUnknownCell},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewCellError(tt.key, tt.value, tt.cause)

			if !errors.Is(err, tt.cause) {
				t.Errorf("Expected error to wrap %v", tt.cause)
			}
			if err.Field != string(tt.key) {
				t.Errorf("Expected field %s, got %s", tt.key, err.Field)
			}
			if err.Value != tt.value {
				t.Errorf("Expected value %s, got %v", tt.value, err.Value)
			}

			var verr *ValidationError
			if !errors.As(error(err), &verr) {
				t.Error("Expected *ValidationError")
			}
		})
	}
}
