package apperror

import (
	"errors"
	"net/http"
	"testing"
)

func TestErrorError(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name: "without internal error",
			err: &Error{
				HTTPStatus: http.StatusNotFound,
				Code:       "not_found",
				Message:    "Resource not found",
			},
			expected: "not_found: Resource not found",
		},
		{
			name: "with internal error",
			err: &Error{
				HTTPStatus: http.StatusInternalServerError,
				Code:       "internal_error",
				Message:    "Something went wrong",
				Internal:   errors.New("database connection failed"),
			},
			expected: "internal_error: Something went wrong (database connection failed)",
		},
		{
			name: "empty message",
			err: &Error{
				HTTPStatus: http.StatusBadRequest,
				Code:       "bad_request",
				Message:    "",
			},
			expected: "bad_request: ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Error()
			if got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	inner := errors.New("underlying cause")

	err := ErrDatabase.WithInternal(inner)
	if got := err.Unwrap(); got != inner {
		t.Errorf("Unwrap() = %v, want %v", got, inner)
	}
	if !errors.Is(err, inner) {
		t.Error("errors.Is() should match the internal error")
	}

	if got := ErrNotFound.Unwrap(); got != nil {
		t.Errorf("Unwrap() = %v, want nil", got)
	}
}

func TestErrorWithInternal(t *testing.T) {
	inner := errors.New("dial tcp: connection refused")
	base := ErrDispatchUnavailable.WithDetails(map[string]any{"queue": "transcription"})

	err := base.WithInternal(inner)

	if err == base {
		t.Fatal("WithInternal() must return a copy")
	}
	if err.Internal != inner {
		t.Errorf("Internal = %v, want %v", err.Internal, inner)
	}
	if err.HTTPStatus != http.StatusServiceUnavailable {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusServiceUnavailable)
	}
	if err.Details["queue"] != "transcription" {
		t.Error("WithInternal() must preserve details")
	}
	if base.Internal != nil {
		t.Error("WithInternal() must not mutate the original")
	}
}

func TestErrorWithMessage(t *testing.T) {
	err := ErrValidation.WithMessage("audioChunkPaths must not be empty")

	if err == ErrValidation {
		t.Fatal("WithMessage() must return a copy")
	}
	if err.Message != "audioChunkPaths must not be empty" {
		t.Errorf("Message = %q", err.Message)
	}
	if err.Code != "validation_error" {
		t.Errorf("Code = %q, want validation_error", err.Code)
	}
	if ErrValidation.Message != "Validation failed" {
		t.Error("WithMessage() must not mutate the original")
	}
}

func TestErrorWithDetails(t *testing.T) {
	details := map[string]any{"field": "userId"}
	err := ErrValidation.WithDetails(details)

	if err.Details["field"] != "userId" {
		t.Errorf("Details = %v", err.Details)
	}
	if ErrValidation.Details != nil {
		t.Error("WithDetails() must not mutate the original")
	}
}

func TestNew(t *testing.T) {
	err := New(http.StatusTeapot, "teapot", "I'm a teapot")

	if err.HTTPStatus != http.StatusTeapot {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusTeapot)
	}
	if err.Code != "teapot" {
		t.Errorf("Code = %q, want teapot", err.Code)
	}
	if err.Message != "I'm a teapot" {
		t.Errorf("Message = %q", err.Message)
	}
}

func TestNewBadRequest(t *testing.T) {
	err := NewBadRequest("jobId must be a valid identifier")

	if err.HTTPStatus != http.StatusBadRequest {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusBadRequest)
	}
	if err.Code != "bad_request" {
		t.Errorf("Code = %q, want bad_request", err.Code)
	}
	if err.Message != "jobId must be a valid identifier" {
		t.Errorf("Message = %q", err.Message)
	}
}

func TestNewValidation(t *testing.T) {
	err := NewValidation("userId is required")

	if err.HTTPStatus != http.StatusUnprocessableEntity {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusUnprocessableEntity)
	}
	if err.Code != "validation_error" {
		t.Errorf("Code = %q, want validation_error", err.Code)
	}
}

func TestNewNotFound(t *testing.T) {
	err := NewNotFound("transcription job", "job-123")

	if err.HTTPStatus != http.StatusNotFound {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusNotFound)
	}
	if err.Message != "transcription job 'job-123' not found" {
		t.Errorf("Message = %q", err.Message)
	}
}

func TestNewInternal(t *testing.T) {
	inner := errors.New("write failed")
	err := NewInternal("could not persist chunk", inner)

	if err.HTTPStatus != http.StatusInternalServerError {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusInternalServerError)
	}
	if err.Internal != inner {
		t.Errorf("Internal = %v, want %v", err.Internal, inner)
	}
}

func TestPredefinedErrors(t *testing.T) {
	// Verify predefined errors have correct status codes
	tests := []struct {
		name       string
		err        *Error
		wantStatus int
		wantCode   string
	}{
		{"ErrNotFound", ErrNotFound, http.StatusNotFound, "not_found"},
		{"ErrConflict", ErrConflict, http.StatusConflict, "conflict"},
		{"ErrBadRequest", ErrBadRequest, http.StatusBadRequest, "bad_request"},
		{"ErrValidation", ErrValidation, http.StatusUnprocessableEntity, "validation_error"},
		{"ErrDispatchUnavailable", ErrDispatchUnavailable, http.StatusServiceUnavailable, "dispatch_unavailable"},
		{"ErrInternal", ErrInternal, http.StatusInternalServerError, "internal_error"},
		{"ErrDatabase", ErrDatabase, http.StatusInternalServerError, "database_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.HTTPStatus != tt.wantStatus {
				t.Errorf("%s.HTTPStatus = %d, want %d", tt.name, tt.err.HTTPStatus, tt.wantStatus)
			}
			if tt.err.Code != tt.wantCode {
				t.Errorf("%s.Code = %q, want %q", tt.name, tt.err.Code, tt.wantCode)
			}
		})
	}
}
