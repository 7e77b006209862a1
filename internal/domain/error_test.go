package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "message only",
			err:      &Error{Code: EINVALID, Message: "invalid date"},
			expected: "invalid date",
		},
		{
			name:     "with operation",
			err:      &Error{Code: EINVALID, Op: "recurrence.run", Message: "invalid date"},
			expected: "recurrence.run: invalid date",
		},
		{
			name: "with wrapped error",
			err: &Error{
				Code:    EINTERNAL,
				Op:      "outbox.lease",
				Message: "failed to lease",
				Err:     errors.New("connection refused"),
			},
			expected: "outbox.lease: failed to lease: connection refused",
		},
		{
			name: "wrapped error without op",
			err: &Error{
				Code:    EINTERNAL,
				Message: "failed to lease",
				Err:     errors.New("connection refused"),
			},
			expected: "failed to lease: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error.Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	underlying := errors.New("underlying error")
	err := &Error{Code: EINTERNAL, Message: "wrapped", Err: underlying}

	if unwrapped := err.Unwrap(); unwrapped != underlying {
		t.Errorf("Error.Unwrap() = %v, want %v", unwrapped, underlying)
	}
	if !errors.Is(err, underlying) {
		t.Error("errors.Is should find underlying error")
	}
}

func TestError_IsSentinel(t *testing.T) {
	withOp := &Error{Code: ENOTINIT, Op: "numbering.allocate", Message: ErrCounterNotInitialized.Message}
	wrapped := fmt.Errorf("recurrence: %w", withOp)

	if !errors.Is(wrapped, ErrCounterNotInitialized) {
		t.Error("errors.Is should match sentinel by code and message")
	}
	if errors.Is(wrapped, ErrLeaseLost) {
		t.Error("errors.Is should not match a different sentinel")
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"nil error", nil, ""},
		{"domain error", &Error{Code: EINVALID, Message: "test"}, EINVALID},
		{"wrapped domain error", fmt.Errorf("wrapped: %w", &Error{Code: ENOTFOUND, Message: "test"}), ENOTFOUND},
		{"counter sentinel", ErrCounterNotInitialized, ENOTINIT},
		{"non-domain error", errors.New("some error"), EINTERNAL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorCode(tt.err); got != tt.expected {
				t.Errorf("ErrorCode() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"nil error", nil, ""},
		{"invalid error shows message", &Error{Code: EINVALID, Message: "todayISO must be YYYY-MM-DD"}, "todayISO must be YYYY-MM-DD"},
		{"internal error hides message", &Error{Code: EINTERNAL, Message: "pgx: deadlock detected"}, internalMessage},
		{"non-domain error hides message", errors.New("secret detail"), internalMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorMessage(tt.err); got != tt.expected {
				t.Errorf("ErrorMessage() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestErrorOp(t *testing.T) {
	if got := ErrorOp(nil); got != "" {
		t.Errorf("ErrorOp(nil) = %q, want empty", got)
	}
	if got := ErrorOp(errors.New("plain")); got != "" {
		t.Errorf("ErrorOp(plain) = %q, want empty", got)
	}
	err := fmt.Errorf("outer: %w", &Error{Code: EINVALID, Op: "recurrence.run", Message: "x"})
	if got := ErrorOp(err); got != "recurrence.run" {
		t.Errorf("ErrorOp() = %q, want %q", got, "recurrence.run")
	}
}

func TestErrorf(t *testing.T) {
	err := Errorf(EINVALID, "recurrence.run", "invalid date: %s", "2024-13-01")

	var e *Error
	if !errors.As(err, &e) {
		t.Fatal("Errorf should return *Error")
	}
	if e.Code != EINVALID || e.Op != "recurrence.run" || e.Message != "invalid date: 2024-13-01" {
		t.Errorf("Errorf() = %+v", e)
	}
}

func TestIsCode(t *testing.T) {
	if !IsCode(Invalid("op", "bad"), EINVALID) {
		t.Error("IsCode should match EINVALID")
	}
	if IsCode(Invalid("op", "bad"), ENOTFOUND) {
		t.Error("IsCode should not match ENOTFOUND")
	}
	if !IsCode(errors.New("plain"), EINTERNAL) {
		t.Error("plain errors are internal")
	}
}

func TestValidationError(t *testing.T) {
	t.Run("single field error", func(t *testing.T) {
		err := NewValidationError("recurrence.run", "todayISO", "must be YYYY-MM-DD")

		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Fatal("NewValidationError should return *ValidationError")
		}
		expected := "recurrence.run: todayISO: must be YYYY-MM-DD"
		if ve.Error() != expected {
			t.Errorf("Error() = %q, want %q", ve.Error(), expected)
		}
	})

	t.Run("multiple field errors", func(t *testing.T) {
		err := &ValidationError{Op: "jobs.enqueue", Fields: map[string]string{
			"to":      "recipient address is required",
			"subject": "subject is required",
		}}

		if len(GetValidationFields(err)) != 2 {
			t.Errorf("Fields count = %d, want 2", len(GetValidationFields(err)))
		}
		if err.Error() != "jobs.enqueue: validation failed for 2 fields" {
			t.Errorf("Error() = %q", err.Error())
		}
		if ErrorCode(err) != EINVALID {
			t.Errorf("ErrorCode() = %q, want %q", ErrorCode(err), EINVALID)
		}
		if ErrorMessage(err) != "One or more fields are invalid." {
			t.Errorf("ErrorMessage() = %q", ErrorMessage(err))
		}
	})

	t.Run("non-validation error", func(t *testing.T) {
		if IsValidationError(errors.New("plain")) {
			t.Error("plain error is not a validation error")
		}
		if GetValidationFields(errors.New("plain")) != nil {
			t.Error("plain error has no fields")
		}
	})
}

func TestConvenienceFunctions(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"NotFound", NotFound("invoice.get", "invoice", "42"), ENOTFOUND},
		{"Invalid", Invalid("recurrence.run", "invalid date"), EINVALID},
		{"Conflict", Conflict("recurrence.mark", "run already recorded"), ECONFLICT},
		{"Internal", Internal(errors.New("db error"), "invoice.save", "failed to save"), EINTERNAL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorCode(tt.err); got != tt.code {
				t.Errorf("%s code = %q, want %q", tt.name, got, tt.code)
			}
		})
	}

	if msg := ErrorMessage(Internal(errors.New("db"), "op", "failed")); msg != internalMessage {
		t.Errorf("Internal message should be hidden, got %q", msg)
	}
}
