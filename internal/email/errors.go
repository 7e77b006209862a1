package email

import (
	"fmt"
)

// ============================================================================
// EMAIL ERROR CODES
// ============================================================================
// These constants mirror domain error codes to avoid circular imports.

const (
	codeInvalid        = "invalid"
	codeNotFound       = "not_found"
	codeNotInitialized = "not_initialized"
)

// EmailError represents an email-specific error with a code and message.
type EmailError struct {
	Code    string
	Message string
}

func (e *EmailError) Error() string {
	return e.Message
}

// ErrorCode returns the error code for HTTP status mapping.
func (e *EmailError) ErrorCode() string {
	return e.Code
}

func newEmailError(code, message string) *EmailError {
	return &EmailError{Code: code, Message: message}
}

var (
	// ErrNotConfigured is returned when the transport has no host or token.
	ErrNotConfigured = newEmailError(codeNotInitialized, "Email transport is not configured")

	// ErrInvalidFromAddress is returned when the from address is invalid.
	ErrInvalidFromAddress = newEmailError(codeInvalid, "Invalid from email address")

	// ErrInvalidToAddress is returned when the to address is invalid.
	ErrInvalidToAddress = newEmailError(codeInvalid, "Invalid to email address")
)

// ErrTemplateNotFound creates a template not found error.
func ErrTemplateNotFound(templateName string) error {
	return &EmailError{
		Code:    codeNotFound,
		Message: fmt.Sprintf("Email template %s not found", templateName),
	}
}

// TransportError is returned by HTTP providers when the API rejects a
// request. StatusCode is the HTTP status; Code is the provider error code.
type TransportError struct {
	Provider   string
	StatusCode int
	Code       int
	Message    string
	Response   string
}

func (e *TransportError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s error %d (status %d): %s", e.Provider, e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}
