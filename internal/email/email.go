package email

import "context"

// Email represents an email message to be sent.
type Email struct {
	To          []string          // Recipient email addresses
	From        string            // Sender address; falls back to the sender's default
	Subject     string            // Email subject
	TextBody    string            // Plain text body
	HTMLBody    string            // HTML body (optional)
	Attachments []Attachment      // File attachments (optional)
	Headers     map[string]string // Custom headers (optional)
}

// Attachment represents a file attachment for an email.
type Attachment struct {
	Filename    string // Name of the file
	ContentType string // MIME type
	Content     []byte // File content
}

// Sender defines the interface for delivering emails.
// Implementations exist for SMTP and Postmark.
type Sender interface {
	// Send delivers an email message and returns the transport message id.
	Send(ctx context.Context, email *Email) (string, error)

	// Verify checks connectivity and credentials without sending mail.
	Verify(ctx context.Context) error
}
