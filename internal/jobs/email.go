// Package jobs produces outbox entries and periodic maintenance work.
package jobs

import (
	"context"
	"fmt"
	"strings"

	"github.com/dukerupert/resibo/internal/domain"
	"github.com/dukerupert/resibo/internal/email"
	"github.com/dukerupert/resibo/internal/telemetry"
)

// Email kinds, used as the metrics label.
const (
	KindGeneric       = "generic"
	KindInvoiceIssued = "invoice_issued"
)

// Enqueuer stores outbox entries. *postgres.OutboxStore implements it.
type Enqueuer interface {
	Enqueue(ctx context.Context, e domain.NewOutboxEntry) (int64, error)
}

// EmailJob is a message a producer wants delivered through the outbox.
type EmailJob struct {
	To          string
	Subject     string
	HTMLBody    string
	TextBody    string // derived from HTMLBody when empty
	Attachments []email.Attachment
	InvoiceID   *int64
}

// EnqueueEmail validates the job and queues it for the outbox worker.
func EnqueueEmail(ctx context.Context, q Enqueuer, metrics *telemetry.Metrics, job EmailJob) (int64, error) {
	return enqueue(ctx, q, metrics, KindGeneric, job)
}

func enqueue(ctx context.Context, q Enqueuer, metrics *telemetry.Metrics, kind string, job EmailJob) (int64, error) {
	const op = "jobs.enqueue"

	fields := map[string]string{}
	if !strings.Contains(job.To, "@") {
		fields["to"] = "recipient address is required"
	}
	if strings.TrimSpace(job.Subject) == "" {
		fields["subject"] = "subject is required"
	}
	if job.HTMLBody == "" && job.TextBody == "" {
		fields["body"] = "email body is required"
	}
	if len(fields) > 0 {
		return 0, &domain.ValidationError{Op: op, Fields: fields}
	}

	text := job.TextBody
	if text == "" {
		text = email.PlainText(job.HTMLBody)
	}

	attachments, err := email.EncodeAttachments(job.Attachments)
	if err != nil {
		return 0, fmt.Errorf("failed to encode attachments: %w", err)
	}

	id, err := q.Enqueue(ctx, domain.NewOutboxEntry{
		ToAddress:       job.To,
		Subject:         job.Subject,
		HTMLBody:        job.HTMLBody,
		TextBody:        text,
		AttachmentsJSON: attachments,
		InvoiceID:       job.InvoiceID,
	})
	if err != nil {
		return 0, err
	}

	metrics.ObserveEnqueue(kind)
	return id, nil
}

// EnqueueInvoiceEmail renders the invoice-issued template and queues it.
func EnqueueInvoiceEmail(
	ctx context.Context,
	q Enqueuer,
	r *email.Renderer,
	metrics *telemetry.Metrics,
	to string,
	invoiceID int64,
	data email.InvoiceIssuedEmail,
	attachments ...email.Attachment,
) (int64, error) {
	htmlBody, textBody, err := r.Render(data)
	if err != nil {
		return 0, fmt.Errorf("failed to render invoice email: %w", err)
	}

	return enqueue(ctx, q, metrics, KindInvoiceIssued, EmailJob{
		To:          to,
		Subject:     data.Subject(),
		HTMLBody:    htmlBody,
		TextBody:    textBody,
		Attachments: attachments,
		InvoiceID:   &invoiceID,
	})
}
