package domain

import (
	"context"
	"time"
)

// OutboxStatus is the delivery state of an outbox entry.
type OutboxStatus string

const (
	OutboxQueued  OutboxStatus = "queued"
	OutboxSending OutboxStatus = "sending"
	OutboxSent    OutboxStatus = "sent"
	OutboxDead    OutboxStatus = "dead"
)

// EmailLogStatus is the result recorded for one attempt.
type EmailLogStatus string

const (
	EmailLogSent   EmailLogStatus = "sent"
	EmailLogFailed EmailLogStatus = "failed"
)

// OutboxEntry is a queued email.
type OutboxEntry struct {
	ID              int64
	ToAddress       string
	Subject         string
	HTMLBody        string
	TextBody        string
	AttachmentsJSON []byte
	InvoiceID       *int64

	Status        OutboxStatus
	Attempts      int
	NextAttemptAt *time.Time // nil means eligible immediately
	LockedAt      *time.Time
	LockedBy      string
	LastError     string
	SentAt        *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewOutboxEntry holds the fields a producer supplies.
type NewOutboxEntry struct {
	ToAddress       string
	Subject         string
	HTMLBody        string
	TextBody        string
	AttachmentsJSON []byte
	InvoiceID       *int64
}

// EmailLog is an append-only record of one delivery attempt.
type EmailLog struct {
	OutboxID  int64
	ToAddress string
	Subject   string
	Status    EmailLogStatus
	Attempt   int
	MessageID string
	Error     string
}

// DeliverySuccess is written when the transport accepted the message.
type DeliverySuccess struct {
	ID       int64
	WorkerID string
	SentAt   time.Time
	Log      EmailLog
}

// DeliveryFailure is written after a failed attempt. NextAttemptAt is nil
// when Dead is set.
type DeliveryFailure struct {
	ID            int64
	WorkerID      string
	Attempts      int
	Dead          bool
	NextAttemptAt *time.Time
	LastError     string
	Log           EmailLog
}

// OutboxStore persists the email outbox and its delivery log.
type OutboxStore interface {
	Enqueue(ctx context.Context, e NewOutboxEntry) (int64, error)

	// Lease claims the oldest eligible entry for workerID and commits the
	// claim before returning. Returns nil, nil when nothing is eligible.
	Lease(ctx context.Context, workerID string, now time.Time, leaseTimeout time.Duration) (*OutboxEntry, error)

	// RecordSuccess and RecordFailure update the entry and append its log
	// row in one transaction. They return ErrLeaseLost when the entry is no
	// longer leased by WorkerID.
	RecordSuccess(ctx context.Context, s DeliverySuccess) error
	RecordFailure(ctx context.Context, f DeliveryFailure) error
}
