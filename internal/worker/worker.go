// Package worker delivers queued emails from the outbox.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/dukerupert/resibo/internal/clock"
	"github.com/dukerupert/resibo/internal/domain"
	"github.com/dukerupert/resibo/internal/email"
	"github.com/dukerupert/resibo/internal/telemetry"
)

const (
	DefaultLeaseTimeout = 5 * time.Minute
	DefaultMaxAttempts  = 5

	// MaxLastErrorLen bounds the stored last_error text, in characters.
	MaxLastErrorLen = 2000
)

// backoffSchedule is indexed by attempts-1. Later attempts use the last entry.
var backoffSchedule = []time.Duration{
	1 * time.Minute,
	3 * time.Minute,
	10 * time.Minute,
	30 * time.Minute,
	60 * time.Minute,
}

// Backoff returns the delay before the next try after the given number of
// failed attempts.
func Backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	if attempts > len(backoffSchedule) {
		return backoffSchedule[len(backoffSchedule)-1]
	}
	return backoffSchedule[attempts-1]
}

// Outcome is the result of one ProcessOnce call.
type Outcome string

const (
	OutcomeIdle  Outcome = "idle"
	OutcomeSent  Outcome = "sent"
	OutcomeRetry Outcome = "retry"
	OutcomeDead  Outcome = "dead"
	OutcomeError Outcome = "error"
)

// Config holds worker configuration
type Config struct {
	// WorkerID is stamped into locked_by. Defaults to worker-<8 hex>.
	WorkerID string

	// LeaseTimeout is how long a sending entry stays claimed before another
	// worker may reclaim it.
	LeaseTimeout time.Duration

	// MaxAttempts is the number of failed attempts after which an entry is dead.
	MaxAttempts int

	// From overrides the sender's default From address.
	From string
}

// OutboxWorker leases one outbox entry at a time and delivers it.
type OutboxWorker struct {
	config  Config
	store   domain.OutboxStore
	sender  email.Sender
	clock   clock.Clock
	metrics *telemetry.Metrics
	logger  *slog.Logger
}

// NewOutboxWorker creates an outbox worker. metrics may be nil.
func NewOutboxWorker(
	store domain.OutboxStore,
	sender email.Sender,
	clk clock.Clock,
	metrics *telemetry.Metrics,
	config Config,
	logger *slog.Logger,
) *OutboxWorker {
	if config.WorkerID == "" {
		config.WorkerID = fmt.Sprintf("worker-%s", uuid.New().String()[:8])
	}
	if config.LeaseTimeout == 0 {
		config.LeaseTimeout = DefaultLeaseTimeout
	}
	if config.MaxAttempts == 0 {
		config.MaxAttempts = DefaultMaxAttempts
	}
	if clk == nil {
		clk = clock.SystemClock{}
	}

	return &OutboxWorker{
		config:  config,
		store:   store,
		sender:  sender,
		clock:   clk,
		metrics: metrics,
		logger:  logger.With("worker_id", config.WorkerID),
	}
}

// WorkerID returns the identifier written to locked_by.
func (w *OutboxWorker) WorkerID() string {
	return w.config.WorkerID
}

// Verify checks the mail transport once. Callers log the error and keep going.
func (w *OutboxWorker) Verify(ctx context.Context) error {
	if err := w.sender.Verify(ctx); err != nil {
		d := email.DescribeError(err)
		c := email.Classify(d)
		w.logger.WarnContext(ctx, "mail transport verification failed",
			"category", c.Category,
			"code", d.Code,
			"error", err,
		)
		return err
	}
	w.logger.InfoContext(ctx, "mail transport verified")
	return nil
}

// Run adapts ProcessOnce to a scheduler task. Only lease and bookkeeping
// failures are returned as errors; delivery failures are recorded on the entry.
func (w *OutboxWorker) Run(ctx context.Context) error {
	if out := w.ProcessOnce(ctx); out == OutcomeError {
		return fmt.Errorf("outbox worker %s: attempt incomplete", w.config.WorkerID)
	}
	return nil
}

// ProcessOnce leases at most one entry and attempts delivery.
func (w *OutboxWorker) ProcessOnce(ctx context.Context) Outcome {
	entry, err := w.store.Lease(ctx, w.config.WorkerID, w.clock.Now(), w.config.LeaseTimeout)
	if err != nil {
		w.logger.ErrorContext(ctx, "failed to lease outbox entry", "error", err)
		return OutcomeError
	}
	if entry == nil {
		return OutcomeIdle
	}

	logger := w.logger.With("outbox_id", entry.ID, "attempt", entry.Attempts+1)

	attachments, skipped := email.DecodeAttachments(entry.AttachmentsJSON)
	if skipped > 0 {
		logger.WarnContext(ctx, "dropped undecodable attachments", "skipped", skipped)
	}

	msg := &email.Email{
		To:          []string{entry.ToAddress},
		From:        w.config.From,
		Subject:     entry.Subject,
		HTMLBody:    entry.HTMLBody,
		TextBody:    entry.TextBody,
		Attachments: attachments,
	}

	start := w.clock.Now()
	messageID, sendErr := w.sender.Send(ctx, msg)
	now := w.clock.Now()
	elapsed := now.Sub(start)

	if sendErr == nil {
		return w.recordSuccess(ctx, logger, entry, messageID, now, elapsed)
	}
	return w.recordFailure(ctx, logger, entry, sendErr, now, elapsed)
}

func (w *OutboxWorker) recordSuccess(ctx context.Context, logger *slog.Logger, entry *domain.OutboxEntry, messageID string, now time.Time, elapsed time.Duration) Outcome {
	err := w.store.RecordSuccess(ctx, domain.DeliverySuccess{
		ID:       entry.ID,
		WorkerID: w.config.WorkerID,
		SentAt:   now,
		Log: domain.EmailLog{
			OutboxID:  entry.ID,
			ToAddress: entry.ToAddress,
			Subject:   entry.Subject,
			Status:    domain.EmailLogSent,
			Attempt:   entry.Attempts + 1,
			MessageID: messageID,
		},
	})
	if errors.Is(err, domain.ErrLeaseLost) {
		logger.WarnContext(ctx, "email sent after lease was reclaimed", "message_id", messageID)
		return OutcomeError
	}
	if err != nil {
		// The lease expires and the entry is retried; the recipient may get a duplicate.
		logger.ErrorContext(ctx, "email sent but success not recorded", "message_id", messageID, "error", err)
		return OutcomeError
	}

	w.metrics.ObserveDelivery(string(OutcomeSent), "", elapsed)
	logger.InfoContext(ctx, "email sent", "message_id", messageID, "to", entry.ToAddress)
	return OutcomeSent
}

func (w *OutboxWorker) recordFailure(ctx context.Context, logger *slog.Logger, entry *domain.OutboxEntry, sendErr error, now time.Time, elapsed time.Duration) Outcome {
	desc := email.DescribeError(sendErr)
	class := email.Classify(desc)

	attempts := entry.Attempts + 1
	dead := class.Permanent || attempts >= w.config.MaxAttempts

	var next *time.Time
	if !dead {
		at := now.Add(Backoff(attempts))
		next = &at
	}

	message := desc.Message
	if message == "" {
		message = sendErr.Error()
	}
	lastError := Truncate(message, MaxLastErrorLen)

	err := w.store.RecordFailure(ctx, domain.DeliveryFailure{
		ID:            entry.ID,
		WorkerID:      w.config.WorkerID,
		Attempts:      attempts,
		Dead:          dead,
		NextAttemptAt: next,
		LastError:     lastError,
		Log: domain.EmailLog{
			OutboxID:  entry.ID,
			ToAddress: entry.ToAddress,
			Subject:   entry.Subject,
			Status:    domain.EmailLogFailed,
			Attempt:   attempts,
			Error:     fmt.Sprintf("[%s] %s", class.Category, lastError),
		},
	})
	if errors.Is(err, domain.ErrLeaseLost) {
		logger.WarnContext(ctx, "delivery failure not recorded: lease was reclaimed", "send_error", sendErr)
		return OutcomeError
	}
	if err != nil {
		logger.ErrorContext(ctx, "failed to record delivery failure",
			"send_error", sendErr,
			"error", err,
		)
		return OutcomeError
	}

	outcome := OutcomeRetry
	if dead {
		outcome = OutcomeDead
	}
	w.metrics.ObserveDelivery(string(outcome), class.Category, elapsed)

	if dead {
		logger.ErrorContext(ctx, "email dead-lettered",
			"category", class.Category,
			"permanent", class.Permanent,
			"attempts", attempts,
			"error", sendErr,
		)
		telemetry.CaptureError(sendErr,
			map[string]string{"component": "outbox", "category": class.Category},
			map[string]any{"outbox_id": entry.ID, "attempts": attempts, "to": entry.ToAddress},
		)
		return outcome
	}

	logger.WarnContext(ctx, "email delivery failed, will retry",
		"category", class.Category,
		"next_attempt_at", next.Format(time.RFC3339),
		"error", sendErr,
	)
	return outcome
}

// Truncate shortens s to at most n characters without splitting a rune.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
