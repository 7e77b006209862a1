package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/resibo/internal/domain"
	"github.com/jackc/pgx/v5"
)

// OutboxStore implements domain.OutboxStore.
type OutboxStore struct {
	db     Pool
	logger *slog.Logger
}

// Pool is the subset of *pgxpool.Pool the outbox needs.
type Pool interface {
	DBTX
	TxBeginner
}

// NewOutboxStore creates an OutboxStore.
func NewOutboxStore(db Pool, logger *slog.Logger) *OutboxStore {
	return &OutboxStore{db: db, logger: logger}
}

const insertOutbox = `
	INSERT INTO email_outbox (to_address, subject, html_body, text_body, attachments_json, invoice_id, status)
	VALUES ($1, $2, $3, $4, $5, $6, 'queued')
	RETURNING id
`

// Enqueue stores a new queued email.
func (s *OutboxStore) Enqueue(ctx context.Context, e domain.NewOutboxEntry) (int64, error) {
	var attachments any
	if len(e.AttachmentsJSON) > 0 {
		attachments = string(e.AttachmentsJSON)
	}

	var id int64
	if err := s.db.QueryRow(ctx, insertOutbox,
		e.ToAddress, e.Subject, e.HTMLBody, e.TextBody, attachments, e.InvoiceID,
	).Scan(&id); err != nil {
		return 0, fmt.Errorf("enqueue email: %w", err)
	}
	return id, nil
}

// Lease claims the oldest eligible entry. Queued entries are eligible once
// next_attempt_at has passed; sending entries are reclaimed once their lease
// is older than leaseTimeout.
func (s *OutboxStore) Lease(ctx context.Context, workerID string, now time.Time, leaseTimeout time.Duration) (*domain.OutboxEntry, error) {
	staleBefore := now.Add(-leaseTimeout)

	var entry *domain.OutboxEntry
	err := WithTx(ctx, s.db, s.logger, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			SELECT id, to_address, subject, html_body, text_body, attachments_json, invoice_id,
			       status, attempts, next_attempt_at, created_at
			FROM email_outbox
			WHERE (status = 'queued'
			       AND (next_attempt_at IS NULL OR next_attempt_at <= $1)
			       AND (locked_at IS NULL OR locked_at < $2))
			   OR (status = 'sending' AND locked_at < $2)
			ORDER BY id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		`, now, staleBefore)

		var (
			e           domain.OutboxEntry
			attachments []byte
		)
		err := row.Scan(&e.ID, &e.ToAddress, &e.Subject, &e.HTMLBody, &e.TextBody, &attachments,
			&e.InvoiceID, &e.Status, &e.Attempts, &e.NextAttemptAt, &e.CreatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("select outbox entry: %w", err)
		}
		e.AttachmentsJSON = attachments

		if _, err := tx.Exec(ctx, `
			UPDATE email_outbox
			SET status = 'sending', locked_at = $2, locked_by = $3, updated_at = $2
			WHERE id = $1
		`, e.ID, now, workerID); err != nil {
			return fmt.Errorf("lease outbox entry: %w", err)
		}

		e.Status = domain.OutboxSending
		e.LockedAt = &now
		e.LockedBy = workerID
		entry = &e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// RecordSuccess marks the entry sent and appends its log row. Zero updated
// rows means another worker reclaimed the lease.
func (s *OutboxStore) RecordSuccess(ctx context.Context, r domain.DeliverySuccess) error {
	return WithTx(ctx, s.db, s.logger, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE email_outbox
			SET status = 'sent', last_error = NULL, locked_at = NULL, locked_by = NULL,
			    sent_at = $2, updated_at = $2
			WHERE id = $1 AND status = 'sending' AND locked_by = $3
		`, r.ID, r.SentAt, r.WorkerID)
		if err != nil {
			return fmt.Errorf("mark outbox entry sent: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrLeaseLost
		}
		return insertLog(ctx, tx, r.Log)
	})
}

// RecordFailure stores the attempt outcome and appends its log row.
func (s *OutboxStore) RecordFailure(ctx context.Context, f domain.DeliveryFailure) error {
	status := domain.OutboxQueued
	if f.Dead {
		status = domain.OutboxDead
	}

	return WithTx(ctx, s.db, s.logger, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE email_outbox
			SET status = $2, attempts = $3, next_attempt_at = $4, last_error = $5,
			    locked_at = NULL, locked_by = NULL, updated_at = now()
			WHERE id = $1 AND status = 'sending' AND locked_by = $6
		`, f.ID, string(status), f.Attempts, f.NextAttemptAt, f.LastError, f.WorkerID)
		if err != nil {
			return fmt.Errorf("record outbox failure: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrLeaseLost
		}
		return insertLog(ctx, tx, f.Log)
	})
}

func insertLog(ctx context.Context, tx pgx.Tx, l domain.EmailLog) error {
	var messageID, logErr *string
	if l.MessageID != "" {
		messageID = &l.MessageID
	}
	if l.Error != "" {
		logErr = &l.Error
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO email_logs (outbox_id, to_address, subject, status, attempt, message_id, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, l.OutboxID, l.ToAddress, l.Subject, string(l.Status), l.Attempt, messageID, logErr)
	if err != nil {
		return fmt.Errorf("insert email log: %w", err)
	}
	return nil
}

// PruneSentBodies clears the bodies and attachments of entries sent before
// the cutoff. Rows and their logs are kept.
func (s *OutboxStore) PruneSentBodies(ctx context.Context, sentBefore time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE email_outbox
		SET html_body = '', text_body = '', attachments_json = NULL, updated_at = now()
		WHERE status = 'sent' AND sent_at < $1
		  AND (html_body <> '' OR text_body <> '' OR attachments_json IS NOT NULL)
	`, sentBefore)
	if err != nil {
		return 0, fmt.Errorf("prune sent outbox bodies: %w", err)
	}
	return tag.RowsAffected(), nil
}
