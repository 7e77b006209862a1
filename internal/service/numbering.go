package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukerupert/resibo/internal/domain"
)

// invoiceNumberWidth is the zero-padded width of the numeric suffix.
// Larger numbers are printed in full.
const invoiceNumberWidth = 6

// FormatInvoiceNumber renders prefix-NNNNNN.
func FormatInvoiceNumber(prefix string, n int64) string {
	return fmt.Sprintf("%s-%0*d", prefix, invoiceNumberWidth, n)
}

// AllocateNextInvoiceNumber reserves the next invoice number on the
// caller's transaction. The counter row stays locked until the transaction
// ends, and a rollback releases the number for reuse.
func AllocateNextInvoiceNumber(ctx context.Context, tx domain.CounterTx) (string, error) {
	const op = "numbering.allocate"

	prefix, last, err := tx.LockCounter(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrCounterNotInitialized) {
			return "", &domain.Error{
				Code:    domain.ENOTINIT,
				Op:      op,
				Message: domain.ErrCounterNotInitialized.Message,
				Err:     err,
			}
		}
		return "", domain.Internal(err, op, "failed to lock invoice counter")
	}

	next := last + 1
	if err := tx.SetCounter(ctx, next); err != nil {
		return "", domain.Internal(err, op, "failed to advance invoice counter")
	}

	return FormatInvoiceNumber(prefix, next), nil
}
