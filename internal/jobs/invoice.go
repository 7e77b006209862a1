package jobs

import (
	"context"
	"log/slog"

	"github.com/dukerupert/resibo/internal/domain"
	"github.com/dukerupert/resibo/internal/email"
	"github.com/dukerupert/resibo/internal/telemetry"
)

// InvoiceNotifier queues an invoice-issued email for every invoice a
// recurrence batch generates. It satisfies service.GeneratedHook.
type InvoiceNotifier struct {
	queue       Enqueuer
	renderer    *email.Renderer
	metrics     *telemetry.Metrics
	to          string
	companyName string
	logger      *slog.Logger
}

// NewInvoiceNotifier sends notifications to a single operator address.
func NewInvoiceNotifier(q Enqueuer, r *email.Renderer, metrics *telemetry.Metrics, to, companyName string, logger *slog.Logger) *InvoiceNotifier {
	return &InvoiceNotifier{
		queue:       q,
		renderer:    r,
		metrics:     metrics,
		to:          to,
		companyName: companyName,
		logger:      logger,
	}
}

// InvoicesGenerated runs after the batch has committed, so a failure here
// leaves the invoices in place and is only logged.
func (n *InvoiceNotifier) InvoicesGenerated(ctx context.Context, invoices []domain.Invoice) {
	for _, inv := range invoices {
		total := inv.TotalAmountDue
		if inv.Currency != "" && inv.Currency != domain.BaseCurrency && !inv.ForeignTotal.IsZero() {
			total = inv.ForeignTotal
		}

		id, err := EnqueueInvoiceEmail(ctx, n.queue, n.renderer, n.metrics, n.to, inv.ID, email.InvoiceIssuedEmail{
			CompanyName: n.companyName,
			InvoiceNo:   inv.InvoiceNo,
			BillTo:      inv.BillTo,
			Date:        inv.Date,
			DueDate:     inv.DueDate,
			Currency:    inv.Currency,
			Total:       total,
		})
		if err != nil {
			n.logger.ErrorContext(ctx, "failed to queue invoice notification",
				"invoice_id", inv.ID,
				"invoice_no", inv.InvoiceNo,
				"error", err,
			)
			continue
		}
		n.logger.InfoContext(ctx, "invoice notification queued",
			"invoice_no", inv.InvoiceNo,
			"outbox_id", id,
		)
	}
}
