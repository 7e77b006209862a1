package service

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"time"

	"github.com/dukerupert/resibo/internal/domain"
	"github.com/dukerupert/resibo/internal/telemetry"
	"github.com/shopspring/decimal"
)

// ISODate is the layout of run dates and todayISO.
const ISODate = "2006-01-02"

// GeneratedHook receives the invoices created by a committed batch.
type GeneratedHook interface {
	InvoicesGenerated(ctx context.Context, invoices []domain.Invoice)
}

type recurrenceService struct {
	store   domain.RecurrenceStore
	hook    GeneratedHook
	metrics *telemetry.Metrics
	logger  *slog.Logger
}

// RecurrenceOption configures the recurrence service.
type RecurrenceOption func(*recurrenceService)

// WithGeneratedHook registers a hook that runs after each committed batch.
func WithGeneratedHook(h GeneratedHook) RecurrenceOption {
	return func(s *recurrenceService) { s.hook = h }
}

// WithMetrics records batch outcomes and reports failed batches to Sentry.
func WithMetrics(m *telemetry.Metrics) RecurrenceOption {
	return func(s *recurrenceService) { s.metrics = m }
}

// NewRecurrenceService creates a RecurrenceService backed by store.
func NewRecurrenceService(store domain.RecurrenceStore, logger *slog.Logger, opts ...RecurrenceOption) domain.RecurrenceService {
	s := &recurrenceService{store: store, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunMonthlyRecurringInvoices generates one draft invoice per due template.
// Any error rolls back the whole batch.
func (s *recurrenceService) RunMonthlyRecurringInvoices(ctx context.Context, today time.Time) (domain.RunResult, error) {
	const op = "recurrence.run"

	today = CivilDate(today)
	result := domain.RunResult{TodayISO: today.Format(ISODate)}
	var generated []domain.Invoice

	err := s.store.InTx(ctx, func(tx domain.RecurrenceTx) error {
		templates, err := tx.LockDueTemplates(ctx, today)
		if err != nil {
			return domain.Internal(err, op, "failed to load due templates")
		}
		result.DueTemplateCount = len(templates)

		for i := range templates {
			inv, err := s.processTemplate(ctx, tx, &templates[i])
			if err != nil {
				return err
			}
			if inv != nil {
				generated = append(generated, *inv)
			}
		}
		return nil
	})
	if err != nil {
		s.metrics.ObserveRecurrence(0, 0, err)
		if !domain.IsCode(err, domain.ENOTINIT) {
			telemetry.CaptureError(err, map[string]string{"component": "recurrence"}, map[string]any{"today": result.TodayISO})
		}
		return domain.RunResult{TodayISO: result.TodayISO}, err
	}

	result.GeneratedCount = len(generated)
	s.metrics.ObserveRecurrence(result.DueTemplateCount, result.GeneratedCount, nil)
	if s.hook != nil && len(generated) > 0 {
		s.hook.InvoicesGenerated(ctx, generated)
	}
	return result, nil
}

// processTemplate handles one template. It returns the generated invoice,
// or nil when the run date was already recorded.
func (s *recurrenceService) processTemplate(ctx context.Context, tx domain.RecurrenceTx, tmpl *domain.Invoice) (*domain.Invoice, error) {
	const op = "recurrence.template"

	if tmpl.RecurrenceStartDate == nil {
		return nil, domain.Errorf(domain.EINVALID, op, "template %d has no recurrence start date", tmpl.ID)
	}
	runDate := CivilDate(*tmpl.RecurrenceStartDate)
	nextRunDate := AddMonthClamped(runDate)

	status := domain.RecurrenceActive
	if tmpl.RecurrenceEndDate != nil && nextRunDate.After(CivilDate(*tmpl.RecurrenceEndDate)) {
		status = domain.RecurrenceEnded
	}

	exists, err := tx.RecurrenceRunExists(ctx, tmpl.ID, runDate)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to check recurrence run")
	}
	if exists {
		s.logger.InfoContext(ctx, "recurrence run already recorded",
			"template_id", tmpl.ID,
			"run_date", runDate.Format(ISODate),
		)
		if err := tx.AdvanceTemplate(ctx, tmpl.ID, nextRunDate, status); err != nil {
			return nil, domain.Internal(err, op, "failed to advance template")
		}
		return nil, nil
	}

	invoiceNo, err := AllocateNextInvoiceNumber(ctx, tx)
	if err != nil {
		return nil, err
	}

	items, err := tx.ListItems(ctx, tmpl.ID)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load template items")
	}
	clonedItems, total := CloneItems(items)

	inv := &domain.Invoice{
		InvoiceNo:      invoiceNo,
		BillTo:         tmpl.BillTo,
		Address:        tmpl.Address,
		TIN:            tmpl.TIN,
		Terms:          tmpl.Terms,
		Currency:       tmpl.Currency,
		ExchangeRate:   tmpl.ExchangeRate,
		VATType:        tmpl.VATType,
		Date:           runDate,
		DueDate:        DueDate(runDate, tmpl.Terms),
		Status:         domain.InvoiceStatusDraft,
		Mode:           domain.InvoiceModeStandard,
		TotalAmountDue: total,
		ForeignTotal:   ForeignTotal(total, tmpl.ExchangeRate),
	}

	id, err := tx.InsertInvoice(ctx, inv)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to insert invoice")
	}
	inv.ID = id

	if err := tx.InsertItems(ctx, id, clonedItems); err != nil {
		return nil, domain.Internal(err, op, "failed to clone items")
	}
	if err := cloneTaxSummary(ctx, tx, tmpl.ID, id); err != nil {
		return nil, domain.Internal(err, op, "failed to clone tax summary")
	}
	if err := cloneFooter(ctx, tx, tmpl.ID, id); err != nil {
		return nil, domain.Internal(err, op, "failed to clone footer")
	}

	run := domain.RecurrenceRun{TemplateInvoiceID: tmpl.ID, RunDate: runDate, GeneratedInvoiceID: id}
	if err := tx.InsertRecurrenceRun(ctx, run); err != nil {
		return nil, domain.Internal(err, op, "failed to record recurrence run")
	}

	if err := tx.AdvanceTemplate(ctx, tmpl.ID, nextRunDate, status); err != nil {
		return nil, domain.Internal(err, op, "failed to advance template")
	}

	s.logger.InfoContext(ctx, "recurring invoice generated",
		"template_id", tmpl.ID,
		"invoice_id", id,
		"invoice_no", invoiceNo,
		"run_date", runDate.Format(ISODate),
		"next_run_date", nextRunDate.Format(ISODate),
		"recurrence_status", status,
	)
	return inv, nil
}

// cloneTaxSummary replaces the instance's tax summary with the template's.
func cloneTaxSummary(ctx context.Context, tx domain.RecurrenceTx, templateID, invoiceID int64) error {
	src, err := tx.GetTaxSummary(ctx, templateID)
	if err != nil || src == nil {
		return err
	}
	if err := tx.DeleteTaxSummary(ctx, invoiceID); err != nil {
		return err
	}
	dst := *src
	dst.InvoiceID = invoiceID
	return tx.InsertTaxSummary(ctx, dst)
}

// cloneFooter replaces the instance's footer with the template's.
func cloneFooter(ctx context.Context, tx domain.RecurrenceTx, templateID, invoiceID int64) error {
	src, err := tx.GetFooter(ctx, templateID)
	if err != nil || src == nil {
		return err
	}
	if err := tx.DeleteFooter(ctx, invoiceID); err != nil {
		return err
	}
	dst := *src
	dst.InvoiceID = invoiceID
	return tx.InsertFooter(ctx, dst)
}

// CloneItems copies template items for a new invoice. Each copy carries its
// resolved amount rounded to 2 places, and the total is the sum of those
// rounded amounts.
func CloneItems(items []domain.InvoiceItem) ([]domain.InvoiceItem, decimal.Decimal) {
	out := make([]domain.InvoiceItem, 0, len(items))
	total := decimal.Zero
	for _, it := range items {
		amount := it.LineAmount().Round(2)
		total = total.Add(amount)
		out = append(out, domain.InvoiceItem{
			Description: it.Description,
			AccountCode: it.AccountCode,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			Amount:      decimal.NewNullDecimal(amount),
			SortOrder:   it.SortOrder,
		})
	}
	return out, total.Round(2)
}

// ForeignTotal converts total by the exchange rate. A non-positive rate is
// treated as 1.
func ForeignTotal(total, rate decimal.Decimal) decimal.Decimal {
	if !rate.IsPositive() {
		rate = decimal.NewFromInt(1)
	}
	return total.Div(rate).Round(2)
}

// CivilDate strips the clock and zone from t, keeping its calendar date.
func CivilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AddMonthClamped returns the same day one month later, clamped to the last
// day of that month (Jan 31 becomes Feb 28 or 29).
func AddMonthClamped(d time.Time) time.Time {
	y, m, day := d.Date()
	lastDay := time.Date(y, m+2, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(y, m+1, day, 0, 0, 0, 0, time.UTC)
}

var firstInteger = regexp.MustCompile(`\d+`)

// ParseTermsDays returns the first integer in terms. "Net 30" is 30 and
// "2/10 Net 30" is 2. ok is false when terms has no digits.
func ParseTermsDays(terms string) (days int, ok bool) {
	m := firstInteger.FindString(terms)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return n, true
}

// DueDate returns runDate plus the terms days, or nil without terms.
func DueDate(runDate time.Time, terms string) *time.Time {
	days, ok := ParseTermsDays(terms)
	if !ok {
		return nil
	}
	due := runDate.AddDate(0, 0, days)
	return &due
}

// ParseISODate parses YYYY-MM-DD.
func ParseISODate(s string) (time.Time, error) {
	t, err := time.Parse(ISODate, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return t, nil
}
