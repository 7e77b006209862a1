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

// RecurrenceStore implements domain.RecurrenceStore.
type RecurrenceStore struct {
	db     TxBeginner
	logger *slog.Logger
}

// NewRecurrenceStore creates a RecurrenceStore.
func NewRecurrenceStore(db TxBeginner, logger *slog.Logger) *RecurrenceStore {
	return &RecurrenceStore{db: db, logger: logger}
}

// InTx implements domain.RecurrenceStore.
func (s *RecurrenceStore) InTx(ctx context.Context, fn func(tx domain.RecurrenceTx) error) error {
	return WithTx(ctx, s.db, s.logger, func(tx pgx.Tx) error {
		return fn(&recurrenceTx{tx: tx})
	})
}

// CounterTx wraps tx for invoice number allocation outside a recurrence batch.
func CounterTx(tx pgx.Tx) domain.CounterTx {
	return &recurrenceTx{tx: tx}
}

type recurrenceTx struct {
	tx pgx.Tx
}

func (t *recurrenceTx) LockCounter(ctx context.Context) (string, int64, error) {
	var (
		prefix string
		last   int64
	)
	err := t.tx.QueryRow(ctx, `
		SELECT prefix, last_number
		FROM invoice_counter
		ORDER BY id
		LIMIT 1
		FOR UPDATE
	`).Scan(&prefix, &last)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", 0, domain.ErrCounterNotInitialized
	}
	if err != nil {
		return "", 0, fmt.Errorf("lock invoice counter: %w", err)
	}
	return prefix, last, nil
}

func (t *recurrenceTx) SetCounter(ctx context.Context, last int64) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE invoice_counter
		SET last_number = $1, updated_at = now()
		WHERE id = (SELECT id FROM invoice_counter ORDER BY id LIMIT 1)
	`, last)
	if err != nil {
		return fmt.Errorf("set invoice counter: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCounterNotInitialized
	}
	return nil
}

const invoiceColumns = `
	id, invoice_no, bill_to, address, tin, terms, currency, exchange_rate, vat_type,
	date, due_date, status, invoice_mode, recurrence_type, recurrence_status,
	recurrence_start_date, recurrence_end_date, total_amount_due, foreign_total,
	created_at, updated_at`

func scanInvoice(row pgx.Row) (domain.Invoice, error) {
	var (
		inv              domain.Invoice
		recurrenceType   *string
		recurrenceStatus *string
	)
	err := row.Scan(
		&inv.ID, &inv.InvoiceNo, &inv.BillTo, &inv.Address, &inv.TIN, &inv.Terms, &inv.Currency,
		&inv.ExchangeRate, &inv.VATType, &inv.Date, &inv.DueDate, &inv.Status, &inv.Mode,
		&recurrenceType, &recurrenceStatus, &inv.RecurrenceStartDate, &inv.RecurrenceEndDate,
		&inv.TotalAmountDue, &inv.ForeignTotal, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if recurrenceType != nil {
		inv.RecurrenceType = *recurrenceType
	}
	if recurrenceStatus != nil {
		inv.RecurrenceStatus = domain.RecurrenceStatus(*recurrenceStatus)
	}
	return inv, err
}

func (t *recurrenceTx) LockDueTemplates(ctx context.Context, today time.Time) ([]domain.Invoice, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE invoice_mode = 'recurring'
		  AND recurrence_type = 'monthly'
		  AND recurrence_status = 'active'
		  AND recurrence_start_date IS NOT NULL
		  AND recurrence_start_date <= $1
		  AND (recurrence_end_date IS NULL OR $1 <= recurrence_end_date)
		ORDER BY id
		FOR UPDATE
	`, today)
	if err != nil {
		return nil, fmt.Errorf("lock due templates: %w", err)
	}
	defer rows.Close()

	var templates []domain.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate templates: %w", err)
	}
	return templates, nil
}

func (t *recurrenceTx) RecurrenceRunExists(ctx context.Context, templateID int64, runDate time.Time) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM invoice_recurrence_runs
			WHERE template_invoice_id = $1 AND run_date = $2
		)
	`, templateID, runDate).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check recurrence run: %w", err)
	}
	return exists, nil
}

func (t *recurrenceTx) InsertRecurrenceRun(ctx context.Context, run domain.RecurrenceRun) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO invoice_recurrence_runs (template_invoice_id, run_date, generated_invoice_id)
		VALUES ($1, $2, $3)
	`, run.TemplateInvoiceID, run.RunDate, run.GeneratedInvoiceID)
	if uniqueViolation(err) {
		return domain.Conflict("recurrence.mark", "recurrence run already recorded")
	}
	if err != nil {
		return fmt.Errorf("insert recurrence run: %w", err)
	}
	return nil
}

func (t *recurrenceTx) InsertInvoice(ctx context.Context, inv *domain.Invoice) (int64, error) {
	var recurrenceType, recurrenceStatus *string
	if inv.RecurrenceType != "" {
		recurrenceType = &inv.RecurrenceType
	}
	if inv.RecurrenceStatus != "" {
		s := string(inv.RecurrenceStatus)
		recurrenceStatus = &s
	}

	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO invoices (
			invoice_no, bill_to, address, tin, terms, currency, exchange_rate, vat_type,
			date, due_date, status, invoice_mode, recurrence_type, recurrence_status,
			recurrence_start_date, recurrence_end_date, total_amount_due, foreign_total
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING id
	`,
		inv.InvoiceNo, inv.BillTo, inv.Address, inv.TIN, inv.Terms, inv.Currency, inv.ExchangeRate, inv.VATType,
		inv.Date, inv.DueDate, inv.Status, inv.Mode, recurrenceType, recurrenceStatus,
		inv.RecurrenceStartDate, inv.RecurrenceEndDate, inv.TotalAmountDue, inv.ForeignTotal,
	).Scan(&id)
	if uniqueViolation(err) {
		return 0, domain.Conflict("invoice.insert", fmt.Sprintf("invoice number %s already exists", inv.InvoiceNo))
	}
	if err != nil {
		return 0, fmt.Errorf("insert invoice: %w", err)
	}
	return id, nil
}

func (t *recurrenceTx) ListItems(ctx context.Context, invoiceID int64) ([]domain.InvoiceItem, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, invoice_id, description, account_code, quantity, unit_price, amount, sort_order
		FROM invoice_items
		WHERE invoice_id = $1
		ORDER BY sort_order, id
	`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []domain.InvoiceItem
	for rows.Next() {
		var it domain.InvoiceItem
		if err := rows.Scan(&it.ID, &it.InvoiceID, &it.Description, &it.AccountCode,
			&it.Quantity, &it.UnitPrice, &it.Amount, &it.SortOrder); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (t *recurrenceTx) InsertItems(ctx context.Context, invoiceID int64, items []domain.InvoiceItem) error {
	if len(items) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(`
			INSERT INTO invoice_items (invoice_id, description, account_code, quantity, unit_price, amount, sort_order)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, invoiceID, it.Description, it.AccountCode, it.Quantity, it.UnitPrice, it.Amount, it.SortOrder)
	}

	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert items: %w", err)
	}
	return nil
}

func (t *recurrenceTx) GetTaxSummary(ctx context.Context, invoiceID int64) (*domain.TaxSummary, error) {
	var s domain.TaxSummary
	err := t.tx.QueryRow(ctx, `
		SELECT invoice_id, vatable_sales, vat_exempt_sales, zero_rated_sales, vat_amount, withholding_tax, ewt_rate_code
		FROM invoice_tax_summary
		WHERE invoice_id = $1
	`, invoiceID).Scan(&s.InvoiceID, &s.VatableSales, &s.VatExemptSales, &s.ZeroRatedSales,
		&s.VATAmount, &s.WithholdingTax, &s.EWTRateCode)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tax summary: %w", err)
	}
	return &s, nil
}

func (t *recurrenceTx) DeleteTaxSummary(ctx context.Context, invoiceID int64) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM invoice_tax_summary WHERE invoice_id = $1`, invoiceID); err != nil {
		return fmt.Errorf("delete tax summary: %w", err)
	}
	return nil
}

func (t *recurrenceTx) InsertTaxSummary(ctx context.Context, s domain.TaxSummary) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO invoice_tax_summary (
			invoice_id, vatable_sales, vat_exempt_sales, zero_rated_sales, vat_amount, withholding_tax, ewt_rate_code
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, s.InvoiceID, s.VatableSales, s.VatExemptSales, s.ZeroRatedSales, s.VATAmount, s.WithholdingTax, s.EWTRateCode)
	if err != nil {
		return fmt.Errorf("insert tax summary: %w", err)
	}
	return nil
}

func (t *recurrenceTx) GetFooter(ctx context.Context, invoiceID int64) (*domain.Footer, error) {
	var f domain.Footer
	err := t.tx.QueryRow(ctx, `
		SELECT invoice_id, notes, prepared_by, approved_by, received_by
		FROM invoice_footer
		WHERE invoice_id = $1
	`, invoiceID).Scan(&f.InvoiceID, &f.Notes, &f.PreparedBy, &f.ApprovedBy, &f.ReceivedBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get footer: %w", err)
	}
	return &f, nil
}

func (t *recurrenceTx) DeleteFooter(ctx context.Context, invoiceID int64) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM invoice_footer WHERE invoice_id = $1`, invoiceID); err != nil {
		return fmt.Errorf("delete footer: %w", err)
	}
	return nil
}

func (t *recurrenceTx) InsertFooter(ctx context.Context, f domain.Footer) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO invoice_footer (invoice_id, notes, prepared_by, approved_by, received_by)
		VALUES ($1, $2, $3, $4, $5)
	`, f.InvoiceID, f.Notes, f.PreparedBy, f.ApprovedBy, f.ReceivedBy)
	if err != nil {
		return fmt.Errorf("insert footer: %w", err)
	}
	return nil
}

func (t *recurrenceTx) AdvanceTemplate(ctx context.Context, templateID int64, next time.Time, status domain.RecurrenceStatus) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE invoices
		SET recurrence_start_date = $2, recurrence_status = $3, updated_at = now()
		WHERE id = $1
	`, templateID, next, string(status))
	if err != nil {
		return fmt.Errorf("advance template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("recurrence.advance", "invoice", fmt.Sprint(templateID))
	}
	return nil
}
