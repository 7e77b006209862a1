package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceMode distinguishes recurring templates from standalone invoices.
type InvoiceMode string

const (
	InvoiceModeStandard  InvoiceMode = "standard"
	InvoiceModeRecurring InvoiceMode = "recurring"
)

// RecurrenceStatus is the lifecycle of a recurring template.
type RecurrenceStatus string

const (
	RecurrenceActive RecurrenceStatus = "active"
	RecurrenceEnded  RecurrenceStatus = "ended"
)

const (
	RecurrenceMonthly  = "monthly"
	InvoiceStatusDraft = "draft"

	// BaseCurrency is the currency TotalAmountDue is kept in.
	BaseCurrency = "PHP"
)

// Invoice is a row of the invoices table. Templates carry the recurrence
// fields; generated instances are standalone drafts.
type Invoice struct {
	ID           int64
	InvoiceNo    string
	BillTo       string
	Address      string
	TIN          string
	Terms        string
	Currency     string
	ExchangeRate decimal.Decimal
	VATType      string
	Date         time.Time
	DueDate      *time.Time
	Status       string
	Mode         InvoiceMode

	RecurrenceType      string
	RecurrenceStatus    RecurrenceStatus
	RecurrenceStartDate *time.Time // next due date for templates
	RecurrenceEndDate   *time.Time

	TotalAmountDue decimal.Decimal
	ForeignTotal   decimal.Decimal

	CreatedAt time.Time
	UpdatedAt time.Time
}

// InvoiceItem is a line item. Amount is optional; when absent the line is
// valued at Quantity x UnitPrice.
type InvoiceItem struct {
	ID          int64
	InvoiceID   int64
	Description string
	AccountCode string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	Amount      decimal.NullDecimal
	SortOrder   int
}

// LineAmount returns the stored amount or the computed one.
func (it InvoiceItem) LineAmount() decimal.Decimal {
	if it.Amount.Valid {
		return it.Amount.Decimal
	}
	return it.Quantity.Mul(it.UnitPrice)
}

// TaxSummary holds the VAT breakdown of an invoice. One row per invoice.
type TaxSummary struct {
	InvoiceID      int64
	VatableSales   decimal.Decimal
	VatExemptSales decimal.Decimal
	ZeroRatedSales decimal.Decimal
	VATAmount      decimal.Decimal
	WithholdingTax decimal.Decimal
	EWTRateCode    *string
}

// Footer holds the signature block of an invoice. One row per invoice.
type Footer struct {
	InvoiceID  int64
	Notes      string
	PreparedBy string
	ApprovedBy string
	ReceivedBy string
}

// RecurrenceRun marks that a template produced an invoice for a run date.
// (TemplateInvoiceID, RunDate) is unique.
type RecurrenceRun struct {
	TemplateInvoiceID  int64
	RunDate            time.Time
	GeneratedInvoiceID int64
}

// RunResult summarizes one recurrence batch.
type RunResult struct {
	TodayISO         string `json:"todayISO"`
	DueTemplateCount int    `json:"dueTemplateCount"`
	GeneratedCount   int    `json:"generatedCount"`
}

// CounterTx is the part of a database transaction used to allocate
// invoice numbers. LockCounter must hold a row lock until the
// transaction ends.
type CounterTx interface {
	// LockCounter returns the prefix and last issued number.
	// Returns ErrCounterNotInitialized when the counter row is missing.
	LockCounter(ctx context.Context) (prefix string, lastNumber int64, err error)

	// SetCounter stores the new last issued number.
	SetCounter(ctx context.Context, lastNumber int64) error
}

// RecurrenceTx is a transaction scoped to one recurrence batch.
type RecurrenceTx interface {
	CounterTx

	// LockDueTemplates locks active monthly templates whose next due date
	// is on or before today and whose end date has not passed, ordered by id.
	LockDueTemplates(ctx context.Context, today time.Time) ([]Invoice, error)

	RecurrenceRunExists(ctx context.Context, templateID int64, runDate time.Time) (bool, error)
	InsertRecurrenceRun(ctx context.Context, run RecurrenceRun) error

	// InsertInvoice stores a new invoice and returns its id.
	InsertInvoice(ctx context.Context, inv *Invoice) (int64, error)
	ListItems(ctx context.Context, invoiceID int64) ([]InvoiceItem, error)
	InsertItems(ctx context.Context, invoiceID int64, items []InvoiceItem) error

	// GetTaxSummary and GetFooter return nil when the invoice has none.
	GetTaxSummary(ctx context.Context, invoiceID int64) (*TaxSummary, error)
	DeleteTaxSummary(ctx context.Context, invoiceID int64) error
	InsertTaxSummary(ctx context.Context, s TaxSummary) error
	GetFooter(ctx context.Context, invoiceID int64) (*Footer, error)
	DeleteFooter(ctx context.Context, invoiceID int64) error
	InsertFooter(ctx context.Context, f Footer) error

	// AdvanceTemplate moves the template's next due date and status.
	AdvanceTemplate(ctx context.Context, templateID int64, next time.Time, status RecurrenceStatus) error
}

// RecurrenceStore runs fn inside one transaction. The transaction is
// committed when fn returns nil and rolled back otherwise.
type RecurrenceStore interface {
	InTx(ctx context.Context, fn func(tx RecurrenceTx) error) error
}

// RecurrenceService generates invoices from due recurring templates.
type RecurrenceService interface {
	// RunMonthlyRecurringInvoices processes every template due on today.
	// The whole batch is one transaction.
	RunMonthlyRecurringInvoices(ctx context.Context, today time.Time) (RunResult, error)
}
