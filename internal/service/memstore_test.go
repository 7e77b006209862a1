package service

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/dukerupert/resibo/internal/domain"
)

type runKey struct {
	templateID int64
	runDate    string
}

type memState struct {
	counterSet bool
	prefix     string
	last       int64
	nextID     int64
	invoices   map[int64]domain.Invoice
	items      map[int64][]domain.InvoiceItem
	tax        map[int64]domain.TaxSummary
	footers    map[int64]domain.Footer
	runs       map[runKey]domain.RecurrenceRun
}

func (s memState) clone() memState {
	c := s
	c.invoices = maps.Clone(s.invoices)
	c.items = make(map[int64][]domain.InvoiceItem, len(s.items))
	for k, v := range s.items {
		c.items[k] = slices.Clone(v)
	}
	c.tax = maps.Clone(s.tax)
	c.footers = maps.Clone(s.footers)
	c.runs = maps.Clone(s.runs)
	return c
}

// memStore is an in-memory RecurrenceStore. InTx holds a store-wide lock
// for the whole transaction and restores a snapshot on error.
type memStore struct {
	mu    sync.Mutex
	state memState

	// failOn makes the named tx method return an error.
	failOn string
}

func newMemStore(prefix string, last int64) *memStore {
	return &memStore{state: memState{
		counterSet: true,
		prefix:     prefix,
		last:       last,
		nextID:     100,
		invoices:   map[int64]domain.Invoice{},
		items:      map[int64][]domain.InvoiceItem{},
		tax:        map[int64]domain.TaxSummary{},
		footers:    map[int64]domain.Footer{},
		runs:       map[runKey]domain.RecurrenceRun{},
	}}
}

func (m *memStore) InTx(ctx context.Context, fn func(tx domain.RecurrenceTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.clone()
	if err := fn(&memTx{m: m}); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

func (m *memStore) addTemplate(inv domain.Invoice, items []domain.InvoiceItem) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.nextID++
	inv.ID = m.state.nextID
	m.state.invoices[inv.ID] = inv
	for i := range items {
		items[i].InvoiceID = inv.ID
	}
	m.state.items[inv.ID] = items
	return inv.ID
}

func (m *memStore) invoice(id int64) domain.Invoice {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.invoices[id]
}

func (m *memStore) standalone() []domain.Invoice {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Invoice
	for _, inv := range m.state.invoices {
		if inv.Mode == domain.InvoiceModeStandard {
			out = append(out, inv)
		}
	}
	slices.SortFunc(out, func(a, b domain.Invoice) int { return int(a.ID - b.ID) })
	return out
}

type memTx struct {
	m *memStore
}

type failErr string

func (e failErr) Error() string { return "forced failure in " + string(e) }

func (t *memTx) fail(name string) error {
	if t.m.failOn == name {
		return failErr(name)
	}
	return nil
}

func (t *memTx) LockCounter(ctx context.Context) (string, int64, error) {
	if err := t.fail("LockCounter"); err != nil {
		return "", 0, err
	}
	if !t.m.state.counterSet {
		return "", 0, domain.ErrCounterNotInitialized
	}
	return t.m.state.prefix, t.m.state.last, nil
}

func (t *memTx) SetCounter(ctx context.Context, last int64) error {
	t.m.state.last = last
	return nil
}

func (t *memTx) LockDueTemplates(ctx context.Context, today time.Time) ([]domain.Invoice, error) {
	var out []domain.Invoice
	for _, inv := range t.m.state.invoices {
		if inv.Mode != domain.InvoiceModeRecurring || inv.RecurrenceType != domain.RecurrenceMonthly ||
			inv.RecurrenceStatus != domain.RecurrenceActive || inv.RecurrenceStartDate == nil {
			continue
		}
		if inv.RecurrenceStartDate.After(today) {
			continue
		}
		if inv.RecurrenceEndDate != nil && today.After(*inv.RecurrenceEndDate) {
			continue
		}
		out = append(out, inv)
	}
	slices.SortFunc(out, func(a, b domain.Invoice) int { return int(a.ID - b.ID) })
	return out, nil
}

func (t *memTx) RecurrenceRunExists(ctx context.Context, templateID int64, runDate time.Time) (bool, error) {
	_, ok := t.m.state.runs[runKey{templateID, runDate.Format(ISODate)}]
	return ok, nil
}

func (t *memTx) InsertRecurrenceRun(ctx context.Context, run domain.RecurrenceRun) error {
	if err := t.fail("InsertRecurrenceRun"); err != nil {
		return err
	}
	t.m.state.runs[runKey{run.TemplateInvoiceID, run.RunDate.Format(ISODate)}] = run
	return nil
}

func (t *memTx) InsertInvoice(ctx context.Context, inv *domain.Invoice) (int64, error) {
	t.m.state.nextID++
	c := *inv
	c.ID = t.m.state.nextID
	t.m.state.invoices[c.ID] = c
	return c.ID, nil
}

func (t *memTx) ListItems(ctx context.Context, invoiceID int64) ([]domain.InvoiceItem, error) {
	return slices.Clone(t.m.state.items[invoiceID]), nil
}

func (t *memTx) InsertItems(ctx context.Context, invoiceID int64, items []domain.InvoiceItem) error {
	for _, it := range items {
		it.InvoiceID = invoiceID
		t.m.state.items[invoiceID] = append(t.m.state.items[invoiceID], it)
	}
	return nil
}

func (t *memTx) GetTaxSummary(ctx context.Context, invoiceID int64) (*domain.TaxSummary, error) {
	s, ok := t.m.state.tax[invoiceID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (t *memTx) DeleteTaxSummary(ctx context.Context, invoiceID int64) error {
	delete(t.m.state.tax, invoiceID)
	return nil
}

func (t *memTx) InsertTaxSummary(ctx context.Context, s domain.TaxSummary) error {
	if _, ok := t.m.state.tax[s.InvoiceID]; ok {
		return failErr("duplicate tax summary")
	}
	t.m.state.tax[s.InvoiceID] = s
	return nil
}

func (t *memTx) GetFooter(ctx context.Context, invoiceID int64) (*domain.Footer, error) {
	f, ok := t.m.state.footers[invoiceID]
	if !ok {
		return nil, nil
	}
	return &f, nil
}

func (t *memTx) DeleteFooter(ctx context.Context, invoiceID int64) error {
	delete(t.m.state.footers, invoiceID)
	return nil
}

func (t *memTx) InsertFooter(ctx context.Context, f domain.Footer) error {
	if _, ok := t.m.state.footers[f.InvoiceID]; ok {
		return failErr("duplicate footer")
	}
	t.m.state.footers[f.InvoiceID] = f
	return nil
}

func (t *memTx) AdvanceTemplate(ctx context.Context, templateID int64, next time.Time, status domain.RecurrenceStatus) error {
	inv := t.m.state.invoices[templateID]
	inv.RecurrenceStartDate = &next
	inv.RecurrenceStatus = status
	t.m.state.invoices[templateID] = inv
	return nil
}
