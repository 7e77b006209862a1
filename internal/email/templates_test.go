package email

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderer_InvoiceIssued(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	due := time.Date(2024, 4, 14, 0, 0, 0, 0, time.UTC)
	data := InvoiceIssuedEmail{
		CompanyName: "Resibo Trading",
		InvoiceNo:   "INV-000042",
		BillTo:      "Acme Corp",
		Date:        time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		DueDate:     &due,
		Currency:    "PHP",
		Total:       decimal.RequireFromString("1000"),
	}

	html, text, err := r.Render(data)
	require.NoError(t, err)

	assert.Equal(t, "Invoice INV-000042 from Resibo Trading", data.Subject())
	assert.Contains(t, html, "<h2>Invoice INV-000042</h2>")
	assert.Contains(t, text, "Dear Acme Corp,")
	assert.Contains(t, text, "PHP 1000.00")
	assert.Contains(t, text, "March 15, 2024")
	assert.Contains(t, text, "April 14, 2024")
	assert.NotContains(t, text, "<td>")
}

func TestRenderer_NoDueDate(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	_, text, err := r.Render(InvoiceIssuedEmail{InvoiceNo: "INV-000001", Date: time.Now(), Total: decimal.Zero})
	require.NoError(t, err)
	assert.NotContains(t, text, "Due date")
}

type missingTemplate struct{}

func (missingTemplate) Subject() string      { return "x" }
func (missingTemplate) TemplateName() string { return "nope.html" }

func TestRenderer_UnknownTemplate(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	_, _, err = r.Render(missingTemplate{})
	var ee *EmailError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, codeNotFound, ee.Code)
}
