package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/shopspring/decimal"
)

//go:embed templates/*.html
var templateFS embed.FS

// EmailTemplate is a message body rendered from an embedded template.
type EmailTemplate interface {
	Subject() string
	TemplateName() string
}

// InvoiceIssuedEmail notifies a customer that an invoice was issued.
type InvoiceIssuedEmail struct {
	CompanyName string
	InvoiceNo   string
	BillTo      string
	Date        time.Time
	DueDate     *time.Time
	Currency    string
	Total       decimal.Decimal
}

func (e InvoiceIssuedEmail) Subject() string {
	return fmt.Sprintf("Invoice %s from %s", e.InvoiceNo, e.CompanyName)
}

func (e InvoiceIssuedEmail) TemplateName() string {
	return "invoice_issued.html"
}

// Renderer renders embedded email templates. Each template wraps itself
// in the email_header and email_footer partials from layout.html.
type Renderer struct {
	templates *template.Template
}

// NewRenderer parses the embedded templates.
func NewRenderer() (*Renderer, error) {
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"date":  func(t time.Time) string { return t.Format("January 2, 2006") },
		"money": func(d decimal.Decimal) string { return d.StringFixed(2) },
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse email templates: %w", err)
	}
	return &Renderer{templates: tmpl}, nil
}

// Render returns the HTML body and its plain text version.
func (r *Renderer) Render(data EmailTemplate) (string, string, error) {
	if r.templates.Lookup(data.TemplateName()) == nil {
		return "", "", ErrTemplateNotFound(data.TemplateName())
	}

	var htmlBuf bytes.Buffer
	if err := r.templates.ExecuteTemplate(&htmlBuf, data.TemplateName(), data); err != nil {
		return "", "", fmt.Errorf("failed to execute template %s: %w", data.TemplateName(), err)
	}

	htmlBody := htmlBuf.String()
	return htmlBody, PlainText(htmlBody), nil
}
