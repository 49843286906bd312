package template

import (
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/billfox/dunning-api/internal/model"
)

// Placeholder syntaxes accepted in subject/body/recipient templates. Both
// forms resolve through the same field table; [[x]] is the historical form,
// {{invoice.x}} the newer one.
var (
	bracketRe  = regexp.MustCompile(`\[\[\s*([A-Za-z][A-Za-z0-9_]*)\s*\]\]`)
	mustacheRe = regexp.MustCompile(`(?i)\{\{\s*invoice\.([A-Za-z][A-Za-z0-9_]*)\s*\}\}`)
)

// Engine substitutes invoice fields into reminder templates with
// locale-aware formatting for dates and amounts. Rendering is pure and
// total: unknown placeholders and missing values become empty strings.
type Engine struct {
	printer    *message.Printer
	dateFormat string
}

func NewEngine() *Engine {
	return &Engine{
		printer:    message.NewPrinter(language.French),
		dateFormat: "02/01/2006",
	}
}

// Render replaces every placeholder in tmpl with the corresponding invoice
// field value. It never fails; degraded output is always returned.
func (e *Engine) Render(tmpl string, invoice *model.Invoice) string {
	if tmpl == "" || invoice == nil {
		return tmpl
	}

	resolve := func(field string) string {
		return e.resolveField(strings.ToLower(field), invoice)
	}

	out := bracketRe.ReplaceAllStringFunc(tmpl, func(m string) string {
		return resolve(bracketRe.FindStringSubmatch(m)[1])
	})
	out = mustacheRe.ReplaceAllStringFunc(out, func(m string) string {
		return resolve(mustacheRe.FindStringSubmatch(m)[1])
	})
	return out
}

// resolveField maps one lowercase placeholder name to a formatted invoice
// value. Field names carry both the ledger's legacy French identifiers and
// their English aliases.
func (e *Engine) resolveField(field string, inv *model.Invoice) string {
	switch field {
	case "nfacture", "numero", "number":
		return inv.Number
	case "resteapayer", "montant", "amount", "amountdue":
		return e.formatAmount(inv.AmountDue)
	case "dateecheance", "echeance", "duedate":
		return e.formatDate(inv.DueDate)
	case "nom", "client", "payername", "name":
		return inv.PayerName
	case "email", "payeremail":
		return inv.PayerEmail
	default:
		return ""
	}
}

func (e *Engine) formatAmount(v float64) string {
	return e.printer.Sprintf("%.2f", v) + " €"
}

func (e *Engine) formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(e.dateFormat)
}
