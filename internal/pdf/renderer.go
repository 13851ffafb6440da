// Package pdf renders invoices to PDF with go-pdf/fpdf.
package pdf

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/diewo77/facturly/internal/billing"
	"github.com/diewo77/facturly/internal/models"
	"github.com/go-pdf/fpdf"
	"github.com/shopspring/decimal"
)

const dateLayout = "02/01/2006"

// Renderer implements billing.Renderer. It prints the amounts it is given
// and never computes totals itself.
type Renderer struct {
	// Currency is appended to every amount. Defaults to "€".
	Currency string
}

var _ billing.Renderer = (*Renderer)(nil)

// NewRenderer returns a renderer using the euro sign.
func NewRenderer() *Renderer {
	return &Renderer{Currency: "€"}
}

func (r *Renderer) money(d decimal.Decimal) string {
	cur := r.Currency
	if cur == "" {
		cur = "€"
	}
	return d.StringFixed(2) + " " + cur
}

// Render builds an A4 invoice document.
func (r *Renderer) Render(inv models.Invoice) ([]byte, error) {
	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetMargins(15, 15, 15)
	doc.SetTitle("Facture "+inv.Number, true)
	doc.AddPage()
	tr := doc.UnicodeTranslatorFromDescriptor("")

	pageW, _ := doc.GetPageSize()
	contentW := pageW - 30

	// Header
	doc.SetFont("Helvetica", "B", 18)
	doc.CellFormat(contentW/2, 10, tr("FACTURE"), "", 0, "L", false, 0, "")
	doc.SetFont("Helvetica", "", 10)
	doc.CellFormat(contentW/2, 10, tr("N° "+inv.Number), "", 1, "R", false, 0, "")
	doc.CellFormat(contentW, 5, tr("Date d'émission : "+inv.IssueDate.Format(dateLayout)), "", 1, "R", false, 0, "")
	if inv.DueDate != nil {
		doc.CellFormat(contentW, 5, tr("Échéance : "+inv.DueDate.Format(dateLayout)), "", 1, "R", false, 0, "")
	}
	doc.Ln(6)

	// Parties
	top := doc.GetY()
	r.party(doc, tr, "Émetteur", inv.Seller, 15, contentW/2-5)
	sellerBottom := doc.GetY()
	doc.SetY(top)
	r.party(doc, tr, "Client", inv.Client, 15+contentW/2+5, contentW/2-5)
	doc.SetY(max(sellerBottom, doc.GetY()) + 6)

	// Items
	colDesc := contentW * 0.50
	colQty := contentW * 0.12
	colPrice := contentW * 0.19
	colTotal := contentW * 0.19

	doc.SetFont("Helvetica", "B", 9)
	doc.SetFillColor(235, 235, 235)
	doc.CellFormat(colDesc, 7, tr("Désignation"), "B", 0, "L", true, 0, "")
	doc.CellFormat(colQty, 7, tr("Qté"), "B", 0, "R", true, 0, "")
	doc.CellFormat(colPrice, 7, tr("P.U. HT"), "B", 0, "R", true, 0, "")
	doc.CellFormat(colTotal, 7, tr("Total HT"), "B", 1, "R", true, 0, "")

	doc.SetFont("Helvetica", "", 9)
	for _, it := range inv.Items {
		doc.CellFormat(colDesc, 6, tr(it.Description), "", 0, "L", false, 0, "")
		doc.CellFormat(colQty, 6, it.Quantity.String(), "", 0, "R", false, 0, "")
		doc.CellFormat(colPrice, 6, tr(r.money(it.UnitPrice)), "", 0, "R", false, 0, "")
		doc.CellFormat(colTotal, 6, tr(r.money(it.TotalHT)), "", 1, "R", false, 0, "")
	}
	doc.Ln(4)

	// Totals
	labelW := colDesc + colQty + colPrice
	doc.CellFormat(labelW, 6, tr("Total HT"), "", 0, "R", false, 0, "")
	doc.CellFormat(colTotal, 6, tr(r.money(inv.TotalHT)), "", 1, "R", false, 0, "")
	doc.CellFormat(labelW, 6, tr(fmt.Sprintf("TVA %s %%", inv.TaxRate.String())), "", 0, "R", false, 0, "")
	doc.CellFormat(colTotal, 6, tr(r.money(inv.TaxAmount)), "", 1, "R", false, 0, "")
	doc.SetFont("Helvetica", "B", 10)
	doc.CellFormat(labelW, 7, tr("Total TTC"), "T", 0, "R", false, 0, "")
	doc.CellFormat(colTotal, 7, tr(r.money(inv.TotalTTC)), "T", 1, "R", false, 0, "")

	// Footer
	doc.Ln(8)
	doc.SetFont("Helvetica", "", 8)
	if inv.PaymentTerms != "" {
		doc.MultiCell(contentW, 4, tr(inv.PaymentTerms), "", "L", false)
	}
	if inv.Notes != "" {
		doc.MultiCell(contentW, 4, tr(inv.Notes), "", "L", false)
	}
	if inv.Status == models.InvoiceStatusPaid && inv.PaidDate != nil {
		doc.SetFont("Helvetica", "B", 9)
		doc.CellFormat(contentW, 6, tr("Payée le "+inv.PaidDate.Format(dateLayout)), "", 1, "L", false, 0, "")
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("pdf: render invoice %s: %w", inv.Number, err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) party(doc *fpdf.Fpdf, tr func(string) string, title string, p models.Party, x, w float64) {
	doc.SetX(x)
	doc.SetFont("Helvetica", "B", 10)
	doc.CellFormat(w, 6, tr(title), "B", 1, "L", false, 0, "")
	doc.SetFont("Helvetica", "", 9)

	lines := []string{p.Name}
	if addr := p.FullAddress(); addr != "" {
		lines = append(lines, strings.Split(addr, "\n")...)
	}
	if p.Email != "" {
		lines = append(lines, p.Email)
	}
	if p.SIRET != "" {
		lines = append(lines, "SIRET : "+p.SIRET)
	} else if p.SIREN != "" {
		lines = append(lines, "SIREN : "+p.SIREN)
	}
	if p.VATNumber != "" {
		lines = append(lines, "TVA : "+p.VATNumber)
	}
	for _, l := range lines {
		doc.SetX(x)
		doc.CellFormat(w, 5, tr(l), "", 1, "L", false, 0, "")
	}
}
