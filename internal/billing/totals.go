package billing

import (
	"github.com/diewo77/facturly/internal/models"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Totals holds the derived monetary fields of an invoice.
type Totals struct {
	TotalHT   decimal.Decimal `json:"total_ht"`
	TaxAmount decimal.Decimal `json:"tax_amount"`
	TotalTTC  decimal.Decimal `json:"total_ttc"`
}

// LineTotal returns quantity * unitPrice at full precision.
func LineTotal(quantity, unitPrice decimal.Decimal) decimal.Decimal {
	return quantity.Mul(unitPrice)
}

// ComputeTotals is the single source of truth for invoice amounts.
//
// TotalHT keeps the full precision of the line products. TaxAmount is rounded
// to the cent, so TotalTTC = TotalHT + TaxAmount holds exactly.
func ComputeTotals(items []models.LineItem, taxRate decimal.Decimal) Totals {
	ht := decimal.Zero
	for _, it := range items {
		ht = ht.Add(LineTotal(it.Quantity, it.UnitPrice))
	}
	tax := ht.Mul(taxRate).Div(hundred).Round(2)
	return Totals{
		TotalHT:   ht,
		TaxAmount: tax,
		TotalTTC:  ht.Add(tax),
	}
}

// Recompute returns a copy of inv whose line totals, positions and invoice
// totals are derived from its items and tax rate. Stored totals are never
// trusted as input.
func Recompute(inv models.Invoice) models.Invoice {
	out := inv.Clone()
	for i := range out.Items {
		out.Items[i].Position = i
		out.Items[i].TotalHT = LineTotal(out.Items[i].Quantity, out.Items[i].UnitPrice)
	}
	t := ComputeTotals(out.Items, out.TaxRate)
	out.TotalHT = t.TotalHT
	out.TaxAmount = t.TaxAmount
	out.TotalTTC = t.TotalTTC
	return out
}

// TotalsOf returns the recomputed totals of inv without copying it.
func TotalsOf(inv *models.Invoice) Totals {
	return ComputeTotals(inv.Items, inv.TaxRate)
}
