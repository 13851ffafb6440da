package billing

import (
	"strings"
	"time"

	"github.com/diewo77/facturly/internal/models"
	"github.com/shopspring/decimal"
)

func validateQuantity(index int, q decimal.Decimal) error {
	if q.IsNegative() {
		return NewItemError(index, "quantity", ReasonNegative, q.String())
	}
	return nil
}

func validateUnitPrice(index int, p decimal.Decimal) error {
	if p.IsNegative() {
		return NewItemError(index, "unit_price", ReasonNegative, p.String())
	}
	return nil
}

func validateTaxRate(rate decimal.Decimal) error {
	if rate.IsNegative() {
		return NewFieldError("tax_rate", ReasonNegative, rate.String())
	}
	return nil
}

func validateDueDate(issue time.Time, due *time.Time) error {
	if due != nil && due.Before(issue) {
		return NewFieldError("due_date", ReasonBeforeIssue, due.Format(time.DateOnly))
	}
	return nil
}

func validateLineItem(index int, item models.LineItem) error {
	if err := validateQuantity(index, item.Quantity); err != nil {
		return err
	}
	return validateUnitPrice(index, item.UnitPrice)
}

func requireDraft(inv models.Invoice) error {
	if !inv.CanEdit() {
		return NewFieldError("status", ReasonLocked, inv.Status.String())
	}
	return nil
}

// ValidateForSubmit runs the checks an invoice must pass before it can
// leave draft. Missing content is reported first as an
// IncompleteInvoiceError listing every absent part; malformed content then
// yields the first ValidationError found.
func ValidateForSubmit(inv models.Invoice) error {
	var missing []string
	if len(inv.Items) == 0 {
		missing = append(missing, "items")
	}
	if inv.DueDate == nil {
		missing = append(missing, "due_date")
	}
	if len(missing) > 0 {
		return &IncompleteInvoiceError{Missing: missing}
	}

	if strings.TrimSpace(inv.Number) == "" {
		return NewFieldError("number", ReasonRequired, nil)
	}
	if strings.TrimSpace(inv.Seller.Name) == "" {
		return NewFieldError("seller.name", ReasonRequired, nil)
	}
	if strings.TrimSpace(inv.Client.Name) == "" {
		return NewFieldError("client.name", ReasonRequired, nil)
	}
	if err := validateTaxRate(inv.TaxRate); err != nil {
		return err
	}
	if err := validateDueDate(inv.IssueDate, inv.DueDate); err != nil {
		return err
	}
	for i, it := range inv.Items {
		if strings.TrimSpace(it.Description) == "" {
			return NewItemError(i, "description", ReasonRequired, nil)
		}
		if err := validateLineItem(i, it); err != nil {
			return err
		}
	}
	return nil
}
