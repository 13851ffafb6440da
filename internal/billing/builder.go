package billing

import (
	"fmt"
	"time"

	"github.com/diewo77/facturly/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ClientReference says how the client identity of a new invoice is obtained.
// It is resolved once, at creation; later edits to the source client never
// reach the invoice.
type ClientReference interface {
	isClientReference()
}

// ByIDSnapshot references a stored client together with the snapshot taken
// from it when the invoice was created.
type ByIDSnapshot struct {
	ID       uuid.UUID
	Snapshot models.Party
}

// InlineInfo carries client details typed directly on the invoice.
type InlineInfo struct {
	Info models.Party
}

func (ByIDSnapshot) isClientReference() {}
func (InlineInfo) isClientReference()   {}

// SnapshotOf builds a ByIDSnapshot reference from a stored client.
func SnapshotOf(c *models.Client) ByIDSnapshot {
	return ByIDSnapshot{ID: c.ID, Snapshot: c.Snapshot()}
}

// DraftInput holds everything needed to open a draft invoice.
type DraftInput struct {
	AccountID    uuid.UUID
	Number       string
	Seller       models.Party
	Client       ClientReference
	Items        []models.LineItem
	TaxRate      decimal.Decimal
	IssueDate    time.Time
	DueDate      *time.Time
	Notes        string
	PaymentTerms string
}

// NewDraft validates in and returns a draft invoice with a fresh ID,
// version 1 and computed totals.
func NewDraft(in DraftInput) (models.Invoice, error) {
	if in.AccountID == uuid.Nil {
		return models.Invoice{}, NewFieldError("user_id", ReasonRequired, nil)
	}
	if in.IssueDate.IsZero() {
		return models.Invoice{}, NewFieldError("issue_date", ReasonRequired, nil)
	}
	if err := validateTaxRate(in.TaxRate); err != nil {
		return models.Invoice{}, err
	}
	if err := validateDueDate(in.IssueDate, in.DueDate); err != nil {
		return models.Invoice{}, err
	}

	inv := models.Invoice{
		ID:           uuid.New(),
		UserID:       in.AccountID,
		Number:       in.Number,
		Seller:       in.Seller,
		TaxRate:      in.TaxRate,
		Status:       models.InvoiceStatusDraft,
		IssueDate:    in.IssueDate,
		DueDate:      in.DueDate,
		Version:      1,
		Notes:        in.Notes,
		PaymentTerms: in.PaymentTerms,
	}

	switch ref := in.Client.(type) {
	case ByIDSnapshot:
		id := ref.ID
		inv.ClientID = &id
		inv.Client = ref.Snapshot
	case InlineInfo:
		inv.Client = ref.Info
	default:
		return models.Invoice{}, NewFieldError("client", ReasonRequired, nil)
	}

	inv.Items = make([]models.LineItem, 0, len(in.Items))
	for i, it := range in.Items {
		if err := validateLineItem(i, it); err != nil {
			return models.Invoice{}, err
		}
		inv.Items = append(inv.Items, models.LineItem{
			ID:          uuid.New(),
			InvoiceID:   inv.ID,
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
		})
	}
	return Recompute(inv), nil
}

// AddLineItem appends item to a draft invoice and recomputes its totals.
// An empty description is accepted here and rejected at submit time.
func AddLineItem(inv models.Invoice, item models.LineItem) (models.Invoice, error) {
	if err := requireDraft(inv); err != nil {
		return inv, err
	}
	idx := len(inv.Items)
	if err := validateLineItem(idx, item); err != nil {
		return inv, err
	}
	out := inv.Clone()
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	item.InvoiceID = inv.ID
	out.Items = append(out.Items, item)
	return Recompute(out), nil
}

// RemoveLineItem drops the item at index. Removing the last remaining item
// is refused with an IncompleteInvoiceError and the invoice is returned as is.
func RemoveLineItem(inv models.Invoice, index int) (models.Invoice, error) {
	if err := requireDraft(inv); err != nil {
		return inv, err
	}
	if index < 0 || index >= len(inv.Items) {
		return inv, NewItemError(index, "index", ReasonOutOfRange, index)
	}
	if len(inv.Items) == 1 {
		return inv, &IncompleteInvoiceError{Missing: []string{"items"}}
	}
	out := inv.Clone()
	out.Items = append(out.Items[:index], out.Items[index+1:]...)
	return Recompute(out), nil
}

// UpdateLineItem changes one field of the item at index. field is one of
// description, quantity or unit_price. Numeric values may be given as
// decimal.Decimal, string, float64 or int.
func UpdateLineItem(inv models.Invoice, index int, field string, value any) (models.Invoice, error) {
	if err := requireDraft(inv); err != nil {
		return inv, err
	}
	if index < 0 || index >= len(inv.Items) {
		return inv, NewItemError(index, "index", ReasonOutOfRange, index)
	}
	out := inv.Clone()
	item := &out.Items[index]

	switch field {
	case "description":
		s, ok := value.(string)
		if !ok {
			return inv, NewItemError(index, field, ReasonInvalidValue, value)
		}
		item.Description = s
	case "quantity":
		d, err := toDecimal(value)
		if err != nil {
			return inv, NewItemError(index, field, ReasonInvalidValue, value)
		}
		if err := validateQuantity(index, d); err != nil {
			return inv, err
		}
		item.Quantity = d
	case "unit_price":
		d, err := toDecimal(value)
		if err != nil {
			return inv, NewItemError(index, field, ReasonInvalidValue, value)
		}
		if err := validateUnitPrice(index, d); err != nil {
			return inv, err
		}
		item.UnitPrice = d
	default:
		return inv, NewItemError(index, field, ReasonUnknownField, nil)
	}
	return Recompute(out), nil
}

// Details is a partial update of the editable invoice header. Nil fields
// are left untouched; ClearDueDate removes the due date.
type Details struct {
	Number       *string
	IssueDate    *time.Time
	DueDate      *time.Time
	ClearDueDate bool
	TaxRate      *decimal.Decimal
	Notes        *string
	PaymentTerms *string
}

// UpdateDetails applies d to a draft invoice and recomputes its totals.
func UpdateDetails(inv models.Invoice, d Details) (models.Invoice, error) {
	if err := requireDraft(inv); err != nil {
		return inv, err
	}
	out := inv.Clone()
	if d.Number != nil {
		if *d.Number == "" {
			return inv, NewFieldError("number", ReasonRequired, nil)
		}
		out.Number = *d.Number
	}
	if d.IssueDate != nil {
		out.IssueDate = *d.IssueDate
	}
	if d.ClearDueDate {
		out.DueDate = nil
	} else if d.DueDate != nil {
		due := *d.DueDate
		out.DueDate = &due
	}
	if d.TaxRate != nil {
		if err := validateTaxRate(*d.TaxRate); err != nil {
			return inv, err
		}
		out.TaxRate = *d.TaxRate
	}
	if d.Notes != nil {
		out.Notes = *d.Notes
	}
	if d.PaymentTerms != nil {
		out.PaymentTerms = *d.PaymentTerms
	}
	if err := validateDueDate(out.IssueDate, out.DueDate); err != nil {
		return inv, err
	}
	return Recompute(out), nil
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch x := v.(type) {
	case decimal.Decimal:
		return x, nil
	case string:
		return decimal.NewFromString(x)
	case float64:
		return decimal.NewFromFloat(x), nil
	case int:
		return decimal.NewFromInt(int64(x)), nil
	case int64:
		return decimal.NewFromInt(x), nil
	}
	return decimal.Zero, fmt.Errorf("unsupported numeric value %T", v)
}
