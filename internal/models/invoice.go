package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Invoice represents a billing invoice.
// Implements the Ownable interface for ownership-based authorization.
//
// Line items are authoritative; TotalHT, TaxAmount and TotalTTC are a cache
// refreshed by billing.Recompute and never edited on their own.
type Invoice struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// UserID is the owner of this invoice (for multi-tenant isolation)
	UserID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_invoices_user_number" json:"user_id"`

	// Number is unique per account and frozen once the invoice leaves draft.
	Number string `gorm:"size:50;not null;uniqueIndex:idx_invoices_user_number" json:"number"`

	// ClientID records which client the snapshot was taken from, if any.
	ClientID *uuid.UUID `gorm:"type:uuid;index" json:"client_id,omitempty"`

	// Identity snapshots
	Seller Party `gorm:"embedded;embeddedPrefix:seller_" json:"seller"`
	Client Party `gorm:"embedded;embeddedPrefix:client_" json:"client"`

	// Line items, ordered by Position
	Items []LineItem `gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE" json:"items"`

	// Tax rate as a percentage (20 means 20%)
	TaxRate decimal.Decimal `gorm:"type:numeric;not null;default:0" json:"tax_rate"`

	// Derived totals
	TotalHT   decimal.Decimal `gorm:"type:numeric;not null;default:0" json:"total_ht"`
	TaxAmount decimal.Decimal `gorm:"type:numeric;not null;default:0" json:"tax_amount"`
	TotalTTC  decimal.Decimal `gorm:"type:numeric;not null;default:0" json:"total_ttc"`

	// Status
	Status InvoiceStatus `gorm:"size:20;not null;default:'draft';index" json:"status"`

	// Invoice dates
	IssueDate time.Time  `gorm:"not null" json:"issue_date"`
	DueDate   *time.Time `json:"due_date,omitempty"`
	PaidDate  *time.Time `json:"paid_date,omitempty"`

	// Version is bumped on every saved mutation.
	Version int64 `gorm:"not null;default:1" json:"version"`

	// Notes and terms
	Notes        string `gorm:"type:text" json:"notes,omitempty"`
	PaymentTerms string `gorm:"size:500" json:"payment_terms,omitempty"`
}

// GetUserID implements the Ownable interface for authorization.
func (i *Invoice) GetUserID() uuid.UUID {
	return i.UserID
}

// IsDraft returns true if the invoice is in draft status.
func (i *Invoice) IsDraft() bool {
	return i.Status == InvoiceStatusDraft
}

// CanEdit returns true if the invoice content can still be changed.
func (i *Invoice) CanEdit() bool {
	return i.Status == InvoiceStatusDraft
}

// IsOutstanding returns true while the invoice awaits payment.
func (i *Invoice) IsOutstanding() bool {
	return i.Status == InvoiceStatusSent || i.Status == InvoiceStatusOverdue
}

// Clone returns a deep copy so callers can derive a new aggregate
// without aliasing the receiver's items or dates.
func (i Invoice) Clone() Invoice {
	out := i
	if i.Items != nil {
		out.Items = make([]LineItem, len(i.Items))
		copy(out.Items, i.Items)
	}
	out.ClientID = clonePtr(i.ClientID)
	out.DueDate = clonePtr(i.DueDate)
	out.PaidDate = clonePtr(i.PaidDate)
	return out
}

// BeforeCreate assigns an identifier when the caller did not.
func (i *Invoice) BeforeCreate(_ *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// LineItem represents a line on an invoice.
type LineItem struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	// Parent invoice
	InvoiceID uuid.UUID `gorm:"type:uuid;index;not null" json:"-"`

	// Position for ordering
	Position int `gorm:"not null;default:0" json:"position"`

	Description string          `gorm:"size:500;not null" json:"description"`
	Quantity    decimal.Decimal `gorm:"type:numeric;not null" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:numeric;not null" json:"unit_price"`

	// TotalHT is Quantity * UnitPrice at full precision.
	TotalHT decimal.Decimal `gorm:"type:numeric;not null" json:"total_ht"`
}

// BeforeCreate assigns an identifier when the caller did not.
func (li *LineItem) BeforeCreate(_ *gorm.DB) error {
	if li.ID == uuid.Nil {
		li.ID = uuid.New()
	}
	return nil
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
