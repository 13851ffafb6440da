package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CompanySettings represents the user's company information for invoices.
type CompanySettings struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// UserID is the owner of these settings
	UserID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`

	// Company information
	Name    string `gorm:"size:255;not null" json:"name"`
	Email   string `gorm:"size:255" json:"email,omitempty"`
	Phone   string `gorm:"size:50" json:"phone,omitempty"`
	Website string `gorm:"size:255" json:"website,omitempty"`

	// Address
	Address    string `gorm:"size:500" json:"address,omitempty"`
	City       string `gorm:"size:100" json:"city,omitempty"`
	PostalCode string `gorm:"size:20" json:"postal_code,omitempty"`
	Country    string `gorm:"size:100" json:"country,omitempty"`

	// Tax & Legal information
	SIREN     string `gorm:"size:9" json:"siren,omitempty"`
	SIRET     string `gorm:"size:14" json:"siret,omitempty"`
	VATNumber string `gorm:"size:20" json:"vat_number,omitempty"`
	RCS       string `gorm:"size:100" json:"rcs,omitempty"`
	Capital   string `gorm:"size:100" json:"capital,omitempty"`

	// Invoicing defaults
	DefaultTaxRate      decimal.Decimal `gorm:"type:decimal(5,2);not null" json:"default_tax_rate"`
	DefaultPaymentTerms string          `gorm:"size:500" json:"default_payment_terms,omitempty"`
	PaymentDays         int             `gorm:"not null" json:"payment_days"`
}

// GetUserID implements the Ownable interface.
func (c *CompanySettings) GetUserID() uuid.UUID {
	return c.UserID
}

// Snapshot copies the seller identity into an invoice party.
func (c *CompanySettings) Snapshot() Party {
	return Party{
		Name:       c.Name,
		Email:      c.Email,
		Address:    c.Address,
		PostalCode: c.PostalCode,
		City:       c.City,
		Country:    c.Country,
		SIREN:      c.SIREN,
		SIRET:      c.SIRET,
		VATNumber:  c.VATNumber,
	}
}
