package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Client represents a customer of the account owner.
// Implements the Ownable interface for ownership checks.
type Client struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// UserID is the owner of this client (for multi-tenant isolation)
	UserID uuid.UUID `gorm:"type:uuid;index;not null" json:"user_id"`

	// Client information
	Name    string `gorm:"size:255;not null" json:"name"`
	Email   string `gorm:"size:255;not null" json:"email"`
	Phone   string `gorm:"size:50" json:"phone,omitempty"`
	Company string `gorm:"size:255" json:"company,omitempty"`

	// Address
	Address    string `gorm:"size:500" json:"address,omitempty"`
	City       string `gorm:"size:100" json:"city,omitempty"`
	PostalCode string `gorm:"size:20" json:"postal_code,omitempty"`
	Country    string `gorm:"size:100" json:"country,omitempty"`

	// Legal identifiers
	SIREN     string `gorm:"size:9" json:"siren,omitempty"`
	SIRET     string `gorm:"size:14" json:"siret,omitempty"`
	VATNumber string `gorm:"size:20" json:"vat_number,omitempty"`

	Notes string `gorm:"type:text" json:"notes,omitempty"`
}

// GetUserID implements the Ownable interface.
func (c *Client) GetUserID() uuid.UUID {
	return c.UserID
}

// FullAddress returns the formatted full address.
func (c *Client) FullAddress() string {
	return formatAddress(c.Address, c.PostalCode, c.City, c.Country)
}

// Snapshot copies the client's identity into an invoice party.
// The company name, when set, is what appears on the invoice.
func (c *Client) Snapshot() Party {
	name := c.Name
	if c.Company != "" {
		name = c.Company
	}
	return Party{
		Name:       name,
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

// BeforeCreate assigns an identifier when the caller did not.
func (c *Client) BeforeCreate(_ *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
