package models

import "strings"

// Party is an identity + address snapshot printed on an invoice.
// It is copied at invoice creation time and never re-resolved afterwards.
type Party struct {
	Name       string `gorm:"size:255" json:"name"`
	Email      string `gorm:"size:255" json:"email,omitempty"`
	Address    string `gorm:"size:500" json:"address,omitempty"`
	PostalCode string `gorm:"size:20" json:"postal_code,omitempty"`
	City       string `gorm:"size:100" json:"city,omitempty"`
	Country    string `gorm:"size:100" json:"country,omitempty"`

	// French legal identifiers
	SIREN     string `gorm:"size:9" json:"siren,omitempty"`
	SIRET     string `gorm:"size:14" json:"siret,omitempty"`
	VATNumber string `gorm:"size:20" json:"vat_number,omitempty"`
}

// FullAddress returns the formatted multi-line postal address.
func (p Party) FullAddress() string {
	return formatAddress(p.Address, p.PostalCode, p.City, p.Country)
}

// TaxID returns the most specific legal identifier available.
func (p Party) TaxID() string {
	switch {
	case p.VATNumber != "":
		return p.VATNumber
	case p.SIRET != "":
		return p.SIRET
	default:
		return p.SIREN
	}
}

// IsZero reports whether no identity information was captured.
func (p Party) IsZero() bool {
	return strings.TrimSpace(p.Name) == "" && p.Email == "" && p.FullAddress() == ""
}

func formatAddress(street, postalCode, city, country string) string {
	addr := street
	if postalCode != "" || city != "" {
		if addr != "" {
			addr += "\n"
		}
		addr += postalCode
		if postalCode != "" && city != "" {
			addr += " "
		}
		addr += city
	}
	if country != "" {
		if addr != "" {
			addr += "\n"
		}
		addr += country
	}
	return addr
}
