package services

import (
	"context"
	"errors"

	"github.com/diewo77/facturly/internal/billing"
	"github.com/diewo77/facturly/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CompanyInput is the editable seller identity and invoicing defaults.
type CompanyInput struct {
	Name                string           `json:"name" validate:"required,max=255"`
	Email               string           `json:"email" validate:"omitempty,email"`
	Phone               string           `json:"phone" validate:"max=50"`
	Website             string           `json:"website" validate:"max=255"`
	Address             string           `json:"address" validate:"max=500"`
	City                string           `json:"city" validate:"max=100"`
	PostalCode          string           `json:"postal_code" validate:"max=20"`
	Country             string           `json:"country" validate:"max=100"`
	SIREN               string           `json:"siren" validate:"omitempty,len=9,numeric"`
	SIRET               string           `json:"siret" validate:"omitempty,len=14,numeric"`
	VATNumber           string           `json:"vat_number" validate:"max=20"`
	RCS                 string           `json:"rcs" validate:"max=100"`
	Capital             string           `json:"capital" validate:"max=100"`
	DefaultTaxRate      *decimal.Decimal `json:"default_tax_rate"`
	DefaultPaymentTerms string           `json:"default_payment_terms" validate:"max=500"`
	PaymentDays         int              `json:"payment_days" validate:"gte=0,lte=365"`
}

var defaultTaxRate = decimal.NewFromInt(20)

type CompanyService struct {
	store CompanyRepository
}

func NewCompanyService(store CompanyRepository) *CompanyService {
	return &CompanyService{store: store}
}

// Get returns the account's settings, or unsaved defaults when none exist.
func (s *CompanyService) Get(ctx context.Context, accountID uuid.UUID) (*models.CompanySettings, error) {
	cs, err := s.store.GetCompanySettings(ctx, accountID)
	if errors.Is(err, billing.ErrNotFound) {
		return &models.CompanySettings{UserID: accountID, DefaultTaxRate: defaultTaxRate, PaymentDays: 30}, nil
	}
	return cs, err
}

// Upsert replaces the account's settings.
func (s *CompanyService) Upsert(ctx context.Context, accountID uuid.UUID, in CompanyInput) (*models.CompanySettings, error) {
	rate := defaultTaxRate
	if in.DefaultTaxRate != nil {
		rate = *in.DefaultTaxRate
	}
	if rate.IsNegative() {
		return nil, billing.NewFieldError("default_tax_rate", billing.ReasonNegative, rate.String())
	}
	cs := &models.CompanySettings{
		UserID:              accountID,
		Name:                in.Name,
		Email:               in.Email,
		Phone:               in.Phone,
		Website:             in.Website,
		Address:             in.Address,
		City:                in.City,
		PostalCode:          in.PostalCode,
		Country:             in.Country,
		SIREN:               in.SIREN,
		SIRET:               in.SIRET,
		VATNumber:           in.VATNumber,
		RCS:                 in.RCS,
		Capital:             in.Capital,
		DefaultTaxRate:      rate,
		DefaultPaymentTerms: in.DefaultPaymentTerms,
		PaymentDays:         in.PaymentDays,
	}
	if err := s.store.SaveCompanySettings(ctx, cs); err != nil {
		return nil, err
	}
	return cs, nil
}
