package services

import (
	"context"

	"github.com/diewo77/facturly/internal/billing"
	"github.com/diewo77/facturly/internal/models"
	"github.com/google/uuid"
)

// ClientInput is the editable part of a client.
type ClientInput struct {
	Name       string `json:"name" validate:"required,max=255"`
	Email      string `json:"email" validate:"required,email,max=255"`
	Phone      string `json:"phone" validate:"max=50"`
	Company    string `json:"company" validate:"max=255"`
	Address    string `json:"address" validate:"max=500"`
	City       string `json:"city" validate:"max=100"`
	PostalCode string `json:"postal_code" validate:"max=20"`
	Country    string `json:"country" validate:"max=100"`
	SIREN      string `json:"siren" validate:"omitempty,len=9,numeric"`
	SIRET      string `json:"siret" validate:"omitempty,len=14,numeric"`
	VATNumber  string `json:"vat_number" validate:"max=20"`
	Notes      string `json:"notes"`
}

func (in ClientInput) apply(c *models.Client) {
	c.Name = in.Name
	c.Email = in.Email
	c.Phone = in.Phone
	c.Company = in.Company
	c.Address = in.Address
	c.City = in.City
	c.PostalCode = in.PostalCode
	c.Country = in.Country
	c.SIREN = in.SIREN
	c.SIRET = in.SIRET
	c.VATNumber = in.VATNumber
	c.Notes = in.Notes
}

// ClientService manages an account's clients. Deleting or editing a client
// never touches invoices, which carry their own snapshot.
type ClientService struct {
	store billing.ClientStore
}

func NewClientService(store billing.ClientStore) *ClientService {
	return &ClientService{store: store}
}

func (s *ClientService) List(ctx context.Context, accountID uuid.UUID) ([]models.Client, error) {
	return s.store.ListClients(ctx, accountID)
}

func (s *ClientService) Get(ctx context.Context, accountID, id uuid.UUID) (*models.Client, error) {
	return s.store.GetClientByID(ctx, accountID, id)
}

func (s *ClientService) Create(ctx context.Context, accountID uuid.UUID, in ClientInput) (*models.Client, error) {
	c := &models.Client{UserID: accountID}
	in.apply(c)
	if err := s.store.SaveClient(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *ClientService) Update(ctx context.Context, accountID, id uuid.UUID, in ClientInput) (*models.Client, error) {
	c, err := s.store.GetClientByID(ctx, accountID, id)
	if err != nil {
		return nil, err
	}
	in.apply(c)
	if err := s.store.SaveClient(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *ClientService) Delete(ctx context.Context, accountID, id uuid.UUID) error {
	return s.store.DeleteClient(ctx, accountID, id)
}
