package billing

import (
	"context"

	"github.com/diewo77/facturly/internal/models"
	"github.com/google/uuid"
)

// Invoice is the aggregate the ports exchange.
type Invoice = models.Invoice

// InvoiceStore persists invoice aggregates.
//
// LoadInvoice returns a *NotFoundError for unknown ids. SaveInvoice creates
// or replaces the aggregate with its items and returns a
// *UniquenessConflictError when the number is already used by the account.
type InvoiceStore interface {
	NumberLookup
	LoadInvoice(ctx context.Context, accountID, id uuid.UUID) (*Invoice, error)
	SaveInvoice(ctx context.Context, inv *Invoice) error
	ListInvoicesByAccount(ctx context.Context, accountID uuid.UUID) ([]Invoice, error)
	DeleteInvoice(ctx context.Context, accountID, id uuid.UUID) error
}

// ClientStore gives access to stored clients.
type ClientStore interface {
	GetClientByID(ctx context.Context, accountID, id uuid.UUID) (*models.Client, error)
	ListClients(ctx context.Context, accountID uuid.UUID) ([]models.Client, error)
	SaveClient(ctx context.Context, c *models.Client) error
	DeleteClient(ctx context.Context, accountID, id uuid.UUID) error
}

// Renderer turns a recomputed, validated invoice into a document.
type Renderer interface {
	Render(inv Invoice) ([]byte, error)
}
