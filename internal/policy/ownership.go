package policy

import (
	"context"

	"github.com/google/uuid"
)

// Resource types known to the default gate.
const (
	ResourceInvoice = "invoice"
	ResourceClient  = "client"
	ResourceCompany = "company_settings"
)

// Ownable is implemented by every account-scoped model.
type Ownable interface {
	GetUserID() uuid.UUID
}

// OwnerPolicy lets an account act on the resources it owns. List and
// create carry no resource and are always allowed.
type OwnerPolicy struct{}

func (OwnerPolicy) Can(_ context.Context, user uuid.UUID, action Action, resource any) bool {
	if action == ActionList || action == ActionCreate {
		return true
	}
	o, ok := resource.(Ownable)
	if !ok {
		return false
	}
	return o.GetUserID() == user
}

// NewAccountGate returns a gate keyed by account id with the invoice,
// client and company settings policies registered.
func NewAccountGate() *Gate[uuid.UUID] {
	g := NewGate[uuid.UUID]()
	g.Register(ResourceInvoice, OwnerPolicy{})
	g.Register(ResourceClient, OwnerPolicy{})
	g.Register(ResourceCompany, OwnerPolicy{})
	return g
}
