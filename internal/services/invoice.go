// Package services orchestrates the billing rules with persistence. Every
// mutation follows load, apply a billing function, bump Version, save.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/diewo77/facturly/internal/billing"
	"github.com/diewo77/facturly/internal/models"
	"github.com/diewo77/facturly/internal/policy"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// InvoiceRepository is the invoice persistence the service needs.
type InvoiceRepository interface {
	billing.InvoiceStore
	ListInvoicesByStatus(ctx context.Context, status models.InvoiceStatus) ([]models.Invoice, error)
}

// CompanyRepository stores seller settings.
type CompanyRepository interface {
	GetCompanySettings(ctx context.Context, accountID uuid.UUID) (*models.CompanySettings, error)
	SaveCompanySettings(ctx context.Context, cs *models.CompanySettings) error
}

type InvoiceService struct {
	store    InvoiceRepository
	clients  billing.ClientStore
	company  CompanyRepository
	numbers  *billing.NumberGenerator
	renderer billing.Renderer
	gate     *policy.Gate[uuid.UUID]
	now      func() time.Time
	log      zerolog.Logger
}

func NewInvoiceService(store InvoiceRepository, clients billing.ClientStore, company CompanyRepository, renderer billing.Renderer, log zerolog.Logger) *InvoiceService {
	return &InvoiceService{
		store:    store,
		clients:  clients,
		company:  company,
		numbers:  &billing.NumberGenerator{Store: store},
		renderer: renderer,
		now:      time.Now,
		log:      log,
	}
}

// SetNumberPrefix changes the prefix of generated invoice numbers.
func (s *InvoiceService) SetNumberPrefix(prefix string) { s.numbers.Prefix = prefix }

// SetGate makes every single-invoice operation authorize the loaded invoice
// against g before acting on it.
func (s *InvoiceService) SetGate(g *policy.Gate[uuid.UUID]) { s.gate = g }

// SetClock replaces time.Now, for tests and batch jobs.
func (s *InvoiceService) SetClock(now func() time.Time) { s.now = now }

// CreateInvoiceInput describes a new draft. Exactly one of ClientID and
// Client should be set. Seller, TaxRate, PaymentTerms and DueDate default
// to the account's company settings.
type CreateInvoiceInput struct {
	ClientID     *uuid.UUID
	Client       *models.Party
	Seller       *models.Party
	Number       string
	Items        []models.LineItem
	TaxRate      *decimal.Decimal
	IssueDate    *time.Time
	DueDate      *time.Time
	Notes        string
	PaymentTerms string
}

// Create opens a draft invoice. When no number is given one is generated;
// a concurrent claim on that number is retried once with a fresh one.
func (s *InvoiceService) Create(ctx context.Context, accountID uuid.UUID, in CreateInvoiceInput) (*models.Invoice, error) {
	ref, err := s.resolveClient(ctx, accountID, in)
	if err != nil {
		return nil, err
	}

	settings, err := s.company.GetCompanySettings(ctx, accountID)
	if err != nil && !errors.Is(err, billing.ErrNotFound) {
		return nil, fmt.Errorf("load company settings: %w", err)
	}

	draft := billing.DraftInput{
		AccountID:    accountID,
		Number:       in.Number,
		Client:       ref,
		Items:        in.Items,
		Notes:        in.Notes,
		PaymentTerms: in.PaymentTerms,
		DueDate:      in.DueDate,
	}
	if settings != nil {
		draft.Seller = settings.Snapshot()
		draft.TaxRate = settings.DefaultTaxRate
		if draft.PaymentTerms == "" {
			draft.PaymentTerms = settings.DefaultPaymentTerms
		}
	}
	if in.Seller != nil {
		draft.Seller = *in.Seller
	}
	if in.TaxRate != nil {
		draft.TaxRate = *in.TaxRate
	}
	draft.IssueDate = s.today()
	if in.IssueDate != nil {
		draft.IssueDate = *in.IssueDate
	}
	if draft.DueDate == nil && settings != nil && settings.PaymentDays > 0 {
		due := draft.IssueDate.AddDate(0, 0, settings.PaymentDays)
		draft.DueDate = &due
	}

	generated := draft.Number == ""
	if generated {
		if draft.Number, err = s.numbers.Generate(ctx, accountID, draft.IssueDate); err != nil {
			return nil, err
		}
	}

	inv, err := billing.NewDraft(draft)
	if err != nil {
		return nil, err
	}

	err = s.store.SaveInvoice(ctx, &inv)
	var conflict *billing.UniquenessConflictError
	if generated && errors.As(err, &conflict) {
		s.log.Warn().Str("number", inv.Number).Msg("invoice number taken concurrently, retrying")
		if inv.Number, err = s.numbers.Generate(ctx, accountID, inv.IssueDate); err != nil {
			return nil, err
		}
		err = s.store.SaveInvoice(ctx, &inv)
	}
	if err != nil {
		return nil, err
	}
	s.log.Info().Stringer("invoice", inv.ID).Str("number", inv.Number).Msg("draft created")
	return &inv, nil
}

func (s *InvoiceService) resolveClient(ctx context.Context, accountID uuid.UUID, in CreateInvoiceInput) (billing.ClientReference, error) {
	switch {
	case in.ClientID != nil:
		c, err := s.clients.GetClientByID(ctx, accountID, *in.ClientID)
		if err != nil {
			return nil, err
		}
		return billing.SnapshotOf(c), nil
	case in.Client != nil:
		return billing.InlineInfo{Info: *in.Client}, nil
	}
	return nil, billing.NewFieldError("client", billing.ReasonRequired, nil)
}

func (s *InvoiceService) today() time.Time {
	y, m, d := s.now().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *InvoiceService) Get(ctx context.Context, accountID, id uuid.UUID) (*models.Invoice, error) {
	return s.load(ctx, accountID, id, policy.ActionView)
}

// load reads an invoice once and authorizes action on it.
func (s *InvoiceService) load(ctx context.Context, accountID, id uuid.UUID, action policy.Action) (*models.Invoice, error) {
	inv, err := s.store.LoadInvoice(ctx, accountID, id)
	if err != nil {
		return nil, err
	}
	if s.gate != nil {
		if err := s.gate.Authorize(ctx, accountID, action, policy.ResourceInvoice, inv); err != nil {
			return nil, err
		}
	}
	return inv, nil
}

// List returns the account's invoices, optionally restricted to one status.
func (s *InvoiceService) List(ctx context.Context, accountID uuid.UUID, status *models.InvoiceStatus) ([]models.Invoice, error) {
	list, err := s.store.ListInvoicesByAccount(ctx, accountID)
	if err != nil || status == nil {
		return list, err
	}
	out := list[:0]
	for _, inv := range list {
		if inv.Status == *status {
			out = append(out, inv)
		}
	}
	return out, nil
}

// mutate loads an invoice, applies fn and saves the result with a bumped
// version. The stored invoice is untouched when fn fails.
func (s *InvoiceService) mutate(ctx context.Context, accountID, id uuid.UUID, fn func(models.Invoice) (models.Invoice, error)) (*models.Invoice, error) {
	cur, err := s.load(ctx, accountID, id, policy.ActionUpdate)
	if err != nil {
		return nil, err
	}
	next, err := fn(*cur)
	if err != nil {
		return nil, err
	}
	next.Version = cur.Version + 1
	if err := s.store.SaveInvoice(ctx, &next); err != nil {
		return nil, err
	}
	return &next, nil
}

func (s *InvoiceService) AddItem(ctx context.Context, accountID, id uuid.UUID, item models.LineItem) (*models.Invoice, error) {
	return s.mutate(ctx, accountID, id, func(inv models.Invoice) (models.Invoice, error) {
		return billing.AddLineItem(inv, item)
	})
}

func (s *InvoiceService) UpdateItem(ctx context.Context, accountID, id uuid.UUID, index int, field string, value any) (*models.Invoice, error) {
	return s.mutate(ctx, accountID, id, func(inv models.Invoice) (models.Invoice, error) {
		return billing.UpdateLineItem(inv, index, field, value)
	})
}

func (s *InvoiceService) RemoveItem(ctx context.Context, accountID, id uuid.UUID, index int) (*models.Invoice, error) {
	return s.mutate(ctx, accountID, id, func(inv models.Invoice) (models.Invoice, error) {
		return billing.RemoveLineItem(inv, index)
	})
}

// UpdateDetails edits the header of a draft invoice.
func (s *InvoiceService) UpdateDetails(ctx context.Context, accountID, id uuid.UUID, d billing.Details) (*models.Invoice, error) {
	return s.mutate(ctx, accountID, id, func(inv models.Invoice) (models.Invoice, error) {
		return billing.UpdateDetails(inv, d)
	})
}

// Transition changes the status of an invoice. Re-marking a paid invoice
// as paid with the same date is accepted and saves nothing.
func (s *InvoiceService) Transition(ctx context.Context, accountID, id uuid.UUID, to models.InvoiceStatus, paidDate *time.Time) (*models.Invoice, error) {
	cur, err := s.load(ctx, accountID, id, policy.ActionUpdate)
	if err != nil {
		return nil, err
	}
	next, err := billing.Transition(*cur, to, billing.TransitionOptions{PaidDate: paidDate, Now: s.today()})
	if err != nil {
		s.log.Debug().Err(err).Stringer("invoice", id).Str("from", cur.Status.String()).Str("to", to.String()).Msg("transition refused")
		return nil, err
	}
	if cur.Status == to {
		return cur, nil
	}
	next.Version = cur.Version + 1
	if err := s.store.SaveInvoice(ctx, &next); err != nil {
		return nil, err
	}
	s.log.Info().Stringer("invoice", id).Str("from", cur.Status.String()).Str("to", to.String()).Msg("invoice status changed")
	return &next, nil
}

func (s *InvoiceService) CorrectPaidDate(ctx context.Context, accountID, id uuid.UUID, date time.Time) (*models.Invoice, error) {
	return s.mutate(ctx, accountID, id, func(inv models.Invoice) (models.Invoice, error) {
		return billing.CorrectPaidDate(inv, date)
	})
}

// Delete removes a draft invoice. Issued invoices are kept for the books.
func (s *InvoiceService) Delete(ctx context.Context, accountID, id uuid.UUID) error {
	inv, err := s.load(ctx, accountID, id, policy.ActionDelete)
	if err != nil {
		return err
	}
	if !inv.IsDraft() {
		return billing.NewFieldError("status", billing.ReasonLocked, inv.Status.String())
	}
	if err := s.store.DeleteInvoice(ctx, accountID, id); err != nil {
		return err
	}
	s.log.Info().Stringer("invoice", id).Str("number", inv.Number).Msg("draft deleted")
	return nil
}

// ExportPDF renders a complete invoice. Drafts are rendered too, as long as
// they would pass submit validation.
func (s *InvoiceService) ExportPDF(ctx context.Context, accountID, id uuid.UUID) ([]byte, string, error) {
	if s.renderer == nil {
		return nil, "", errors.New("no renderer configured")
	}
	inv, err := s.load(ctx, accountID, id, policy.ActionExport)
	if err != nil {
		return nil, "", err
	}
	agg := billing.Recompute(*inv)
	if err := billing.ValidateForSubmit(agg); err != nil {
		return nil, "", err
	}
	out, err := s.renderer.Render(agg)
	if err != nil {
		return nil, "", err
	}
	return out, agg.Number + ".pdf", nil
}

// Dashboard aggregates an account's invoices.
type Dashboard struct {
	Counts      map[models.InvoiceStatus]int `json:"counts"`
	Revenue     decimal.Decimal              `json:"revenue"`
	Outstanding decimal.Decimal              `json:"outstanding"`
	Overdue     decimal.Decimal              `json:"overdue"`
	DraftTotal  decimal.Decimal              `json:"draft_total"`
}

// Dashboard computes per-status counts and amounts. Revenue sums paid
// invoices, Outstanding sums sent and overdue ones. Amounts are TTC.
func (s *InvoiceService) Dashboard(ctx context.Context, accountID uuid.UUID) (Dashboard, error) {
	list, err := s.store.ListInvoicesByAccount(ctx, accountID)
	if err != nil {
		return Dashboard{}, err
	}
	d := Dashboard{Counts: make(map[models.InvoiceStatus]int, len(models.InvoiceStatuses))}
	for _, st := range models.InvoiceStatuses {
		d.Counts[st] = 0
	}
	for _, inv := range list {
		ttc := billing.TotalsOf(&inv).TotalTTC
		d.Counts[inv.Status]++
		switch inv.Status {
		case models.InvoiceStatusPaid:
			d.Revenue = d.Revenue.Add(ttc)
		case models.InvoiceStatusSent:
			d.Outstanding = d.Outstanding.Add(ttc)
		case models.InvoiceStatusOverdue:
			d.Outstanding = d.Outstanding.Add(ttc)
			d.Overdue = d.Overdue.Add(ttc)
		case models.InvoiceStatusDraft:
			d.DraftTotal = d.DraftTotal.Add(ttc)
		}
	}
	return d, nil
}

// MarkOverdue moves every sent invoice whose due date is before now to
// overdue. It is meant to be run by an external scheduler and returns the
// number of invoices changed. Failures are collected and do not stop the
// sweep.
func (s *InvoiceService) MarkOverdue(ctx context.Context, now time.Time) (int, error) {
	sent, err := s.store.ListInvoicesByStatus(ctx, models.InvoiceStatusSent)
	if err != nil {
		return 0, err
	}
	var errs []error
	n := 0
	for _, inv := range sent {
		if !billing.IsPastDue(inv, now) {
			continue
		}
		next, err := billing.Transition(inv, models.InvoiceStatusOverdue, billing.TransitionOptions{Now: now})
		if err == nil {
			next.Version = inv.Version + 1
			err = s.store.SaveInvoice(ctx, &next)
		}
		if err != nil {
			s.log.Error().Err(err).Stringer("invoice", inv.ID).Msg("mark overdue failed")
			errs = append(errs, fmt.Errorf("invoice %s: %w", inv.Number, err))
			continue
		}
		n++
	}
	s.log.Info().Int("count", n).Msg("overdue sweep done")
	return n, errors.Join(errs...)
}
