package billing

import (
	"time"

	"github.com/diewo77/facturly/internal/models"
)

var transitions = map[models.InvoiceStatus][]models.InvoiceStatus{
	models.InvoiceStatusDraft:   {models.InvoiceStatusSent, models.InvoiceStatusCancelled},
	models.InvoiceStatusSent:    {models.InvoiceStatusPaid, models.InvoiceStatusOverdue, models.InvoiceStatusCancelled},
	models.InvoiceStatusOverdue: {models.InvoiceStatusPaid, models.InvoiceStatusCancelled},
}

// CanTransition reports whether from -> to is an allowed status change.
func CanTransition(from, to models.InvoiceStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// AllowedTransitions returns the statuses reachable from from.
func AllowedTransitions(from models.InvoiceStatus) []models.InvoiceStatus {
	next := transitions[from]
	out := make([]models.InvoiceStatus, len(next))
	copy(out, next)
	return out
}

// TransitionOptions carries the inputs a transition may need.
// A zero Now means time.Now().
type TransitionOptions struct {
	PaidDate *time.Time
	Now      time.Time
}

func (o TransitionOptions) now() time.Time {
	if o.Now.IsZero() {
		return time.Now()
	}
	return o.Now
}

// Transition moves inv to status to. On any error the returned invoice is
// the unchanged input.
//
// Moving to sent runs ValidateForSubmit. Moving to paid stamps PaidDate with
// opts.PaidDate, or the current date, which may not precede IssueDate.
// Re-applying paid is a no-op when no different payment date is given.
func Transition(inv models.Invoice, to models.InvoiceStatus, opts TransitionOptions) (models.Invoice, error) {
	if !to.Valid() {
		return inv, NewFieldError("status", ReasonInvalidValue, string(to))
	}

	if inv.Status == models.InvoiceStatusPaid && to == models.InvoiceStatusPaid {
		if opts.PaidDate == nil || (inv.PaidDate != nil && opts.PaidDate.Equal(*inv.PaidDate)) {
			return inv, nil
		}
		return inv, &InvalidTransitionError{From: inv.Status, To: to}
	}

	if !CanTransition(inv.Status, to) {
		return inv, &InvalidTransitionError{From: inv.Status, To: to}
	}

	out := inv.Clone()
	switch to {
	case models.InvoiceStatusSent:
		if err := ValidateForSubmit(out); err != nil {
			return inv, err
		}
	case models.InvoiceStatusPaid:
		paid := opts.now()
		if opts.PaidDate != nil {
			paid = *opts.PaidDate
		}
		if paid.Before(out.IssueDate) {
			return inv, NewFieldError("paid_date", ReasonBeforeIssue, paid.Format(time.DateOnly))
		}
		out.PaidDate = &paid
	}
	out.Status = to
	return Recompute(out), nil
}

// CorrectPaidDate replaces the payment date of a paid invoice.
func CorrectPaidDate(inv models.Invoice, date time.Time) (models.Invoice, error) {
	if inv.Status != models.InvoiceStatusPaid {
		return inv, NewFieldError("status", ReasonNotPaid, inv.Status.String())
	}
	if date.Before(inv.IssueDate) {
		return inv, NewFieldError("paid_date", ReasonBeforeIssue, date.Format(time.DateOnly))
	}
	out := inv.Clone()
	out.PaidDate = &date
	return out, nil
}

// IsPastDue reports whether an outstanding invoice's due date is before now.
func IsPastDue(inv models.Invoice, now time.Time) bool {
	return inv.Status == models.InvoiceStatusSent && inv.DueDate != nil && inv.DueDate.Before(now)
}
