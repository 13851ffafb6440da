// Package billing holds the invoice domain rules: totals computation, line
// item editing, submit-time validation, number generation and the status
// lifecycle. Every function works on plain models values and returns a new
// aggregate; persistence is reached only through the ports in ports.go.
package billing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/diewo77/facturly/internal/models"
)

// Sentinel errors usable with errors.Is.
var (
	ErrValidation        = errors.New("validation failed")
	ErrIncomplete        = errors.New("invoice incomplete")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotFound          = errors.New("not found")
	ErrUniqueness        = errors.New("invoice number already in use")
	ErrStaleVersion      = errors.New("stale invoice version")
)

// Reason codes carried by ValidationError. They double as i18n keys.
const (
	ReasonRequired        = "required"
	ReasonNegative        = "must_be_non_negative"
	ReasonOutOfRange      = "out_of_range"
	ReasonBeforeIssue     = "before_issue_date"
	ReasonLocked          = "invoice_locked"
	ReasonNotPaid         = "invoice_not_paid"
	ReasonUnknownField    = "unknown_field"
	ReasonInvalidValue    = "invalid_value"
	ReasonNumberImmutable = "number_immutable"
)

// ValidationError reports malformed or out-of-range input on an invoice field
// or on a single line item. Index is -1 for invoice-level fields.
type ValidationError struct {
	Field  string
	Index  int
	Reason string
	Value  any
}

// NewFieldError builds a ValidationError for an invoice-level field.
func NewFieldError(field, reason string, value any) *ValidationError {
	return &ValidationError{Field: field, Index: -1, Reason: reason, Value: value}
}

// NewItemError builds a ValidationError for a field of the line item at index.
func NewItemError(index int, field, reason string, value any) *ValidationError {
	return &ValidationError{Field: field, Index: index, Reason: reason, Value: value}
}

// Path is the field location, e.g. "due_date" or "items[2].quantity".
func (e *ValidationError) Path() string {
	if e.Index >= 0 {
		return fmt.Sprintf("items[%d].%s", e.Index, e.Field)
	}
	return e.Field
}

func (e *ValidationError) Error() string {
	path := e.Path()
	if e.Value != nil {
		return fmt.Sprintf("validation: %s: %s (value: %v)", path, e.Reason, e.Value)
	}
	return fmt.Sprintf("validation: %s: %s", path, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// IncompleteInvoiceError is returned when an invoice cannot leave draft
// because required content is missing.
type IncompleteInvoiceError struct {
	Missing []string
}

func (e *IncompleteInvoiceError) Error() string {
	return "invoice incomplete: missing " + strings.Join(e.Missing, ", ")
}

func (e *IncompleteInvoiceError) Unwrap() error { return ErrIncomplete }

// InvalidTransitionError is returned for any status change outside the
// lifecycle table.
type InvalidTransitionError struct {
	From models.InvoiceStatus
	To   models.InvoiceStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// NotFoundError is returned when a referenced invoice or client does not exist.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// UniquenessConflictError is returned when an invoice number is already
// taken within the account.
type UniquenessConflictError struct {
	Number string
}

func (e *UniquenessConflictError) Error() string {
	return fmt.Sprintf("invoice number %q already in use", e.Number)
}

func (e *UniquenessConflictError) Unwrap() error { return ErrUniqueness }

// StaleVersionError is returned when a write carries a version that is not
// newer than the stored copy, i.e. another writer got there first.
type StaleVersionError struct {
	ID      string
	Version int64
	Stored  int64
}

func (e *StaleVersionError) Error() string {
	return fmt.Sprintf("invoice %s: version %d is not newer than stored version %d", e.ID, e.Version, e.Stored)
}

func (e *StaleVersionError) Unwrap() error { return ErrStaleVersion }
