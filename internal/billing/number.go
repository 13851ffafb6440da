package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultNumberPrefix is used when a NumberGenerator has no prefix.
const DefaultNumberPrefix = "FAC"

const defaultMaxProbe = 100

// NumberLookup is the part of InvoiceStore a NumberGenerator needs.
// Both methods must include soft-deleted invoices, since their numbers stay
// reserved. CountInvoicesInYear counts by issue date year.
type NumberLookup interface {
	CountInvoicesInYear(ctx context.Context, accountID uuid.UUID, year int) (int64, error)
	FindByInvoiceNumber(ctx context.Context, accountID uuid.UUID, number string) (*Invoice, error)
}

// NumberGenerator issues PREFIX-YYYY-NNNN numbers. The sequence restarts
// every year: the first candidate is derived from the count of invoices
// issued that year and bumped until a free number is found. The unique index remains the final arbiter under concurrency.
type NumberGenerator struct {
	Store    NumberLookup
	Prefix   string
	MaxProbe int
}

// Format renders the number for a given year and sequence.
func (g *NumberGenerator) Format(year int, seq int64) string {
	prefix := g.Prefix
	if prefix == "" {
		prefix = DefaultNumberPrefix
	}
	return fmt.Sprintf("%s-%d-%04d", prefix, year, seq)
}

// Generate returns a number not yet used by accountID.
func (g *NumberGenerator) Generate(ctx context.Context, accountID uuid.UUID, issueDate time.Time) (string, error) {
	count, err := g.Store.CountInvoicesInYear(ctx, accountID, issueDate.Year())
	if err != nil {
		return "", fmt.Errorf("count invoices: %w", err)
	}
	probes := g.MaxProbe
	if probes <= 0 {
		probes = defaultMaxProbe
	}

	var candidate string
	seq := count + 1
	for i := 0; i < probes; i++ {
		candidate = g.Format(issueDate.Year(), seq)
		_, err := g.Store.FindByInvoiceNumber(ctx, accountID, candidate)
		if errors.Is(err, ErrNotFound) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("check invoice number: %w", err)
		}
		seq++
	}
	return "", &UniquenessConflictError{Number: candidate}
}
