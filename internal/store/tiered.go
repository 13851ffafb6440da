package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/diewo77/facturly/internal/billing"
	"github.com/diewo77/facturly/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Tiered is an invoice store made of a local cache and a remote store.
// Writes land locally first and are pushed to the remote right away. The
// remote only accepts a push carrying a newer Version; a rejected push or a
// number clash is rolled back locally and returned to the caller. Any other
// remote failure is logged and left for Reconcile. Reads prefer the local
// tier and fall back to the remote one.
type Tiered struct {
	Local  *Store
	Remote *Store
	log    zerolog.Logger
}

// NewTiered builds a two-tier store. remote may be nil.
func NewTiered(local, remote *Store, log zerolog.Logger) *Tiered {
	return &Tiered{Local: local, Remote: remote, log: log}
}

var _ billing.InvoiceStore = (*Tiered)(nil)
var _ billing.InvoiceStore = (*Store)(nil)

func (t *Tiered) LoadInvoice(ctx context.Context, accountID, id uuid.UUID) (*models.Invoice, error) {
	inv, err := t.Local.LoadInvoice(ctx, accountID, id)
	if err == nil || !errors.Is(err, billing.ErrNotFound) || t.Remote == nil {
		return inv, err
	}
	// a local tombstone stands until Reconcile has pushed it
	stored, err := t.Local.loadStored(ctx, id)
	if err != nil {
		return nil, err
	}
	if stored != nil {
		return nil, &billing.NotFoundError{Kind: "invoice", ID: id.String()}
	}
	inv, err = t.Remote.LoadInvoice(ctx, accountID, id)
	if err != nil {
		return nil, err
	}
	t.cache(ctx, inv)
	return inv, nil
}

// FindByInvoiceNumber reports a number as free only when both tiers agree.
func (t *Tiered) FindByInvoiceNumber(ctx context.Context, accountID uuid.UUID, number string) (*models.Invoice, error) {
	inv, err := t.Local.FindByInvoiceNumber(ctx, accountID, number)
	if err == nil || !errors.Is(err, billing.ErrNotFound) || t.Remote == nil {
		return inv, err
	}
	inv, err = t.Remote.FindByInvoiceNumber(ctx, accountID, number)
	if err != nil && !errors.Is(err, billing.ErrNotFound) {
		return nil, fmt.Errorf("remote number lookup: %w", err)
	}
	return inv, err
}

// CountInvoicesInYear returns the larger of the two tiers' counts so
// numbering never restarts below what the remote already holds.
func (t *Tiered) CountInvoicesInYear(ctx context.Context, accountID uuid.UUID, year int) (int64, error) {
	n, err := t.Local.CountInvoicesInYear(ctx, accountID, year)
	if err != nil || t.Remote == nil {
		return n, err
	}
	rn, rerr := t.Remote.CountInvoicesInYear(ctx, accountID, year)
	if rerr != nil {
		t.log.Warn().Err(rerr).Msg("remote count failed")
		return n, nil
	}
	return max(n, rn), nil
}

// ListInvoicesByAccount merges both tiers, keeping the highest version of
// each invoice. Tombstones take part in the merge so a deletion in either
// tier hides older live copies.
func (t *Tiered) ListInvoicesByAccount(ctx context.Context, accountID uuid.UUID) ([]models.Invoice, error) {
	if t.Remote == nil {
		return t.Local.ListInvoicesByAccount(ctx, accountID)
	}
	local, err := t.Local.listForSync(ctx, accountID)
	if err != nil {
		return nil, err
	}
	remote, err := t.Remote.listForSync(ctx, accountID)
	if err != nil {
		t.log.Warn().Err(err).Stringer("account", accountID).Msg("remote list failed, serving local copy")
		remote = nil
	}
	return recomputeAll(live(mergeNewest(local, remote))), nil
}

// ListInvoicesByStatus returns the invoices whose newest copy, across both
// tiers, is live and in status. A tier's copy in another status still counts
// when comparing versions.
func (t *Tiered) ListInvoicesByStatus(ctx context.Context, status models.InvoiceStatus) ([]models.Invoice, error) {
	local, err := t.Local.ListInvoicesByStatus(ctx, status)
	if err != nil || t.Remote == nil {
		return local, err
	}
	remote, err := t.Remote.ListInvoicesByStatus(ctx, status)
	if err != nil {
		t.log.Warn().Err(err).Str("status", status.String()).Msg("remote list failed, serving local copy")
		return local, nil
	}

	seen := make(map[uuid.UUID]bool, len(local)+len(remote))
	var ids []uuid.UUID
	for _, list := range [][]models.Invoice{local, remote} {
		for _, inv := range list {
			if !seen[inv.ID] {
				seen[inv.ID] = true
				ids = append(ids, inv.ID)
			}
		}
	}
	localAll, err := t.Local.invoicesByID(ctx, ids)
	if err != nil {
		return nil, err
	}
	remoteAll, err := t.Remote.invoicesByID(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("remote lookup: %w", err)
	}

	merged := live(mergeNewest(localAll, remoteAll))
	out := merged[:0]
	for _, inv := range merged {
		if inv.Status == status {
			out = append(out, inv)
		}
	}
	return recomputeAll(out), nil
}

func (t *Tiered) SaveInvoice(ctx context.Context, inv *models.Invoice) error {
	var prev *models.Invoice
	if t.Remote != nil {
		var err error
		if prev, err = t.Local.loadStored(ctx, inv.ID); err != nil {
			return err
		}
	}
	if err := t.Local.SaveInvoice(ctx, inv); err != nil {
		return err
	}
	if err := t.push(ctx, inv); err != nil {
		t.rollback(ctx, inv.ID, prev)
		if errors.Is(err, billing.ErrStaleVersion) {
			t.refresh(ctx, inv.ID)
		}
		return err
	}
	return nil
}

func (t *Tiered) DeleteInvoice(ctx context.Context, accountID, id uuid.UUID) error {
	lerr := t.Local.DeleteInvoice(ctx, accountID, id)
	if t.Remote == nil || (lerr != nil && !errors.Is(lerr, billing.ErrNotFound)) {
		return lerr
	}
	rerr := t.Remote.DeleteInvoice(ctx, accountID, id)
	if lerr != nil {
		// only the remote tier knew this invoice
		return rerr
	}
	if rerr != nil && !errors.Is(rerr, billing.ErrNotFound) {
		t.log.Warn().Err(rerr).Stringer("invoice", id).Msg("remote delete failed, left for reconcile")
	}
	return nil
}

// push forwards inv to the remote. Number clashes and stale versions are
// returned; anything else is logged and left for Reconcile.
func (t *Tiered) push(ctx context.Context, inv *models.Invoice) error {
	if t.Remote == nil {
		return nil
	}
	cp := inv.Clone()
	err := t.Remote.SaveInvoiceIfNewer(ctx, &cp)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, billing.ErrUniqueness), errors.Is(err, billing.ErrStaleVersion):
		t.log.Info().Err(err).Stringer("invoice", inv.ID).Int64("version", inv.Version).Msg("remote rejected write")
		return err
	default:
		t.log.Warn().Err(err).Stringer("invoice", inv.ID).Int64("version", inv.Version).Msg("remote write failed, left for reconcile")
		return nil
	}
}

// rollback restores the local copy held before a rejected write, or removes
// the invoice when there was none.
func (t *Tiered) rollback(ctx context.Context, id uuid.UUID, prev *models.Invoice) {
	var err error
	if prev == nil {
		err = t.Local.purgeInvoice(ctx, id)
	} else {
		err = t.Local.SaveInvoice(ctx, prev)
	}
	if err != nil {
		t.log.Error().Err(err).Stringer("invoice", id).Msg("local rollback failed")
	}
}

// refresh pulls the remote copy of id into the local tier.
func (t *Tiered) refresh(ctx context.Context, id uuid.UUID) {
	inv, err := t.Remote.loadStored(ctx, id)
	if err != nil || inv == nil {
		t.log.Warn().Err(err).Stringer("invoice", id).Msg("remote refresh failed")
		return
	}
	t.cache(ctx, inv)
}

// cache stores a remote copy locally unless the local tier already holds the
// same or a newer version.
func (t *Tiered) cache(ctx context.Context, inv *models.Invoice) {
	cp := inv.Clone()
	err := t.Local.SaveInvoiceIfNewer(ctx, &cp)
	if err != nil && !errors.Is(err, billing.ErrStaleVersion) {
		t.log.Warn().Err(err).Stringer("invoice", inv.ID).Msg("local cache write failed")
	}
}

// ReconcileReport summarizes one reconciliation run.
type ReconcileReport struct {
	Pushed    int
	Pulled    int
	Unchanged int
	Failed    int
}

func (r ReconcileReport) String() string {
	return fmt.Sprintf("pushed=%d pulled=%d unchanged=%d failed=%d", r.Pushed, r.Pulled, r.Unchanged, r.Failed)
}

// Reconcile brings both tiers to the same state for accountID. For each
// invoice the copy with the higher Version wins; on equal versions with
// different content the remote copy is kept. Running it twice in a row
// changes nothing the second time.
func (t *Tiered) Reconcile(ctx context.Context, accountID uuid.UUID) (ReconcileReport, error) {
	var rep ReconcileReport
	if t.Remote == nil {
		return rep, errors.New("reconcile: no remote store configured")
	}
	local, err := t.Local.listForSync(ctx, accountID)
	if err != nil {
		return rep, fmt.Errorf("reconcile: list local: %w", err)
	}
	remote, err := t.Remote.listForSync(ctx, accountID)
	if err != nil {
		return rep, fmt.Errorf("reconcile: list remote: %w", err)
	}

	remoteByID := make(map[uuid.UUID]models.Invoice, len(remote))
	for _, inv := range remote {
		remoteByID[inv.ID] = inv
	}

	for _, l := range local {
		r, ok := remoteByID[l.ID]
		delete(remoteByID, l.ID)
		switch {
		case !ok || l.Version > r.Version:
			t.copyTo(ctx, t.Remote, l, &rep.Pushed, &rep.Failed)
		case r.Version > l.Version || fingerprint(l) != fingerprint(r):
			t.copyTo(ctx, t.Local, r, &rep.Pulled, &rep.Failed)
		default:
			rep.Unchanged++
		}
	}
	for _, r := range remoteByID {
		t.copyTo(ctx, t.Local, r, &rep.Pulled, &rep.Failed)
	}

	t.log.Info().Stringer("account", accountID).Str("report", rep.String()).Msg("reconcile done")
	return rep, nil
}

func (t *Tiered) copyTo(ctx context.Context, dst *Store, inv models.Invoice, ok, failed *int) {
	cp := inv.Clone()
	if err := dst.SaveInvoice(ctx, &cp); err != nil {
		t.log.Error().Err(err).Stringer("invoice", inv.ID).Msg("reconcile copy failed")
		*failed++
		return
	}
	*ok++
}

// fingerprint captures the business content of an invoice, ignoring
// store-maintained timestamps and storage precision.
func fingerprint(inv models.Invoice) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%s|%s|%s|%s|%s|%s|%s|%t|",
		inv.Number, inv.Status, inv.TaxRate.String(),
		dateKey(&inv.IssueDate), dateKey(inv.DueDate), dateKey(inv.PaidDate),
		inv.Seller.Name, inv.Client.Name, inv.DeletedAt.Valid)
	fmt.Fprintf(&b, "%s|%s|", inv.Notes, inv.PaymentTerms)
	for _, it := range inv.Items {
		fmt.Fprintf(&b, "%s;%s;%s|", it.Description, it.Quantity.String(), it.UnitPrice.String())
	}
	return b.String()
}

func dateKey(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

// mergeNewest keeps the highest version of each invoice; b wins ties.
func mergeNewest(a, b []models.Invoice) []models.Invoice {
	byID := make(map[uuid.UUID]models.Invoice, len(a)+len(b))
	for _, list := range [][]models.Invoice{a, b} {
		for _, inv := range list {
			if cur, ok := byID[inv.ID]; !ok || inv.Version >= cur.Version {
				byID[inv.ID] = inv
			}
		}
	}
	out := make([]models.Invoice, 0, len(byID))
	for _, inv := range byID {
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].IssueDate.Equal(out[j].IssueDate) {
			return out[i].IssueDate.After(out[j].IssueDate)
		}
		return out[i].Number > out[j].Number
	})
	return out
}

func live(list []models.Invoice) []models.Invoice {
	out := list[:0]
	for _, inv := range list {
		if !inv.DeletedAt.Valid {
			out = append(out, inv)
		}
	}
	return out
}
