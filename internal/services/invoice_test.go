package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/diewo77/facturly/internal/billing"
	"github.com/diewo77/facturly/internal/db"
	"github.com/diewo77/facturly/internal/models"
	"github.com/diewo77/facturly/internal/pdf"
	"github.com/diewo77/facturly/internal/policy"
	"github.com/diewo77/facturly/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 5, 10, 14, 30, 0, 0, time.UTC)

type fixture struct {
	store    *store.Store
	invoices *InvoiceService
	clients  *ClientService
	company  *CompanyService
	account  uuid.UUID
}

func setup(t *testing.T) *fixture {
	t.Helper()
	conn, err := db.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	require.NoError(t, db.Migrate(conn))
	st := store.New(conn)

	inv := NewInvoiceService(st, st, st, pdf.NewRenderer(), zerolog.Nop())
	inv.SetClock(func() time.Time { return fixedNow })
	return &fixture{
		store:    st,
		invoices: inv,
		clients:  NewClientService(st),
		company:  NewCompanyService(st),
		account:  uuid.New(),
	}
}

func lines(pairs ...string) []models.LineItem {
	var out []models.LineItem
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, models.LineItem{
			Description: fmt.Sprintf("item %d", i/2),
			Quantity:    decimal.RequireFromString(pairs[i]),
			UnitPrice:   decimal.RequireFromString(pairs[i+1]),
		})
	}
	return out
}

func (f *fixture) seedCompany(t *testing.T) {
	t.Helper()
	rate := decimal.NewFromInt(20)
	_, err := f.company.Upsert(context.Background(), f.account, CompanyInput{
		Name: "Acme SARL", SIRET: "12345678900011", DefaultTaxRate: &rate,
		DefaultPaymentTerms: "30 jours", PaymentDays: 30,
	})
	require.NoError(t, err)
}

func TestCreate_FromStoredClient(t *testing.T) {
	f := setup(t)
	f.seedCompany(t)
	ctx := context.Background()

	c, err := f.clients.Create(ctx, f.account, ClientInput{Name: "Jane", Company: "Globex", Email: "jane@globex.test"})
	require.NoError(t, err)

	inv, err := f.invoices.Create(ctx, f.account, CreateInvoiceInput{ClientID: &c.ID, Items: lines("2", "500")})
	require.NoError(t, err)

	assert.Equal(t, "FAC-2024-0001", inv.Number)
	assert.Equal(t, "Acme SARL", inv.Seller.Name)
	assert.Equal(t, "Globex", inv.Client.Name)
	assert.Equal(t, "30 jours", inv.PaymentTerms)
	assert.Equal(t, "1200.00", inv.TotalTTC.StringFixed(2))
	require.NotNil(t, inv.DueDate)
	assert.Equal(t, time.Date(2024, 6, 9, 0, 0, 0, 0, time.UTC), *inv.DueDate)

	// editing or deleting the client leaves the invoice snapshot alone
	_, err = f.clients.Update(ctx, f.account, c.ID, ClientInput{Name: "Jane", Company: "Renamed", Email: "jane@globex.test"})
	require.NoError(t, err)
	require.NoError(t, f.clients.Delete(ctx, f.account, c.ID))

	got, err := f.invoices.Get(ctx, f.account, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "Globex", got.Client.Name)
}

func TestCreate_SequentialNumbers(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		inv, err := f.invoices.Create(ctx, f.account, CreateInvoiceInput{Client: &models.Party{Name: "X"}})
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("FAC-2024-%04d", i), inv.Number)
	}

	f.invoices.SetNumberPrefix("INV")
	inv, err := f.invoices.Create(ctx, f.account, CreateInvoiceInput{Client: &models.Party{Name: "X"}})
	require.NoError(t, err)
	assert.Equal(t, "INV-2024-0004", inv.Number)
}

func TestCreate_ManualNumberConflict(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.invoices.Create(ctx, f.account, CreateInvoiceInput{Number: "A-1", Client: &models.Party{Name: "X"}})
	require.NoError(t, err)
	_, err = f.invoices.Create(ctx, f.account, CreateInvoiceInput{Number: "A-1", Client: &models.Party{Name: "X"}})
	assert.ErrorIs(t, err, billing.ErrUniqueness)
}

// racingStore lets another writer claim the generated number right before
// the first save.
type racingStore struct {
	*store.Store
	raced bool
}

func (r *racingStore) SaveInvoice(ctx context.Context, inv *models.Invoice) error {
	if !r.raced {
		r.raced = true
		other := inv.Clone()
		other.ID = uuid.New()
		for i := range other.Items {
			other.Items[i].ID = uuid.New()
		}
		if err := r.Store.SaveInvoice(ctx, &other); err != nil {
			return err
		}
	}
	return r.Store.SaveInvoice(ctx, inv)
}

func TestCreate_RetriesOnceOnNumberRace(t *testing.T) {
	f := setup(t)
	rs := &racingStore{Store: f.store}
	svc := NewInvoiceService(rs, f.store, f.store, nil, zerolog.Nop())
	svc.SetClock(func() time.Time { return fixedNow })

	inv, err := svc.Create(context.Background(), f.account, CreateInvoiceInput{Client: &models.Party{Name: "X"}})
	require.NoError(t, err)
	assert.Equal(t, "FAC-2024-0002", inv.Number)
}

func TestCreate_RequiresClient(t *testing.T) {
	f := setup(t)
	_, err := f.invoices.Create(context.Background(), f.account, CreateInvoiceInput{})
	var ve *billing.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "client", ve.Field)

	missing := uuid.New()
	_, err = f.invoices.Create(context.Background(), f.account, CreateInvoiceInput{ClientID: &missing})
	assert.ErrorIs(t, err, billing.ErrNotFound)
}

func TestItemsAndLifecycle(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	inv, err := f.invoices.Create(ctx, f.account, CreateInvoiceInput{
		Client: &models.Party{Name: "Globex"}, Seller: &models.Party{Name: "Acme"},
		TaxRate: ptr(decimal.NewFromInt(20)),
	})
	require.NoError(t, err)
	assert.Nil(t, inv.DueDate)

	inv, err = f.invoices.AddItem(ctx, f.account, inv.ID, lines("3", "33.33")[0])
	require.NoError(t, err)
	inv, err = f.invoices.AddItem(ctx, f.account, inv.ID, lines("1", "10")[0])
	require.NoError(t, err)
	assert.Equal(t, "131.99", inv.TotalTTC.StringFixed(2))
	assert.EqualValues(t, 3, inv.Version)

	_, err = f.invoices.Transition(ctx, f.account, inv.ID, models.InvoiceStatusSent, nil)
	var ie *billing.IncompleteInvoiceError
	require.ErrorAs(t, err, &ie)

	due := fixedNow.AddDate(0, 1, 0)
	inv, err = f.invoices.UpdateDetails(ctx, f.account, inv.ID, billing.Details{DueDate: &due})
	require.NoError(t, err)

	inv, err = f.invoices.UpdateItem(ctx, f.account, inv.ID, 1, "quantity", "2")
	require.NoError(t, err)
	assert.Equal(t, "119.99", inv.TotalHT.StringFixed(2))

	inv, err = f.invoices.Transition(ctx, f.account, inv.ID, models.InvoiceStatusSent, nil)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusSent, inv.Status)

	_, err = f.invoices.AddItem(ctx, f.account, inv.ID, lines("1", "1")[0])
	assert.ErrorIs(t, err, billing.ErrValidation)
	assert.ErrorIs(t, f.invoices.Delete(ctx, f.account, inv.ID), billing.ErrValidation)

	inv, err = f.invoices.Transition(ctx, f.account, inv.ID, models.InvoiceStatusPaid, nil)
	require.NoError(t, err)
	require.NotNil(t, inv.PaidDate)
	version := inv.Version

	again, err := f.invoices.Transition(ctx, f.account, inv.ID, models.InvoiceStatusPaid, nil)
	require.NoError(t, err)
	assert.Equal(t, version, again.Version, "no-op paid must not save")

	_, err = f.invoices.Transition(ctx, f.account, inv.ID, models.InvoiceStatusSent, nil)
	assert.ErrorIs(t, err, billing.ErrInvalidTransition)

	paidOn := fixedNow.AddDate(0, 0, 3)
	corrected, err := f.invoices.CorrectPaidDate(ctx, f.account, inv.ID, paidOn)
	require.NoError(t, err)
	assert.True(t, corrected.PaidDate.Equal(paidOn))

	stored, err := f.invoices.Get(ctx, f.account, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusPaid, stored.Status)
	assert.Equal(t, "143.99", stored.TotalTTC.StringFixed(2))
}

func TestRemoveItem_LastRefused(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	inv, err := f.invoices.Create(ctx, f.account, CreateInvoiceInput{Client: &models.Party{Name: "X"}, Items: lines("1", "5")})
	require.NoError(t, err)

	_, err = f.invoices.RemoveItem(ctx, f.account, inv.ID, 0)
	assert.ErrorIs(t, err, billing.ErrIncomplete)

	got, err := f.invoices.Get(ctx, f.account, inv.ID)
	require.NoError(t, err)
	assert.Len(t, got.Items, 1)
	assert.EqualValues(t, 1, got.Version)
}

func TestDeleteDraft(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	inv, err := f.invoices.Create(ctx, f.account, CreateInvoiceInput{Client: &models.Party{Name: "X"}})
	require.NoError(t, err)

	require.NoError(t, f.invoices.Delete(ctx, f.account, inv.ID))
	_, err = f.invoices.Get(ctx, f.account, inv.ID)
	assert.ErrorIs(t, err, billing.ErrNotFound)

	// deleted numbers are not reused
	next, err := f.invoices.Create(ctx, f.account, CreateInvoiceInput{Client: &models.Party{Name: "X"}})
	require.NoError(t, err)
	assert.Equal(t, "FAC-2024-0002", next.Number)
}

func TestDashboardAndMarkOverdue(t *testing.T) {
	f := setup(t)
	f.seedCompany(t)
	ctx := context.Background()
	client := &models.Party{Name: "Globex"}

	mk := func(status models.InvoiceStatus, qty, price string) *models.Invoice {
		inv, err := f.invoices.Create(ctx, f.account, CreateInvoiceInput{Client: client, Items: lines(qty, price)})
		require.NoError(t, err)
		if status == models.InvoiceStatusDraft {
			return inv
		}
		inv, err = f.invoices.Transition(ctx, f.account, inv.ID, models.InvoiceStatusSent, nil)
		require.NoError(t, err)
		if status != models.InvoiceStatusSent {
			inv, err = f.invoices.Transition(ctx, f.account, inv.ID, status, nil)
			require.NoError(t, err)
		}
		return inv
	}
	mk(models.InvoiceStatusDraft, "1", "50")
	sent := mk(models.InvoiceStatusSent, "1", "100")
	mk(models.InvoiceStatusPaid, "2", "500")
	mk(models.InvoiceStatusCancelled, "1", "999")

	d, err := f.invoices.Dashboard(ctx, f.account)
	require.NoError(t, err)
	assert.Equal(t, 1, d.Counts[models.InvoiceStatusDraft])
	assert.Equal(t, 1, d.Counts[models.InvoiceStatusPaid])
	assert.Equal(t, 0, d.Counts[models.InvoiceStatusOverdue])
	assert.Equal(t, "1200.00", d.Revenue.StringFixed(2))
	assert.Equal(t, "120.00", d.Outstanding.StringFixed(2))
	assert.Equal(t, "60.00", d.DraftTotal.StringFixed(2))

	// not yet due
	n, err := f.invoices.MarkOverdue(ctx, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = f.invoices.MarkOverdue(ctx, sent.DueDate.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	d, err = f.invoices.Dashboard(ctx, f.account)
	require.NoError(t, err)
	assert.Equal(t, 1, d.Counts[models.InvoiceStatusOverdue])
	assert.Equal(t, "120.00", d.Overdue.StringFixed(2))
	assert.Equal(t, "120.00", d.Outstanding.StringFixed(2))

	// second sweep is a no-op
	n, err = f.invoices.MarkOverdue(ctx, sent.DueDate.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestList_FilterByStatus(t *testing.T) {
	f := setup(t)
	f.seedCompany(t)
	ctx := context.Background()

	a, err := f.invoices.Create(ctx, f.account, CreateInvoiceInput{Client: &models.Party{Name: "X"}, Items: lines("1", "1")})
	require.NoError(t, err)
	_, err = f.invoices.Create(ctx, f.account, CreateInvoiceInput{Client: &models.Party{Name: "X"}, Items: lines("1", "1")})
	require.NoError(t, err)
	_, err = f.invoices.Transition(ctx, f.account, a.ID, models.InvoiceStatusSent, nil)
	require.NoError(t, err)

	all, err := f.invoices.List(ctx, f.account, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	st := models.InvoiceStatusSent
	sent, err := f.invoices.List(ctx, f.account, &st)
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.Equal(t, a.ID, sent[0].ID)
}

func TestExportPDF(t *testing.T) {
	f := setup(t)
	f.seedCompany(t)
	ctx := context.Background()

	inv, err := f.invoices.Create(ctx, f.account, CreateInvoiceInput{Client: &models.Party{Name: "Globex"}, Items: lines("1", "10")})
	require.NoError(t, err)

	out, name, err := f.invoices.ExportPDF(ctx, f.account, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, inv.Number+".pdf", name)
	assert.Equal(t, "%PDF", string(out[:4]))

	incomplete, err := f.invoices.Create(ctx, f.account, CreateInvoiceInput{Client: &models.Party{Name: "Globex"}})
	require.NoError(t, err)
	_, _, err = f.invoices.ExportPDF(ctx, f.account, incomplete.ID)
	assert.True(t, errors.Is(err, billing.ErrIncomplete))
}

func ptr[T any](v T) *T { return &v }

// updatesDenied lets an account view its invoices but nothing else.
type updatesDenied struct{}

func (updatesDenied) Can(_ context.Context, _ uuid.UUID, action policy.Action, _ any) bool {
	return action == policy.ActionView
}

func TestGateChecksLoadedInvoice(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	inv, err := f.invoices.Create(ctx, f.account, CreateInvoiceInput{Client: &models.Party{Name: "X"}, Items: lines("1", "10")})
	require.NoError(t, err)

	g := policy.NewGate[uuid.UUID]()
	g.Register(policy.ResourceInvoice, updatesDenied{})
	f.invoices.SetGate(g)

	_, err = f.invoices.Get(ctx, f.account, inv.ID)
	require.NoError(t, err)
	_, err = f.invoices.AddItem(ctx, f.account, inv.ID, lines("1", "1")[0])
	assert.ErrorIs(t, err, policy.ErrUnauthorized)
	_, err = f.invoices.Transition(ctx, f.account, inv.ID, models.InvoiceStatusCancelled, nil)
	assert.ErrorIs(t, err, policy.ErrUnauthorized)
	assert.ErrorIs(t, f.invoices.Delete(ctx, f.account, inv.ID), policy.ErrUnauthorized)
	_, _, err = f.invoices.ExportPDF(ctx, f.account, inv.ID)
	assert.ErrorIs(t, err, policy.ErrUnauthorized)

	got, err := f.store.LoadInvoice(ctx, f.account, inv.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.Version)
}

func sqliteStore(t *testing.T) *store.Store {
	t.Helper()
	conn, err := db.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	require.NoError(t, db.Migrate(conn))
	return store.New(conn)
}

// node is one server instance with its own cache in front of a shared
// remote database.
func node(t *testing.T, remote *store.Store) *InvoiceService {
	t.Helper()
	ts := store.NewTiered(sqliteStore(t), remote, zerolog.Nop())
	svc := NewInvoiceService(ts, remote, remote, nil, zerolog.Nop())
	svc.SetClock(func() time.Time { return fixedNow })
	return svc
}

// claimsFirst lets another node take the generated number in the remote
// database right before the first save reaches it.
type claimsFirst struct {
	*store.Tiered
	other *InvoiceService
	done  bool
}

func (c *claimsFirst) SaveInvoice(ctx context.Context, inv *models.Invoice) error {
	if !c.done {
		c.done = true
		if _, err := c.other.Create(ctx, inv.UserID, CreateInvoiceInput{Number: inv.Number, Client: &models.Party{Name: "other"}}); err != nil {
			return err
		}
	}
	return c.Tiered.SaveInvoice(ctx, inv)
}

func TestTiered_TwoNodesNumberDistinctly(t *testing.T) {
	ctx := context.Background()
	remote := sqliteStore(t)
	a := node(t, remote)
	acc := uuid.New()

	racing := &claimsFirst{Tiered: store.NewTiered(sqliteStore(t), remote, zerolog.Nop()), other: a}
	b := NewInvoiceService(racing, remote, remote, nil, zerolog.Nop())
	b.SetClock(func() time.Time { return fixedNow })

	inv, err := b.Create(ctx, acc, CreateInvoiceInput{Client: &models.Party{Name: "Y"}})
	require.NoError(t, err)
	assert.Equal(t, "FAC-2024-0002", inv.Number)

	next, err := a.Create(ctx, acc, CreateInvoiceInput{Client: &models.Party{Name: "X"}})
	require.NoError(t, err)
	assert.Equal(t, "FAC-2024-0003", next.Number)

	// a hand-picked number taken on the other node is reported
	_, err = b.Create(ctx, acc, CreateInvoiceInput{Number: "FAC-2024-0001", Client: &models.Party{Name: "Z"}})
	assert.ErrorIs(t, err, billing.ErrUniqueness)

	list, err := remote.ListInvoicesByAccount(ctx, acc)
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

func TestTiered_SweepSkipsStaleCache(t *testing.T) {
	ctx := context.Background()
	remote := sqliteStore(t)
	a, b := node(t, remote), node(t, remote)
	acc := uuid.New()
	due := fixedNow.AddDate(0, 0, 10)

	inv, err := a.Create(ctx, acc, CreateInvoiceInput{
		Client: &models.Party{Name: "Globex"}, Seller: &models.Party{Name: "Acme"},
		Items: lines("1", "100"), DueDate: &due,
	})
	require.NoError(t, err)
	_, err = a.Transition(ctx, acc, inv.ID, models.InvoiceStatusSent, nil)
	require.NoError(t, err)

	// b caches the sent copy, then a records the payment
	_, err = b.Get(ctx, acc, inv.ID)
	require.NoError(t, err)
	_, err = a.Transition(ctx, acc, inv.ID, models.InvoiceStatusPaid, nil)
	require.NoError(t, err)

	n, err := b.MarkOverdue(ctx, due.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	got, err := remote.LoadInvoice(ctx, acc, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusPaid, got.Status)
	assert.EqualValues(t, 3, got.Version)

	// a direct edit from the stale cache is refused and refreshes it
	_, err = b.Transition(ctx, acc, inv.ID, models.InvoiceStatusCancelled, nil)
	assert.ErrorIs(t, err, billing.ErrStaleVersion)
	got, err = b.Get(ctx, acc, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusPaid, got.Status)
}
