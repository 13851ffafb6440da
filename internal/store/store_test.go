package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/diewo77/facturly/internal/billing"
	"github.com/diewo77/facturly/internal/db"
	"github.com/diewo77/facturly/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteStore(t *testing.T) *Store {
	t.Helper()
	conn, err := db.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	require.NoError(t, db.Migrate(conn))
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return New(conn)
}

func draft(t *testing.T, account uuid.UUID, number string, lines ...[2]string) models.Invoice {
	t.Helper()
	due := time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC)
	items := make([]models.LineItem, 0, len(lines))
	for i, l := range lines {
		items = append(items, models.LineItem{
			Description: fmt.Sprintf("line %d", i),
			Quantity:    decimal.RequireFromString(l[0]),
			UnitPrice:   decimal.RequireFromString(l[1]),
		})
	}
	inv, err := billing.NewDraft(billing.DraftInput{
		AccountID: account,
		Number:    number,
		Seller:    models.Party{Name: "Acme"},
		Client:    billing.InlineInfo{Info: models.Party{Name: "Globex"}},
		Items:     items,
		TaxRate:   decimal.NewFromInt(20),
		IssueDate: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		DueDate:   &due,
	})
	require.NoError(t, err)
	return inv
}

// exerciseInvoiceStore runs the behaviour every InvoiceStore must have.
func exerciseInvoiceStore(t *testing.T, s billing.InvoiceStore) {
	ctx := context.Background()
	account := uuid.New()

	t.Run("save and load", func(t *testing.T) {
		inv := draft(t, account, "FAC-2024-0001", [2]string{"3", "33.33"}, [2]string{"1", "10"})
		require.NoError(t, s.SaveInvoice(ctx, &inv))

		got, err := s.LoadInvoice(ctx, account, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, "FAC-2024-0001", got.Number)
		require.Len(t, got.Items, 2)
		assert.Equal(t, "line 0", got.Items[0].Description)
		assert.Equal(t, "109.99", got.TotalHT.StringFixed(2))
		assert.Equal(t, "22.00", got.TaxAmount.StringFixed(2))
		assert.Equal(t, "131.99", got.TotalTTC.StringFixed(2))
		assert.Equal(t, "Globex", got.Client.Name)
	})

	t.Run("items are replaced on save", func(t *testing.T) {
		inv := draft(t, account, "FAC-2024-0002", [2]string{"1", "1"}, [2]string{"2", "2"})
		require.NoError(t, s.SaveInvoice(ctx, &inv))

		inv, err := billing.RemoveLineItem(inv, 0)
		require.NoError(t, err)
		inv.Version++
		require.NoError(t, s.SaveInvoice(ctx, &inv))

		got, err := s.LoadInvoice(ctx, account, inv.ID)
		require.NoError(t, err)
		require.Len(t, got.Items, 1)
		assert.Equal(t, "line 1", got.Items[0].Description)
		assert.EqualValues(t, 2, got.Version)
	})

	t.Run("duplicate number", func(t *testing.T) {
		a := draft(t, account, "FAC-2024-0100", [2]string{"1", "1"})
		require.NoError(t, s.SaveInvoice(ctx, &a))
		b := draft(t, account, "FAC-2024-0100", [2]string{"1", "1"})

		err := s.SaveInvoice(ctx, &b)
		var ue *billing.UniquenessConflictError
		require.ErrorAs(t, err, &ue)
		assert.Equal(t, "FAC-2024-0100", ue.Number)

		// same number under another account is fine
		c := draft(t, uuid.New(), "FAC-2024-0100", [2]string{"1", "1"})
		assert.NoError(t, s.SaveInvoice(ctx, &c))
	})

	t.Run("not found", func(t *testing.T) {
		_, err := s.LoadInvoice(ctx, account, uuid.New())
		assert.ErrorIs(t, err, billing.ErrNotFound)
		_, err = s.FindByInvoiceNumber(ctx, account, "nope")
		assert.ErrorIs(t, err, billing.ErrNotFound)
	})

	t.Run("other account cannot load", func(t *testing.T) {
		inv := draft(t, account, "FAC-2024-0200", [2]string{"1", "1"})
		require.NoError(t, s.SaveInvoice(ctx, &inv))
		_, err := s.LoadInvoice(ctx, uuid.New(), inv.ID)
		assert.ErrorIs(t, err, billing.ErrNotFound)
	})

	t.Run("delete keeps number reserved", func(t *testing.T) {
		acc := uuid.New()
		inv := draft(t, acc, "FAC-2024-0001", [2]string{"1", "1"})
		require.NoError(t, s.SaveInvoice(ctx, &inv))
		require.NoError(t, s.DeleteInvoice(ctx, acc, inv.ID))

		_, err := s.LoadInvoice(ctx, acc, inv.ID)
		assert.ErrorIs(t, err, billing.ErrNotFound)
		list, err := s.ListInvoicesByAccount(ctx, acc)
		require.NoError(t, err)
		assert.Empty(t, list)

		n, err := s.CountInvoicesInYear(ctx, acc, 2024)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
		found, err := s.FindByInvoiceNumber(ctx, acc, "FAC-2024-0001")
		require.NoError(t, err)
		assert.Equal(t, inv.ID, found.ID)

		assert.ErrorIs(t, s.DeleteInvoice(ctx, acc, inv.ID), billing.ErrNotFound)
	})
}

func TestStore_SQLite(t *testing.T) {
	exerciseInvoiceStore(t, newSQLiteStore(t))
}

func TestStore_NumberGeneratorSkipsTaken(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	acc := uuid.New()

	// a hand-numbered invoice occupies the next candidate
	inv := draft(t, acc, "FAC-2024-0002", [2]string{"1", "1"})
	require.NoError(t, s.SaveInvoice(ctx, &inv))

	g := &billing.NumberGenerator{Store: s}
	n, err := g.Generate(ctx, acc, inv.IssueDate)
	require.NoError(t, err)
	assert.Equal(t, "FAC-2024-0003", n)
}

func TestStore_Clients(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	acc := uuid.New()

	c := &models.Client{UserID: acc, Name: "Zed", Email: "zed@example.test"}
	require.NoError(t, s.SaveClient(ctx, c))
	require.NoError(t, s.SaveClient(ctx, &models.Client{UserID: acc, Name: "Alice", Email: "a@example.test"}))
	require.NoError(t, s.SaveClient(ctx, &models.Client{UserID: uuid.New(), Name: "Other", Email: "o@example.test"}))

	list, err := s.ListClients(ctx, acc)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Alice", list[0].Name)

	got, err := s.GetClientByID(ctx, acc, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "zed@example.test", got.Email)

	require.NoError(t, s.DeleteClient(ctx, acc, c.ID))
	_, err = s.GetClientByID(ctx, acc, c.ID)
	assert.ErrorIs(t, err, billing.ErrNotFound)
	assert.ErrorIs(t, s.DeleteClient(ctx, acc, c.ID), billing.ErrNotFound)
}

func TestStore_CompanySettingsUpsert(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	acc := uuid.New()

	_, err := s.GetCompanySettings(ctx, acc)
	assert.ErrorIs(t, err, billing.ErrNotFound)

	require.NoError(t, s.SaveCompanySettings(ctx, &models.CompanySettings{UserID: acc, Name: "Acme", DefaultTaxRate: decimal.NewFromInt(20)}))
	require.NoError(t, s.SaveCompanySettings(ctx, &models.CompanySettings{UserID: acc, Name: "Acme SAS", DefaultTaxRate: decimal.NewFromInt(10)}))

	cs, err := s.GetCompanySettings(ctx, acc)
	require.NoError(t, err)
	assert.Equal(t, "Acme SAS", cs.Name)
	assert.True(t, cs.DefaultTaxRate.Equal(decimal.NewFromInt(10)))

	var n int64
	s.DB().Model(&models.CompanySettings{}).Count(&n)
	assert.EqualValues(t, 1, n)
}

func TestStore_Users(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	id := uuid.New()

	assert.False(t, s.UserExists(ctx, id))
	u := &models.User{ID: id, Email: "owner@example.test"}
	require.NoError(t, s.EnsureUser(ctx, u))
	require.NoError(t, s.EnsureUser(ctx, &models.User{ID: id, Email: "owner@example.test"}))
	assert.True(t, s.UserExists(ctx, id))
	assert.NoError(t, s.Ping(ctx))
}

func TestStore_ListInvoicesByStatus(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	acc := uuid.New()

	a := draft(t, acc, "FAC-2024-0001", [2]string{"1", "1"})
	b := draft(t, acc, "FAC-2024-0002", [2]string{"1", "1"})
	b, err := billing.Transition(b, models.InvoiceStatusSent, billing.TransitionOptions{})
	require.NoError(t, err)
	require.NoError(t, s.SaveInvoice(ctx, &a))
	require.NoError(t, s.SaveInvoice(ctx, &b))

	sent, err := s.ListInvoicesByStatus(ctx, models.InvoiceStatusSent)
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.Equal(t, b.ID, sent[0].ID)
}

func TestStore_SaveInvoiceIfNewer(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	acc := uuid.New()

	inv := draft(t, acc, "FAC-2024-0001", [2]string{"1", "10"})
	require.NoError(t, s.SaveInvoiceIfNewer(ctx, &inv))

	same := inv.Clone()
	same.Notes = "same version"
	err := s.SaveInvoiceIfNewer(ctx, &same)
	var se *billing.StaleVersionError
	require.ErrorAs(t, err, &se)
	assert.EqualValues(t, 1, se.Stored)

	next := inv.Clone()
	next.Version = 2
	next.Notes = "newer"
	require.NoError(t, s.SaveInvoiceIfNewer(ctx, &next))
	got, err := s.LoadInvoice(ctx, acc, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "newer", got.Notes)
	require.Len(t, got.Items, 1)

	// a tombstone still holds its version
	require.NoError(t, s.DeleteInvoice(ctx, acc, inv.ID))
	assert.ErrorIs(t, s.SaveInvoiceIfNewer(ctx, &next), billing.ErrStaleVersion)

	clash := draft(t, acc, "FAC-2024-0001", [2]string{"1", "10"})
	var ue *billing.UniquenessConflictError
	assert.ErrorAs(t, s.SaveInvoiceIfNewer(ctx, &clash), &ue)
}

func TestStore_CountInvoicesInYear(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	acc := uuid.New()

	for i, issued := range []time.Time{
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	} {
		inv := draft(t, acc, fmt.Sprintf("FAC-%d-%04d", issued.Year(), i+1), [2]string{"1", "1"})
		inv.IssueDate = issued
		require.NoError(t, s.SaveInvoice(ctx, &inv))
	}

	for year, want := range map[int]int64{2023: 0, 2024: 2, 2025: 1} {
		n, err := s.CountInvoicesInYear(ctx, acc, year)
		require.NoError(t, err)
		assert.Equal(t, want, n, year)
	}

	// the sequence restarts with the year
	g := &billing.NumberGenerator{Store: s}
	n, err := g.Generate(ctx, acc, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "FAC-2026-0001", n)
}
