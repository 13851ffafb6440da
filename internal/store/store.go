// Package store implements the persistence ports on top of gorm. A Store
// wraps one database; Tiered combines a local cache with a remote store.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/diewo77/facturly/internal/billing"
	"github.com/diewo77/facturly/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is a gorm-backed implementation of billing.InvoiceStore and
// billing.ClientStore.
type Store struct {
	db *gorm.DB
}

// New wraps an open database.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying connection.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func orderedItems(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

func (s *Store) invoices(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Preload("Items", orderedItems)
}

// LoadInvoice returns the invoice id owned by accountID with recomputed totals.
func (s *Store) LoadInvoice(ctx context.Context, accountID, id uuid.UUID) (*models.Invoice, error) {
	var inv models.Invoice
	err := s.invoices(ctx).Where("user_id = ? AND id = ?", accountID, id).First(&inv).Error
	if err != nil {
		return nil, notFound(err, "invoice", id.String())
	}
	out := billing.Recompute(inv)
	return &out, nil
}

// FindByInvoiceNumber looks a number up, soft-deleted invoices included.
func (s *Store) FindByInvoiceNumber(ctx context.Context, accountID uuid.UUID, number string) (*models.Invoice, error) {
	var inv models.Invoice
	err := s.invoices(ctx).Unscoped().Where("user_id = ? AND number = ?", accountID, number).First(&inv).Error
	if err != nil {
		return nil, notFound(err, "invoice", number)
	}
	out := billing.Recompute(inv)
	return &out, nil
}

// CountInvoicesInYear counts every invoice accountID ever issued in year,
// soft-deleted ones included.
func (s *Store) CountInvoicesInYear(ctx context.Context, accountID uuid.UUID, year int) (int64, error) {
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	var n int64
	err := s.db.WithContext(ctx).Unscoped().Model(&models.Invoice{}).
		Where("user_id = ? AND issue_date >= ? AND issue_date < ?", accountID, from, from.AddDate(1, 0, 0)).
		Count(&n).Error
	return n, err
}

// ListInvoicesByAccount returns the live invoices of accountID, newest first.
func (s *Store) ListInvoicesByAccount(ctx context.Context, accountID uuid.UUID) ([]models.Invoice, error) {
	var list []models.Invoice
	err := s.invoices(ctx).Where("user_id = ?", accountID).Order("issue_date DESC, number DESC").Find(&list).Error
	if err != nil {
		return nil, err
	}
	return recomputeAll(list), nil
}

// ListInvoicesByStatus returns live invoices in status across all accounts.
func (s *Store) ListInvoicesByStatus(ctx context.Context, status models.InvoiceStatus) ([]models.Invoice, error) {
	var list []models.Invoice
	err := s.invoices(ctx).Where("status = ?", status).Order("due_date ASC").Find(&list).Error
	if err != nil {
		return nil, err
	}
	return recomputeAll(list), nil
}

// SaveInvoice creates or replaces inv and its line items in one
// transaction. Version is stored as given; callers bump it.
func (s *Store) SaveInvoice(ctx context.Context, inv *models.Invoice) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return writeInvoice(tx, inv)
	})
	return translateError(err, inv.Number)
}

// SaveInvoiceIfNewer saves inv only when no stored copy exists or the stored
// copy, soft-deleted or not, has a lower Version. Otherwise it returns a
// *billing.StaleVersionError and leaves the store untouched.
func (s *Store) SaveInvoiceIfNewer(ctx context.Context, inv *models.Invoice) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// claims the row so a concurrent writer of the same version loses
		res := tx.Unscoped().Model(&models.Invoice{}).
			Where("id = ? AND version < ?", inv.ID, inv.Version).
			Update("version", inv.Version)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var stored models.Invoice
			err := tx.Unscoped().Select("id", "version").Where("id = ?", inv.ID).First(&stored).Error
			if err == nil {
				return &billing.StaleVersionError{ID: inv.ID.String(), Version: inv.Version, Stored: stored.Version}
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}
		return writeInvoice(tx, inv)
	})
	var stale *billing.StaleVersionError
	if errors.As(err, &stale) {
		return stale
	}
	return translateError(err, inv.Number)
}

func writeInvoice(tx *gorm.DB, inv *models.Invoice) error {
	if err := tx.Unscoped().Omit(clause.Associations).Save(inv).Error; err != nil {
		return err
	}
	if err := tx.Where("invoice_id = ?", inv.ID).Delete(&models.LineItem{}).Error; err != nil {
		return err
	}
	if len(inv.Items) == 0 {
		return nil
	}
	for i := range inv.Items {
		inv.Items[i].InvoiceID = inv.ID
		inv.Items[i].Position = i
	}
	return tx.Create(&inv.Items).Error
}

// DeleteInvoice soft-deletes an invoice and bumps its version so the
// deletion wins reconciliation.
func (s *Store) DeleteInvoice(ctx context.Context, accountID, id uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Invoice{}).
			Where("user_id = ? AND id = ?", accountID, id).
			Update("version", gorm.Expr("version + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &billing.NotFoundError{Kind: "invoice", ID: id.String()}
		}
		return tx.Where("user_id = ? AND id = ?", accountID, id).Delete(&models.Invoice{}).Error
	})
}

// listForSync returns every invoice of accountID, soft-deleted ones
// included, as stored.
func (s *Store) listForSync(ctx context.Context, accountID uuid.UUID) ([]models.Invoice, error) {
	var list []models.Invoice
	err := s.invoices(ctx).Unscoped().Where("user_id = ?", accountID).Find(&list).Error
	return list, err
}

// loadStored returns invoice id as stored, soft-deleted or not, and nil when
// the store has never seen it.
func (s *Store) loadStored(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	var inv models.Invoice
	err := s.invoices(ctx).Unscoped().Where("id = ?", id).First(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// invoicesByID returns the stored copies of ids, soft-deleted ones included.
func (s *Store) invoicesByID(ctx context.Context, ids []uuid.UUID) ([]models.Invoice, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var list []models.Invoice
	err := s.invoices(ctx).Unscoped().Where("id IN ?", ids).Find(&list).Error
	return list, err
}

// purgeInvoice hard-deletes an invoice and its items.
func (s *Store) purgeInvoice(ctx context.Context, id uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("invoice_id = ?", id).Delete(&models.LineItem{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Where("id = ?", id).Delete(&models.Invoice{}).Error
	})
}

// GetClientByID returns a live client owned by accountID.
func (s *Store) GetClientByID(ctx context.Context, accountID, id uuid.UUID) (*models.Client, error) {
	var c models.Client
	err := s.db.WithContext(ctx).Where("user_id = ? AND id = ?", accountID, id).First(&c).Error
	if err != nil {
		return nil, notFound(err, "client", id.String())
	}
	return &c, nil
}

// ListClients returns the clients of accountID sorted by name.
func (s *Store) ListClients(ctx context.Context, accountID uuid.UUID) ([]models.Client, error) {
	var list []models.Client
	err := s.db.WithContext(ctx).Where("user_id = ?", accountID).Order("name ASC").Find(&list).Error
	return list, err
}

// SaveClient creates or updates c.
func (s *Store) SaveClient(ctx context.Context, c *models.Client) error {
	return s.db.WithContext(ctx).Save(c).Error
}

// DeleteClient soft-deletes a client. Invoices keep their snapshots.
func (s *Store) DeleteClient(ctx context.Context, accountID, id uuid.UUID) error {
	res := s.db.WithContext(ctx).Where("user_id = ? AND id = ?", accountID, id).Delete(&models.Client{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &billing.NotFoundError{Kind: "client", ID: id.String()}
	}
	return nil
}

// GetCompanySettings returns the seller settings of accountID.
func (s *Store) GetCompanySettings(ctx context.Context, accountID uuid.UUID) (*models.CompanySettings, error) {
	var cs models.CompanySettings
	err := s.db.WithContext(ctx).Where("user_id = ?", accountID).First(&cs).Error
	if err != nil {
		return nil, notFound(err, "company_settings", accountID.String())
	}
	return &cs, nil
}

// SaveCompanySettings upserts the settings row of cs.UserID.
func (s *Store) SaveCompanySettings(ctx context.Context, cs *models.CompanySettings) error {
	var existing models.CompanySettings
	err := s.db.WithContext(ctx).Where("user_id = ?", cs.UserID).First(&existing).Error
	switch {
	case err == nil:
		cs.ID = existing.ID
		cs.CreatedAt = existing.CreatedAt
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return err
	}
	return s.db.WithContext(ctx).Save(cs).Error
}

// EnsureUser creates the account row if it does not exist yet.
func (s *Store) EnsureUser(ctx context.Context, u *models.User) error {
	return s.db.WithContext(ctx).Where(models.User{ID: u.ID}).Attrs(models.User{Email: u.Email, Name: u.Name}).FirstOrCreate(u).Error
}

// UserExists reports whether the account id is known.
func (s *Store) UserExists(ctx context.Context, id uuid.UUID) bool {
	var n int64
	s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Count(&n)
	return n > 0
}

func recomputeAll(list []models.Invoice) []models.Invoice {
	for i := range list {
		list[i] = billing.Recompute(list[i])
	}
	return list
}

func notFound(err error, kind, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &billing.NotFoundError{Kind: kind, ID: id}
	}
	return err
}

// translateError maps unique index violations to UniquenessConflictError.
// Drivers without error translation are matched on their message.
func translateError(err error, number string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return &billing.UniquenessConflictError{Number: number}
	}
	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key") {
		return &billing.UniquenessConflictError{Number: number}
	}
	return fmt.Errorf("save invoice %s: %w", number, err)
}
