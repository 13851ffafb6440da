package main

import (
	"fmt"
	"time"

	"github.com/diewo77/facturly/auth"
	"github.com/diewo77/facturly/internal/config"
	"github.com/diewo77/facturly/internal/db"
	"github.com/diewo77/facturly/internal/logger"
	"github.com/diewo77/facturly/internal/pdf"
	"github.com/diewo77/facturly/internal/policy"
	"github.com/diewo77/facturly/internal/services"
	"github.com/diewo77/facturly/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

const devJWTSecret = "dev-only-secret"

var cfg config.Config

var rootCmd = &cobra.Command{
	Use:   "facturly",
	Short: "Facturly invoicing API",
	Long: `Facturly serves a JSON API for drafting, issuing and tracking invoices.

Without a subcommand the HTTP server is started. Configuration is read from
the environment and an optional .env file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.Load(); err != nil {
			return err
		}
		if cfg.Auth.JWTSecret == "" {
			cfg.Auth.JWTSecret = devJWTSecret
		}
		return logger.Setup(logger.LogConfig{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: "stdout"})
	},
	RunE: runServe,
}

// backend bundles the database connections and services shared by the
// server and the maintenance commands.
type backend struct {
	primary  *store.Store
	tiered   *store.Tiered
	invoices *services.InvoiceService
	clients  *services.ClientService
	company  *services.CompanyService
	gate     *policy.Gate[uuid.UUID]
}

// invoiceStore returns the tiered store when a local cache is configured.
func (b *backend) invoiceStore() services.InvoiceRepository {
	if b.tiered != nil {
		return b.tiered
	}
	return b.primary
}

func openBackend(log zerolog.Logger) (*backend, error) {
	conn, err := db.Open(cfg.Database, log)
	if err != nil {
		return nil, err
	}
	if cfg.App.Migrations {
		if err := migrate(conn); err != nil {
			return nil, err
		}
	}

	b := &backend{primary: store.New(conn), gate: policy.NewAccountGate()}
	if cfg.App.LocalCachePath != "" {
		local, err := db.OpenSQLite(cfg.App.LocalCachePath)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(local); err != nil {
			return nil, fmt.Errorf("migrate local cache: %w", err)
		}
		b.tiered = store.NewTiered(store.New(local), b.primary, logger.WithComponent("tiered"))
		log.Info().Str("path", cfg.App.LocalCachePath).Msg("local invoice cache enabled")
	}

	b.invoices = services.NewInvoiceService(b.invoiceStore(), b.primary, b.primary, pdf.NewRenderer(), logger.WithComponent("invoices"))
	b.invoices.SetNumberPrefix(cfg.App.InvoicePrefix)
	b.invoices.SetGate(b.gate)
	b.clients = services.NewClientService(b.primary)
	b.company = services.NewCompanyService(b.primary)
	return b, nil
}

// migrate applies the SQL migrations on postgres and AutoMigrate on sqlite.
func migrate(conn *gorm.DB) error {
	if cfg.Database.Driver == "postgres" {
		if err := db.RunSQLMigrations(cfg.Database.URL()); err != nil {
			return err
		}
		return nil
	}
	return db.Migrate(conn)
}

func newJWT() *auth.JWT {
	return auth.NewJWT(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenTTLHours)*time.Hour)
}
