package main

import (
	"fmt"
	"time"

	"github.com/diewo77/facturly/internal/logger"
	"github.com/diewo77/facturly/internal/models"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger.WithComponent("migrate")
		cfg.App.Migrations = true
		if _, err := openBackend(log); err != nil {
			return err
		}
		log.Info().Str("driver", cfg.Database.Driver).Msg("migrations completed")
		return nil
	},
}

var markOverdueCmd = &cobra.Command{
	Use:   "mark-overdue",
	Short: "Move sent invoices past their due date to overdue",
	Long: `Move every sent invoice whose due date has passed to overdue.

Meant to be run daily by cron or a Kubernetes CronJob.`,
	Example: `  facturly mark-overdue
  facturly mark-overdue --as-of 2024-04-01`,
	RunE: runMarkOverdue,
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Synchronize the local invoice cache with the primary database",
	Long: `Compare the local sqlite cache with the primary database for one account.

The copy with the higher version wins. When versions are equal but contents
differ, the primary copy is kept. Requires LOCAL_CACHE_PATH.`,
	RunE: runReconcile,
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an API token for an account, creating the account if needed",
	RunE:  runToken,
}

func init() {
	rootCmd.AddCommand(migrateCmd, markOverdueCmd, reconcileCmd, tokenCmd)

	markOverdueCmd.Flags().String("as-of", "", "Reference date (format: YYYY-MM-DD, default: today)")
	reconcileCmd.Flags().String("account", "", "Account id to reconcile")
	_ = reconcileCmd.MarkFlagRequired("account")
	tokenCmd.Flags().String("account", "", "Account id (default: a new account)")
	tokenCmd.Flags().String("email", "", "Account e-mail when the account is created")
}

func runMarkOverdue(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("mark-overdue")

	now := time.Now()
	if raw, _ := cmd.Flags().GetString("as-of"); raw != "" {
		d, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return fmt.Errorf("invalid --as-of date, use YYYY-MM-DD: %w", err)
		}
		now = d
	}

	b, err := openBackend(log)
	if err != nil {
		return err
	}
	n, err := b.invoices.MarkOverdue(cmd.Context(), now)
	fmt.Fprintf(cmd.OutOrStdout(), "%d invoice(s) marked overdue\n", n)
	return err
}

func runReconcile(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("reconcile")

	raw, _ := cmd.Flags().GetString("account")
	account, err := uuid.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid --account: %w", err)
	}

	b, err := openBackend(log)
	if err != nil {
		return err
	}
	if b.tiered == nil {
		return fmt.Errorf("LOCAL_CACHE_PATH is not set, nothing to reconcile")
	}
	report, err := b.tiered.Reconcile(cmd.Context(), account)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), report.String())
	if report.Failed > 0 {
		return fmt.Errorf("%d invoice(s) failed to synchronize", report.Failed)
	}
	return nil
}

func runToken(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("token")

	account := uuid.New()
	if raw, _ := cmd.Flags().GetString("account"); raw != "" {
		var err error
		if account, err = uuid.Parse(raw); err != nil {
			return fmt.Errorf("invalid --account: %w", err)
		}
	}
	email, _ := cmd.Flags().GetString("email")
	if email == "" {
		email = account.String() + "@facturly.local"
	}

	b, err := openBackend(log)
	if err != nil {
		return err
	}
	user := &models.User{ID: account, Email: email}
	if err := b.primary.EnsureUser(cmd.Context(), user); err != nil {
		return fmt.Errorf("ensure account: %w", err)
	}

	tok, err := newJWT().IssueToken(user.ID)
	if err != nil {
		return err
	}
	log.Info().Stringer("account", user.ID).Msg("token issued")
	fmt.Fprintln(cmd.OutOrStdout(), tok)
	return nil
}
