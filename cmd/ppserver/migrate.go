package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Blackbeard96/summer-games/internal/infrastructure/persistence/postgres"
	"github.com/Blackbeard96/summer-games/pkg/logger"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL schema",
	}

	// withMigrator connects, runs fn and closes the pool.
	withMigrator := func(cmd *cobra.Command, fn func(context.Context, *postgres.Migrator, *logger.Logger) error) error {
		cfg, log, err := opts.load()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()
		if cfg.Database.URL == "" {
			return errors.New("DATABASE_URL is required for migrations")
		}
		conn, err := openPostgres(cmd.Context(), cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer conn.Close()

		m, err := postgres.NewMigrator(conn)
		if err != nil {
			return err
		}
		defer func() { _ = m.Close() }()
		return fn(cmd.Context(), m, log)
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(cmd, func(ctx context.Context, m *postgres.Migrator, log *logger.Logger) error {
					n, err := m.Migrate(ctx)
					if err != nil {
						return err
					}
					log.Info("migrations applied", logger.Int("count", n))
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(cmd, func(ctx context.Context, m *postgres.Migrator, log *logger.Logger) error {
					version, err := m.Rollback(ctx)
					if err != nil {
						return err
					}
					if version == 0 {
						log.Info("nothing to roll back")
						return nil
					}
					log.Info("migration rolled back", logger.Int("version", version))
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "List migrations and whether they are applied",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(cmd, func(ctx context.Context, m *postgres.Migrator, _ *logger.Logger) error {
					list, err := m.Status(ctx)
					if err != nil {
						return err
					}
					tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "VERSION\tNAME\tAPPLIED AT")
					for _, mig := range list {
						at := "pending"
						if mig.IsApplied {
							at = mig.AppliedAt.Format("2006-01-02 15:04:05")
						}
						fmt.Fprintf(tw, "%d\t%s\t%s\n", mig.Version, mig.Name, at)
					}
					return tw.Flush()
				})
			},
		},
	)
	return cmd
}
