package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vladislavdragonenkov/coffeeshop/internal/storage/postgres"
)

const migrateTimeout = 30 * time.Second

var errDSNRequired = errors.New("STOREFRONT_POSTGRES_DSN (or --dsn) is required")

func migrateCmd(g *globals) *cobra.Command {
	var (
		dsn   string
		steps int
	)

	withStore := func(cmd *cobra.Command, fn func(ctx context.Context, store *postgres.Store) error) error {
		target := strings.TrimSpace(dsn)
		if target == "" {
			target = strings.TrimSpace(g.cfg.PostgresDSN)
		}
		if target == "" {
			return errDSNRequired
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), migrateTimeout)
		defer cancel()
		store, err := postgres.Open(ctx, target)
		if err != nil {
			return err
		}
		defer store.Close()
		return fn(ctx, store)
	}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back PostgreSQL migrations",
	}
	cmd.PersistentFlags().StringVar(&dsn, "dsn", "", "PostgreSQL DSN (fallback: STOREFRONT_POSTGRES_DSN)")
	cmd.PersistentFlags().IntVar(&steps, "steps", 0, "number of migrations (0 = all for up, 1 for down)")

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, func(ctx context.Context, store *postgres.Store) error {
				n, err := store.MigrateUp(ctx, steps)
				if err != nil {
					return fmt.Errorf("migrate up: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", n)
				return printMigrations(ctx, cmd.OutOrStdout(), store)
			})
		},
	}
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the latest migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, func(ctx context.Context, store *postgres.Store) error {
				n, err := store.MigrateDown(ctx, steps)
				if err != nil {
					return fmt.Errorf("migrate down: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "rolled back %d migration(s)\n", n)
				return printMigrations(ctx, cmd.OutOrStdout(), store)
			})
		},
	}
	status := &cobra.Command{
		Use:   "status",
		Short: "List embedded migrations and whether they are applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, func(ctx context.Context, store *postgres.Store) error {
				return printMigrations(ctx, cmd.OutOrStdout(), store)
			})
		},
	}

	cmd.AddCommand(up, down, status)
	return cmd
}

func printMigrations(ctx context.Context, out io.Writer, store *postgres.Store) error {
	states, err := store.Migrations(ctx)
	if err != nil {
		return fmt.Errorf("migration status: %w", err)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tNAME\tAPPLIED AT")
	for _, state := range states {
		appliedAt := "pending"
		if state.Applied {
			appliedAt = state.AppliedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%04d\t%s\t%s\n", state.Version, state.Name, appliedAt)
	}
	return tw.Flush()
}
