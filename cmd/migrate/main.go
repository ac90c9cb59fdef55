package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/courierdesk/gateway/internal/config"
	"github.com/courierdesk/gateway/internal/database"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Manage the gateway database schema and accounts",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.AddCommand(
		schemaCommand("up", "Apply all pending migrations", database.Migrate),
		schemaCommand("down", "Roll back the most recent migration", database.MigrateDown),
		schemaCommand("status", "Show migration status", database.MigrationStatus),
		seedUserCommand(),
		setStatusCommand(),
	)
	return root
}

func connect() (*database.DB, error) {
	cfg, err := config.LoadDatabase()
	if err != nil {
		return nil, err
	}
	return database.NewPostgresDB(*cfg)
}

func schemaCommand(use, short string, run func(context.Context, *sql.DB) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := connect()
			if err != nil {
				return err
			}
			defer db.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()

			return run(ctx, db.DB.DB)
		},
	}
}
