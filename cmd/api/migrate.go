package main

import (
	"fmt"
	"log/slog"

	"github.com/example/es-bank-account/internal/auth"
	"github.com/example/es-bank-account/internal/infrastructure/store"
	"github.com/spf13/cobra"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the events and snapshots tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if cfg.Storage.Backend != "sql" {
				return fmt.Errorf("migrate only applies to the sql backend, not %q", cfg.Storage.Backend)
			}

			dialect, err := store.DialectFor(cfg.Storage.Driver)
			if err != nil {
				return err
			}
			db, err := store.Connect(dialect, cfg.Storage.DSN)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := store.Migrate(cmd.Context(), db, dialect); err != nil {
				return err
			}
			log.Info("schema ready", slog.String("driver", cfg.Storage.Driver))
			return nil
		},
	}
}

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password <password>",
		Short: "Print the bcrypt hash to use as auth.operator_password_hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := auth.HashPassword(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return err
		},
	}
}
