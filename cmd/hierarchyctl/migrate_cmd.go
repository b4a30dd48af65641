package main

import (
	"context"
	"fmt"

	"catalog-hierarchy/database"

	"github.com/spf13/cobra"
)

func newMigrateCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the categories table and indexes in PostgreSQL",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if cfg.Hierarchy.Store != "postgres" {
				return fmt.Errorf("migrate requires HIERARCHY_STORE=postgres, got %q", cfg.Hierarchy.Store)
			}
			cfg.Hierarchy.AutoMigrate = false

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			container, err := openContainer(ctx, cfg)
			if err != nil {
				return err
			}
			defer container.Close()

			store, ok := container.Store.(*database.PostgresTreeStore)
			if !ok {
				return fmt.Errorf("unexpected store type %T", container.Store)
			}
			if err := store.EnsureSchema(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			return nil
		},
	}
}
