package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/yahiasaidi031/PFE/internal/store"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the shared database schema",
		Long: `Apply or roll back the embedded goose migrations.

Examples:
  crowdfundctl migrate up
  crowdfundctl migrate status
  crowdfundctl migrate down`,
	}

	cmd.AddCommand(
		migrateStep("up", "Apply all pending migrations", (*store.Migrator).Up),
		migrateStep("down", "Roll back the most recent migration", (*store.Migrator).Down),
		migrateStep("status", "Print applied and pending migrations", (*store.Migrator).Status),
	)
	return cmd
}

func migrateStep(use, short string, step func(*store.Migrator, context.Context) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required")
			}

			migrator, err := store.OpenMigrator(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer migrator.Close()

			if err := step(migrator, cmd.Context()); err != nil {
				return fmt.Errorf("migrate %s: %w", use, err)
			}
			return nil
		},
	}
}
