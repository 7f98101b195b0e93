package main

import (
	"errors"
	"log/slog"

	"github.com/opsboard/opsboard/internal/config"
	"github.com/opsboard/opsboard/internal/kv"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:         "migrate",
	Short:       "Create or upgrade the PostgreSQL schema",
	Args:        cobra.NoArgs,
	Annotations: structuredLog,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required")
		}

		applied, err := kv.Migrate(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		if !applied {
			slog.Info("no changes to apply")
			return nil
		}
		slog.Info("migrations applied successfully")
		return nil
	},
}
