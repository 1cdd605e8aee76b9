package main

import (
	"errors"
	"log/slog"

	"docbot/services/docbot/internal/config"
	"github.com/spf13/cobra"
)

func newMigrateCmd(load func() (config.FileConfig, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is required for migrate")
			}
			deps, err := openStorage(cfg, slog.Default())
			if err != nil {
				return err
			}
			defer deps.Close()
			if err := deps.migrate(); err != nil {
				return err
			}
			cmd.Println("Schema is up to date.")
			return nil
		},
	}
}
