package main

import (
	"fmt"
	"os"

	"docbot/services/docbot/internal/config"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "docbot",
		Short:         "Multi-tenant PDF question answering service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", config.ConfigPath, "path to config.yaml")
	load := func() (config.FileConfig, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return cfg, fmt.Errorf("failed to load config: %w", err)
		}
		return cfg, nil
	}
	root.AddCommand(newServeCmd(load), newMigrateCmd(load), newCollectionsCmd(load))
	return root
}
