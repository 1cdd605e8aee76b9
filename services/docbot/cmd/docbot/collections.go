package main

import (
	"fmt"
	"log/slog"
	"text/tabwriter"

	"docbot/services/docbot/internal/config"
	"github.com/spf13/cobra"
)

func newCollectionsCmd(load func() (config.FileConfig, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "collections",
		Short: "Reload persisted vector collections and list them",
		Long: `Warms the configured embedding model, re-establishes every active
collection (migrating ones built by another embedder when configured to),
and prints all collections with their chunk counts.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			logger := slog.Default()
			deps, err := openStorage(cfg, logger)
			if err != nil {
				return err
			}
			defer deps.Close()
			emb := newEmbedder(cfg)
			vectors, err := newManager(cfg, deps.vectors, emb, logger)
			if err != nil {
				return err
			}
			if err := warmUp(emb, vectors, logger)(ctx); err != nil {
				return fmt.Errorf("reload collections: %w", err)
			}
			all, err := vectors.Collections(ctx)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TENANT\tSTATUS\tEMBEDDER\tCHUNKS\tNAME")
			for _, c := range all {
				count, err := deps.vectors.Count(ctx, c.Name)
				if err != nil {
					return fmt.Errorf("count %s: %w", c.Name, err)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", c.TenantKey, c.Status, c.EmbedderID, count, c.Name)
			}
			return tw.Flush()
		},
	}
}
