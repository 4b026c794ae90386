package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	var tenant string
	var format string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show a tenant's index statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.store.Stats(cmd.Context(), tenant)
			if err != nil {
				return fmt.Errorf("failed to load stats: %w", err)
			}

			out := cmd.OutOrStdout()
			if format == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(stats)
			}

			fmt.Fprintf(out, "Tenant:    %s\n", tenant)
			fmt.Fprintf(out, "Documents: %d\n", stats.DocumentCount)
			fmt.Fprintf(out, "Chunks:    %d\n", stats.ChunkCount)
			fmt.Fprintf(out, "Vectors:   %d\n", stats.VectorCount)
			return nil
		},
	}

	cmd.Flags().StringVarP(&tenant, "tenant", "t", "", "Tenant ID (required)")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")
	_ = cmd.MarkFlagRequired("tenant")

	return cmd
}
