package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRecentCmd() *cobra.Command {
	var tenant string
	var limit int

	cmd := &cobra.Command{
		Use:   "recent",
		Short: "Show a tenant's recent searches",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if a.audit == nil {
				return fmt.Errorf("audit log is not available for this storage backend")
			}

			recent, err := a.audit.RecentSearches(cmd.Context(), tenant, limit)
			if err != nil {
				return fmt.Errorf("failed to load recent searches: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(recent) == 0 {
				fmt.Fprintln(out, "No searches recorded.")
				return nil
			}

			for _, s := range recent {
				fmt.Fprintf(out, "%s  %-8s %3d results  %6s  %q\n",
					s.CreatedAt.Format("2006-01-02 15:04:05"),
					s.SearchType, s.ResultCount, s.Duration, s.Query)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&tenant, "tenant", "t", "", "Tenant ID (required)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of entries to show")
	_ = cmd.MarkFlagRequired("tenant")

	return cmd
}
