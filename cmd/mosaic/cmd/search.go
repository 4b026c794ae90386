package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mosaicdocs/mosaic/internal/search"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	tenant string
	user   string
	limit  int
	offset int
	format string // "text", "json"
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search a tenant's documents",
		Long: `Search a tenant's documents with hybrid retrieval.

Combines full-text (exact keyword) and semantic (embedding) search
with Reciprocal Rank Fusion. Falls back to full-text only when the
embedding provider is unavailable.

Examples:
  mosaic search "quarterly revenue" --tenant acme
  mosaic search "incident response playbook" --tenant acme --limit 5
  mosaic search "database tuning" --tenant acme --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.tenant, "tenant", "t", "", "Tenant ID (required)")
	cmd.Flags().StringVarP(&opts.user, "user", "u", "", "User ID for audit logging")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().IntVar(&opts.offset, "offset", 0, "Result offset for pagination")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	_ = cmd.MarkFlagRequired("tenant")

	return cmd
}

func runSearch(cmd *cobra.Command, query string, opts searchOptions) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	page, err := a.engine.HybridSearch(cmd.Context(), search.SearchQuery{
		TenantID: opts.tenant,
		UserID:   opts.user,
		Text:     query,
		Limit:    opts.limit,
		Offset:   opts.offset,
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	out := cmd.OutOrStdout()

	if opts.format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(page)
	}

	if len(page.Items) == 0 {
		if page.NoStrongMatches {
			fmt.Fprintln(out, "No strong matches found.")
		} else {
			fmt.Fprintln(out, "No results found.")
		}
		return nil
	}

	fmt.Fprintf(out, "%d results (page %d)\n\n", page.Total, page.Page)
	for i, item := range page.Items {
		fmt.Fprintf(out, "%d. %s\n", (page.Page-1)*page.PageSize+i+1, item.Title)
		if item.URL != "" {
			fmt.Fprintf(out, "   %s\n", item.URL)
		}
		if item.Snippet != "" {
			fmt.Fprintf(out, "   %s\n", stripMarkup(item.Snippet))
		}
		fmt.Fprintln(out)
	}
	return nil
}

// stripMarkup removes highlight tags for terminal display.
func stripMarkup(s string) string {
	replacer := strings.NewReplacer("<mark>", "", "</mark>", "", "<b>", "", "</b>", "")
	return replacer.Replace(s)
}
