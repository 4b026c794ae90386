package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mosaicdocs/mosaic/internal/store"
)

func newIndexCmd() *cobra.Command {
	var tenant string
	var id string
	var title string
	var url string

	cmd := &cobra.Command{
		Use:   "index <file|->",
		Short: "Index a document for a tenant",
		Long: `Index a document: store it, split it into overlapping chunks,
embed the chunks, and add them to the tenant's search indexes.

Reads the document body from the given file, or from stdin when the
argument is "-". The file may also be a JSON object with "id", "title",
"body" and "url" fields.

Examples:
  mosaic index notes.md --tenant acme --title "Meeting notes"
  cat handbook.txt | mosaic index - --tenant acme --id handbook
  mosaic index doc.json --tenant acme`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd, args[0], tenant, id, title, url)
		},
	}

	cmd.Flags().StringVarP(&tenant, "tenant", "t", "", "Tenant ID (required)")
	cmd.Flags().StringVar(&id, "id", "", "Document ID (default: derived from file name)")
	cmd.Flags().StringVar(&title, "title", "", "Document title (default: derived from file name)")
	cmd.Flags().StringVar(&url, "url", "", "Document URL")
	_ = cmd.MarkFlagRequired("tenant")

	return cmd
}

func runIndex(cmd *cobra.Command, path, tenant, id, title, url string) error {
	var body []byte
	var err error
	if path == "-" {
		body, err = io.ReadAll(cmd.InOrStdin())
	} else {
		body, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("failed to read document: %w", err)
	}

	doc := &store.Document{
		ID:       id,
		TenantID: tenant,
		Title:    title,
		Body:     string(body),
		URL:      url,
	}

	// JSON documents carry their own metadata.
	if strings.HasSuffix(path, ".json") {
		var payload struct {
			ID    string `json:"id"`
			Title string `json:"title"`
			Body  string `json:"body"`
			URL   string `json:"url"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return fmt.Errorf("failed to parse JSON document: %w", err)
		}
		if doc.ID == "" {
			doc.ID = payload.ID
		}
		if doc.Title == "" {
			doc.Title = payload.Title
		}
		if doc.URL == "" {
			doc.URL = payload.URL
		}
		doc.Body = payload.Body
	}

	if doc.ID == "" {
		if path == "-" {
			return fmt.Errorf("--id is required when reading from stdin")
		}
		doc.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if doc.Title == "" {
		doc.Title = doc.ID
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.indexer.IndexDocument(cmd.Context(), doc); err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Indexed %s for tenant %s\n", doc.ID, tenant)
	return nil
}
