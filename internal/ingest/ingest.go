// Package ingest is the write path: it splits document bodies into
// overlapping chunks, embeds them, and persists both through the store.
// The overlap is what lets search stitch adjacent chunks back into
// readable spans at query time.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mosaicdocs/mosaic/internal/provider"
	"github.com/mosaicdocs/mosaic/internal/store"
)

const (
	// DefaultChunkSize is the target chunk length in characters.
	DefaultChunkSize = 800

	// DefaultChunkOverlap is the span repeated between adjacent chunks.
	// Must exceed the stitcher's minimum overlap so seams are removable.
	DefaultChunkOverlap = 120

	// DefaultEmbedBatchSize bounds one provider embed call.
	DefaultEmbedBatchSize = 32
)

// Config tunes the ingestion pipeline.
type Config struct {
	ChunkSize      int
	ChunkOverlap   int
	EmbedBatchSize int
}

func (c Config) withDefaults() Config {
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.ChunkOverlap <= 0 || c.ChunkOverlap >= c.ChunkSize {
		c.ChunkOverlap = DefaultChunkOverlap
	}
	if c.EmbedBatchSize <= 0 {
		c.EmbedBatchSize = DefaultEmbedBatchSize
	}
	return c
}

// Indexer writes documents and their embedded chunks to the store.
type Indexer struct {
	store    store.DocumentStore
	provider provider.Provider
	logger   *slog.Logger
	cfg      Config
}

// NewIndexer creates an indexer over the store and provider.
func NewIndexer(s store.DocumentStore, p provider.Provider, logger *slog.Logger, cfg Config) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{store: s, provider: p, logger: logger, cfg: cfg.withDefaults()}
}

// IndexDocument saves the document, chunks its body, embeds the chunks
// in batches, and persists chunks with their vectors. Re-indexing an
// existing document replaces its previous chunks.
func (ix *Indexer) IndexDocument(ctx context.Context, doc *store.Document) error {
	if doc.TenantID == "" {
		return fmt.Errorf("document %s has no tenant", doc.ID)
	}

	if err := ix.store.SaveDocument(ctx, doc); err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}

	pieces := SplitText(doc.Body, ix.cfg.ChunkSize, ix.cfg.ChunkOverlap)
	if len(pieces) == 0 {
		return nil
	}

	chunks := make([]*store.Chunk, len(pieces))
	for i, content := range pieces {
		chunks[i] = &store.Chunk{
			DocumentID: doc.ID,
			TenantID:   doc.TenantID,
			Idx:        i,
			Content:    content,
		}
	}

	embeddings := make([][]float32, 0, len(pieces))
	for start := 0; start < len(pieces); start += ix.cfg.EmbedBatchSize {
		end := min(start+ix.cfg.EmbedBatchSize, len(pieces))
		batch, err := ix.provider.Embed(ctx, pieces[start:end], provider.InputTypeDocument)
		if err != nil {
			return fmt.Errorf("failed to embed chunks %d-%d: %w", start, end-1, err)
		}
		embeddings = append(embeddings, batch...)
	}

	if err := ix.store.SaveChunks(ctx, chunks, embeddings); err != nil {
		return fmt.Errorf("failed to save chunks: %w", err)
	}

	ix.logger.Info("document_indexed",
		slog.String("tenant_id", doc.TenantID),
		slog.String("document_id", doc.ID),
		slog.Int("chunks", len(chunks)))

	return nil
}

// DeleteDocument removes a document and its chunks.
func (ix *Indexer) DeleteDocument(ctx context.Context, tenantID, documentID string) error {
	return ix.store.DeleteDocument(ctx, tenantID, documentID)
}

// SplitText cuts text into chunks of roughly size characters with the
// given overlap between neighbors. Cuts land on whitespace where
// possible so words stay intact.
func SplitText(text string, size, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= size {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + size
		if end >= len(text) {
			chunks = append(chunks, strings.TrimSpace(text[start:]))
			break
		}

		// Prefer breaking at whitespace near the end of the window.
		cut := end
		if idx := strings.LastIndexByte(text[start:end], ' '); idx > size/2 {
			cut = start + idx
		}

		chunk := strings.TrimSpace(text[start:cut])
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		next := cut - overlap
		if next <= start {
			next = cut
		}
		start = next
	}

	return chunks
}
