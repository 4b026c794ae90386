// Package store is the persistence layer for the document workspace:
// documents and chunks in SQLite, full-text search via FTS5 (or Bleve),
// and per-tenant HNSW vector indexes over chunk embeddings.
//
// Every read is scoped by tenant ID. No operation in this package may
// return data belonging to another tenant.
package store

import (
	"context"
	"fmt"
	"time"
)

// Document is a workspace document owned by one tenant.
type Document struct {
	ID        string
	TenantID  string
	Title     string
	Body      string
	URL       string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Chunk is a bounded, overlapping segment of document text used as the
// unit of vector indexing. Idx is the 0-based sequence position within
// the document. Chunks are immutable once indexed.
type Chunk struct {
	DocumentID string
	TenantID   string
	Idx        int
	Content    string
}

// Key returns the chunk's vector-index key.
func (c *Chunk) Key() string {
	return fmt.Sprintf("%s:%d", c.DocumentID, c.Idx)
}

// ChunkMatch is a chunk returned from nearest-neighbor search with its
// query-time distance and similarity.
type ChunkMatch struct {
	Chunk      *Chunk
	Distance   float32 // Lower is more similar (0-2 for cosine)
	Similarity float32 // Normalized similarity (0-1)
}

// LexicalHit is a single full-text search hit.
type LexicalHit struct {
	DocumentID string
	Title      string
	Snippet    string // Highlighted excerpt around the best match
	URL        string
	Score      float64 // Backend relevance score, higher is better
}

// DocumentStore is the document/chunk store consumed by the retrieval
// engine. The lexical index weights title matches above body matches.
type DocumentStore interface {
	// LexicalSearch returns the total match count (irrespective of
	// pagination) and one page of ranked hits for the tenant.
	LexicalSearch(ctx context.Context, tenantID, text string, limit, offset int) (int, []*LexicalHit, error)

	// FindNearestChunks returns the k nearest chunks to the query vector
	// for the tenant, ordered by ascending distance.
	FindNearestChunks(ctx context.Context, tenantID string, vector []float32, k int) ([]*ChunkMatch, error)

	// GetAdjacentChunks returns the chunks at idx±window (excluding idx
	// itself) for the given document, ordered by idx ascending.
	GetAdjacentChunks(ctx context.Context, tenantID, documentID string, idx, window int) ([]*Chunk, error)

	// GetDocumentTitlesByIDs batch-fetches titles. Missing IDs are simply
	// absent from the result map.
	GetDocumentTitlesByIDs(ctx context.Context, tenantID string, ids []string) (map[string]string, error)

	// GetDocumentDetailsByIDs batch-fetches full documents for snippet
	// fallback and URL resolution.
	GetDocumentDetailsByIDs(ctx context.Context, tenantID string, ids []string) (map[string]*Document, error)

	// SaveDocument upserts a document and its lexical index entry.
	SaveDocument(ctx context.Context, doc *Document) error

	// SaveChunks persists chunks with their embeddings and adds them to
	// the tenant's vector index. len(chunks) must equal len(embeddings).
	SaveChunks(ctx context.Context, chunks []*Chunk, embeddings [][]float32) error

	// DeleteDocument removes a document, its chunks, and its index entries.
	DeleteDocument(ctx context.Context, tenantID, documentID string) error

	// Stats returns per-tenant index statistics.
	Stats(ctx context.Context, tenantID string) (*TenantStats, error)

	// Close releases all resources.
	Close() error
}

// TenantStats describes one tenant's slice of the store.
type TenantStats struct {
	DocumentCount int
	ChunkCount    int
	VectorCount   int
}

// LexicalIndex is a pluggable full-text backend. The SQLite store uses
// its own FTS5 table by default; Bleve is the alternative backend.
type LexicalIndex interface {
	// Index upserts one document.
	Index(ctx context.Context, doc *Document) error

	// Search returns the total match count and one page of hits.
	Search(ctx context.Context, tenantID, text string, limit, offset int) (int, []*LexicalHit, error)

	// Delete removes a document from the index.
	Delete(ctx context.Context, tenantID, documentID string) error

	// Close releases resources.
	Close() error
}

// ErrDimensionMismatch indicates a vector dimension mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
