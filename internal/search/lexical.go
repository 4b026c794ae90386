package search

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mosaicdocs/mosaic/internal/store"
)

// LexicalSearchEngine runs ranked full-text search against the document
// store. No side effects; deterministic given identical index state.
type LexicalSearchEngine struct {
	store  store.DocumentStore
	logger *slog.Logger
}

// NewLexicalSearchEngine creates a lexical engine over the store.
func NewLexicalSearchEngine(s store.DocumentStore, logger *slog.Logger) *LexicalSearchEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &LexicalSearchEngine{store: s, logger: logger}
}

// Search returns one page of lexical hits. Total counts all matches
// regardless of the limit/offset window.
func (l *LexicalSearchEngine) Search(ctx context.Context, tenantID, text string, limit, offset int) (*LexicalPage, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant id is required")
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if offset < 0 {
		offset = 0
	}

	total, hits, err := l.store.LexicalSearch(ctx, tenantID, text, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("lexical search failed: %w", err)
	}

	l.logger.Debug("lexical_search",
		slog.String("tenant_id", tenantID),
		slog.Int("total", total),
		slog.Int("returned", len(hits)))

	return &LexicalPage{
		Total:    total,
		Items:    lexicalItemsFromHits(hits),
		Page:     pageNumber(offset, limit),
		PageSize: limit,
	}, nil
}
