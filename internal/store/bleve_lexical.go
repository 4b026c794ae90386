package store

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/highlight/highlighter/html"
)

// bleveTitleBoost ranks title matches above body matches, mirroring the
// FTS5 backend's column weighting.
const bleveTitleBoost = 2.0

// BleveLexicalIndex is the alternative lexical backend. Tenant scoping
// uses a keyword-analyzed tenant_id field combined with the text query
// in a conjunction so no query can cross tenants.
type BleveLexicalIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

var _ LexicalIndex = (*BleveLexicalIndex)(nil)

type bleveDocument struct {
	TenantID string `json:"tenant_id"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	URL      string `json:"url"`
}

// NewBleveLexicalIndex opens (or creates) a Bleve index at path. An
// empty path creates an in-memory index for testing.
func NewBleveLexicalIndex(path string) (*BleveLexicalIndex, error) {
	indexMapping := createLexicalMapping()

	var idx bleve.Index
	var err error
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create/open index: %w", err)
	}

	return &BleveLexicalIndex{index: idx, path: path}, nil
}

func createLexicalMapping() *mapping.IndexMappingImpl {
	indexMapping := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()

	// tenant_id must match exactly, never tokenized
	tenantField := bleve.NewTextFieldMapping()
	tenantField.Analyzer = keyword.Name
	tenantField.Store = false
	docMapping.AddFieldMappingsAt("tenant_id", tenantField)

	titleField := bleve.NewTextFieldMapping()
	titleField.Store = true
	docMapping.AddFieldMappingsAt("title", titleField)

	bodyField := bleve.NewTextFieldMapping()
	bodyField.Store = true
	docMapping.AddFieldMappingsAt("body", bodyField)

	urlField := bleve.NewTextFieldMapping()
	urlField.Analyzer = keyword.Name
	urlField.Store = true
	urlField.Index = false
	docMapping.AddFieldMappingsAt("url", urlField)

	indexMapping.DefaultMapping = docMapping
	return indexMapping
}

// Index adds or replaces a document in the index.
func (b *BleveLexicalIndex) Index(ctx context.Context, doc *Document) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("index is closed")
	}

	batch := b.index.NewBatch()
	if err := batch.Index(doc.ID, bleveDocument{
		TenantID: doc.TenantID,
		Title:    doc.Title,
		Body:     doc.Body,
		URL:      doc.URL,
	}); err != nil {
		return fmt.Errorf("failed to index document %s: %w", doc.ID, err)
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}
	return nil
}

// Search returns tenant-scoped matches ranked by score, with the total
// match count independent of the limit/offset window.
func (b *BleveLexicalIndex) Search(ctx context.Context, tenantID, text string, limit, offset int) (int, []*LexicalHit, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0, nil, fmt.Errorf("index is closed")
	}
	if strings.TrimSpace(text) == "" {
		return 0, []*LexicalHit{}, nil
	}

	tenantQuery := bleve.NewTermQuery(tenantID)
	tenantQuery.SetField("tenant_id")

	titleQuery := bleve.NewMatchQuery(text)
	titleQuery.SetField("title")
	titleQuery.SetBoost(bleveTitleBoost)

	bodyQuery := bleve.NewMatchQuery(text)
	bodyQuery.SetField("body")

	textQuery := bleve.NewDisjunctionQuery(titleQuery, bodyQuery)
	query := bleve.NewConjunctionQuery(tenantQuery, textQuery)

	req := bleve.NewSearchRequestOptions(query, limit, offset, false)
	req.Fields = []string{"title", "url"}
	req.Highlight = bleve.NewHighlightWithStyle(html.Name)
	req.Highlight.AddField("body")

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return 0, nil, fmt.Errorf("search failed: %w", err)
	}

	hits := make([]*LexicalHit, 0, len(result.Hits))
	for _, hit := range result.Hits {
		h := &LexicalHit{
			DocumentID: hit.ID,
			Score:      hit.Score,
		}
		if title, ok := hit.Fields["title"].(string); ok {
			h.Title = title
		}
		if url, ok := hit.Fields["url"].(string); ok {
			h.URL = url
		}
		if fragments, ok := hit.Fragments["body"]; ok && len(fragments) > 0 {
			h.Snippet = fragments[0]
		}
		hits = append(hits, h)
	}

	return int(result.Total), hits, nil
}

// Delete removes a document from the index.
func (b *BleveLexicalIndex) Delete(ctx context.Context, tenantID, documentID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("index is closed")
	}
	if err := b.index.Delete(documentID); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", documentID, err)
	}
	return nil
}

// Close closes the index. Idempotent.
func (b *BleveLexicalIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}
