// Package search implements the hybrid retrieval engine: lexical
// full-text search, semantic vector search with reranking, and
// Reciprocal Rank Fusion of the two ranked lists.
package search

import (
	"time"

	"github.com/mosaicdocs/mosaic/internal/store"
)

// Defaults for the fusion pipeline.
const (
	// DefaultRRFConstant is the standard RRF smoothing parameter.
	// k=60 is empirically validated across domains.
	DefaultRRFConstant = 60

	// DefaultRerankThreshold filters semantic candidates before fusion.
	DefaultRerankThreshold = 0.35

	// DefaultTopScoreCutoff gates semantic-only responses: with no
	// lexical hits, the best semantic score must clear this bar.
	DefaultTopScoreCutoff = 0.55

	// DefaultMaxWindow bounds pagination window expansion and semantic
	// candidate counts.
	DefaultMaxWindow = 50

	// DefaultSnippetLength bounds display snippets, in characters.
	DefaultSnippetLength = 220

	// DefaultMinTokenLength is the shortest query token that counts as
	// meaningful. Shorter tokens are treated as noise.
	DefaultMinTokenLength = 4

	DefaultLimit = 10
	MaxLimit     = 100
)

// Config tunes the fusion pipeline. Zero values fall back to the
// package defaults.
type Config struct {
	RRFConstant     int
	RerankThreshold float64
	TopScoreCutoff  float64
	MaxWindow       int
	SnippetLength   int
	MinTokenLength  int
	DefaultLimit    int
	MaxLimit        int
	Timeout         time.Duration
}

func (c Config) withDefaults() Config {
	if c.RRFConstant <= 0 {
		c.RRFConstant = DefaultRRFConstant
	}
	if c.RerankThreshold <= 0 {
		c.RerankThreshold = DefaultRerankThreshold
	}
	if c.TopScoreCutoff <= 0 {
		c.TopScoreCutoff = DefaultTopScoreCutoff
	}
	if c.MaxWindow <= 0 {
		c.MaxWindow = DefaultMaxWindow
	}
	if c.SnippetLength <= 0 {
		c.SnippetLength = DefaultSnippetLength
	}
	if c.MinTokenLength <= 0 {
		c.MinTokenLength = DefaultMinTokenLength
	}
	if c.DefaultLimit <= 0 {
		c.DefaultLimit = DefaultLimit
	}
	if c.MaxLimit <= 0 {
		c.MaxLimit = MaxLimit
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	return c
}

// SearchQuery is one search request. TenantID scopes every lookup.
// SemanticK, SemanticRecall and RRFK are optional overrides; zero means
// derive from the page window and config.
type SearchQuery struct {
	TenantID       string
	UserID         string
	Text           string
	Limit          int
	Offset         int
	SemanticK      int
	SemanticRecall int
	RRFK           int
}

// LexicalItem is one lexical hit with its highlighted snippet.
type LexicalItem struct {
	DocumentID string
	Title      string
	Snippet    string
	URL        string
	Score      float64
}

// LexicalPage is a page of lexical results. Total is the full match
// count regardless of the page window.
type LexicalPage struct {
	Total    int
	Items    []*LexicalItem
	Page     int
	PageSize int
}

// RerankedChunk is a semantic candidate after reranking and context
// stitching. Produced transiently per query, never persisted.
type RerankedChunk struct {
	DocumentID  string
	Title       string
	Idx         int
	Content     string
	Similarity  float32
	RerankScore float64
}

// Result is one fused hit. Score is an RRF score: only meaningful for
// ordering within a single response.
type Result struct {
	DocumentID string
	Title      string
	Snippet    string
	URL        string
	Score      float64
}

// ResultPage is the hybrid search response. NoStrongMatches signals
// that only weak semantic-only candidates existed and were suppressed.
type ResultPage struct {
	Total           int
	Items           []*Result
	Page            int
	PageSize        int
	NoStrongMatches bool
}

func lexicalItemsFromHits(hits []*store.LexicalHit) []*LexicalItem {
	items := make([]*LexicalItem, len(hits))
	for i, h := range hits {
		items[i] = &LexicalItem{
			DocumentID: h.DocumentID,
			Title:      h.Title,
			Snippet:    h.Snippet,
			URL:        h.URL,
			Score:      h.Score,
		}
	}
	return items
}

func pageNumber(offset, limit int) int {
	if limit <= 0 {
		return 1
	}
	return offset/limit + 1
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
