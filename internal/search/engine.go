package search

import (
	"context"
	stderrors "errors"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/mosaicdocs/mosaic/internal/errors"
	"github.com/mosaicdocs/mosaic/internal/store"
)

// AuditEntry records one search for analytics.
type AuditEntry struct {
	TenantID    string
	UserID      string
	Query       string
	SearchType  string
	ResultCount int
	Duration    time.Duration
	Status      string
}

// Audit entry statuses.
const (
	AuditStatusOK       = "ok"
	AuditStatusDegraded = "degraded"
	AuditStatusNoise    = "noise"
)

// Auditor persists search audit entries. Implementations are
// fire-and-forget: they swallow their own failures so audit problems
// never reach the search path.
type Auditor interface {
	LogSearch(ctx context.Context, entry *AuditEntry)
}

// Engine orchestrates lexical and semantic search and fuses the two
// ranked lists into one page of results.
type Engine struct {
	lexical  *LexicalSearchEngine
	semantic *SemanticSearchEngine
	store    store.DocumentStore
	audit    Auditor
	logger   *slog.Logger
	cfg      Config
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithAuditor attaches a best-effort audit sink.
func WithAuditor(a Auditor) EngineOption {
	return func(e *Engine) {
		e.audit = a
	}
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// NewEngine creates the hybrid search engine.
func NewEngine(lexical *LexicalSearchEngine, semantic *SemanticSearchEngine, s store.DocumentStore, cfg Config, opts ...EngineOption) *Engine {
	e := &Engine{
		lexical:  lexical,
		semantic: semantic,
		store:    s,
		logger:   slog.Default(),
		cfg:      cfg.withDefaults(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// HybridSearch runs lexical search, then semantic search when the
// breaker allows it, fuses both ranked lists with RRF, and returns the
// requested page. Semantic failure or unavailability degrades to the
// lexical-only response; it never fails the request.
func (e *Engine) HybridSearch(ctx context.Context, q SearchQuery) (*ResultPage, error) {
	if q.TenantID == "" {
		return nil, errors.New(errors.ErrCodeTenantRequired, "tenant id is required", nil)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = e.cfg.DefaultLimit
	}
	if limit > e.cfg.MaxLimit {
		limit = e.cfg.MaxLimit
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	start := time.Now()

	// Short or stopword-only queries are noise, not errors. Neither
	// sub-engine is called.
	if len(meaningfulTokens(q.Text, e.cfg.MinTokenLength)) == 0 {
		page := emptyPage(offset, limit)
		e.recordAudit(ctx, q, "hybrid", 0, time.Since(start), AuditStatusNoise)
		return page, nil
	}

	// Expand the lexical window when a later page still falls inside
	// the fusion window, so fusion ranks over enough candidates before
	// slicing the requested page.
	windowed := offset > 0 && offset+limit <= e.cfg.MaxWindow
	lexLimit, lexOffset := limit, offset
	if windowed {
		lexLimit = min(offset+limit, e.cfg.MaxWindow)
		lexOffset = 0
	}

	lexPage, err := e.lexical.Search(ctx, q.TenantID, q.Text, lexLimit, lexOffset)
	if err != nil {
		return nil, err
	}

	if !e.semantic.Available() {
		page := e.lexicalOnly(lexPage, windowed, offset, limit)
		e.recordAudit(ctx, q, "lexical", len(page.Items), time.Since(start), AuditStatusDegraded)
		return page, nil
	}

	desiredWindow := max(limit, offset+limit)
	semanticK := q.SemanticK
	if semanticK <= 0 {
		semanticK = desiredWindow
	}
	semanticK = clamp(semanticK, 1, e.cfg.MaxWindow)
	semanticRecall := q.SemanticRecall
	if semanticRecall <= 0 {
		semanticRecall = semanticK * 3
	}
	semanticRecall = clamp(max(semanticRecall, semanticK), semanticK, e.cfg.MaxWindow)

	chunks, err := e.semantic.Search(ctx, q.TenantID, q.Text, semanticK, semanticRecall)
	if err != nil {
		if !stderrors.Is(err, ErrSemanticUnavailable) {
			e.logger.Warn("semantic_search_failed",
				slog.String("tenant_id", q.TenantID),
				slog.String("error", err.Error()))
		}
		page := e.lexicalOnly(lexPage, windowed, offset, limit)
		e.recordAudit(ctx, q, "lexical", len(page.Items), time.Since(start), AuditStatusDegraded)
		return page, nil
	}
	if len(chunks) == 0 {
		page := e.lexicalOnly(lexPage, windowed, offset, limit)
		e.recordAudit(ctx, q, "hybrid", len(page.Items), time.Since(start), AuditStatusOK)
		return page, nil
	}

	filtered := filterSemantic(chunks, e.cfg.RerankThreshold)

	// With no lexical hits, weak semantic-only guesses are suppressed
	// rather than surfaced.
	if lexPage.Total == 0 {
		best := 0.0
		if len(filtered) > 0 {
			best = filtered[0].RerankScore
		}
		if best < e.cfg.TopScoreCutoff {
			page := emptyPage(offset, limit)
			page.NoStrongMatches = true
			e.recordAudit(ctx, q, "hybrid", 0, time.Since(start), AuditStatusOK)
			return page, nil
		}
	}

	rrfK := q.RRFK
	if rrfK <= 0 {
		rrfK = e.cfg.RRFConstant
	}
	fused := fuseRanked(lexPage.Items, filtered, rrfK)

	sliceStart := 0
	if windowed {
		sliceStart = offset
	}
	pageDocs := sliceFused(fused, sliceStart, limit)

	// An empty sliced page with lexical hits means the window ran past
	// the fused list; the lexical response is strictly better there.
	if len(pageDocs) == 0 && len(lexPage.Items) > 0 {
		page := e.lexicalOnly(lexPage, windowed, offset, limit)
		e.recordAudit(ctx, q, "hybrid", len(page.Items), time.Since(start), AuditStatusOK)
		return page, nil
	}

	items := e.resolveResults(ctx, q.TenantID, pageDocs)

	page := &ResultPage{
		Total:    max(lexPage.Total, len(fused)),
		Items:    items,
		Page:     pageNumber(offset, limit),
		PageSize: limit,
	}
	e.recordAudit(ctx, q, "hybrid", len(items), time.Since(start), AuditStatusOK)
	return page, nil
}

// Lexical exposes the lexical sub-engine for callers that want exact
// matching only.
func (e *Engine) Lexical() *LexicalSearchEngine {
	return e.lexical
}

// Semantic exposes the semantic sub-engine.
func (e *Engine) Semantic() *SemanticSearchEngine {
	return e.semantic
}

// lexicalOnly converts the lexical page into the hybrid response shape,
// slicing the requested window out of an expanded page when needed.
func (e *Engine) lexicalOnly(lexPage *LexicalPage, windowed bool, offset, limit int) *ResultPage {
	items := lexPage.Items
	if windowed {
		items = sliceLexical(items, offset, limit)
	}

	results := make([]*Result, len(items))
	for i, item := range items {
		results[i] = &Result{
			DocumentID: item.DocumentID,
			Title:      item.Title,
			Snippet:    truncateSnippet(item.Snippet, e.cfg.SnippetLength),
			URL:        item.URL,
			Score:      item.Score,
		}
	}

	return &ResultPage{
		Total:    lexPage.Total,
		Items:    results,
		Page:     pageNumber(offset, limit),
		PageSize: limit,
	}
}

// resolveResults builds display items for the fused page. Lexical
// metadata wins when present; otherwise the semantic snippet is used,
// or a freshly fetched document excerpt as a last resort.
func (e *Engine) resolveResults(ctx context.Context, tenantID string, docs []*fusedDoc) []*Result {
	var missing []string
	for _, d := range docs {
		if d.lexical == nil && (d.semantic == nil || d.semantic.Content == "") {
			missing = append(missing, d.documentID)
		}
	}
	var details map[string]*store.Document
	if len(missing) > 0 {
		var err error
		details, err = e.store.GetDocumentDetailsByIDs(ctx, tenantID, missing)
		if err != nil {
			e.logger.Warn("document_detail_lookup_failed",
				slog.String("tenant_id", tenantID),
				slog.String("error", err.Error()))
		}
	}

	results := make([]*Result, 0, len(docs))
	for _, d := range docs {
		r := &Result{DocumentID: d.documentID, Score: d.score}
		switch {
		case d.lexical != nil:
			r.Title = d.lexical.Title
			r.Snippet = d.lexical.Snippet
			r.URL = d.lexical.URL
		case d.semantic != nil:
			r.Title = d.semantic.Title
			r.Snippet = d.semantic.Content
		}
		if r.Snippet == "" {
			if doc, ok := details[d.documentID]; ok {
				if r.Title == "" || r.Title == "Untitled" {
					r.Title = doc.Title
				}
				r.Snippet = doc.Body
				r.URL = doc.URL
			}
		}
		if r.Title == "" {
			r.Title = "Untitled"
		}
		r.Snippet = truncateSnippet(r.Snippet, e.cfg.SnippetLength)
		results = append(results, r)
	}
	return results
}

func (e *Engine) recordAudit(ctx context.Context, q SearchQuery, searchType string, resultCount int, duration time.Duration, status string) {
	if e.audit == nil {
		return
	}
	e.audit.LogSearch(ctx, &AuditEntry{
		TenantID:    q.TenantID,
		UserID:      q.UserID,
		Query:       q.Text,
		SearchType:  searchType,
		ResultCount: resultCount,
		Duration:    duration,
		Status:      status,
	})
}

func emptyPage(offset, limit int) *ResultPage {
	return &ResultPage{
		Total:    0,
		Items:    []*Result{},
		Page:     pageNumber(offset, limit),
		PageSize: limit,
	}
}

func sliceLexical(items []*LexicalItem, offset, limit int) []*LexicalItem {
	if offset >= len(items) {
		return []*LexicalItem{}
	}
	end := min(offset+limit, len(items))
	return items[offset:end]
}

func sliceFused(docs []*fusedDoc, offset, limit int) []*fusedDoc {
	if offset >= len(docs) {
		return []*fusedDoc{}
	}
	end := min(offset+limit, len(docs))
	return docs[offset:end]
}

// meaningfulTokens lowercases the text, strips punctuation, splits on
// whitespace, and drops tokens shorter than minLen runes.
func meaningfulTokens(text string, minLen int) []string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, text)

	var tokens []string
	for _, t := range strings.Fields(cleaned) {
		if len([]rune(t)) >= minLen {
			tokens = append(tokens, t)
		}
	}
	return tokens
}
