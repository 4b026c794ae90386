package search

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/mosaicdocs/mosaic/internal/errors"
	"github.com/mosaicdocs/mosaic/internal/provider"
	"github.com/mosaicdocs/mosaic/internal/store"
)

// ErrSemanticUnavailable signals that the circuit breaker is open and
// no semantic call was attempted. Callers fall back to lexical-only;
// this is a predicate failure, not a provider error.
var ErrSemanticUnavailable = stderrors.New("semantic search unavailable")

// adjacentFetchConcurrency bounds parallel context-stitching lookups.
const adjacentFetchConcurrency = 4

// SemanticSearchEngine embeds a query, retrieves nearest chunks,
// reranks them, deduplicates by document, and stitches adjacent chunks
// into readable snippets. All provider calls go through the shared
// circuit breaker.
type SemanticSearchEngine struct {
	store    store.DocumentStore
	provider provider.Provider
	breaker  *errors.CircuitBreaker
	logger   *slog.Logger
	cfg      Config
}

// NewSemanticSearchEngine creates a semantic engine. The breaker is
// shared process-wide; inject the same instance everywhere the provider
// is guarded.
func NewSemanticSearchEngine(s store.DocumentStore, p provider.Provider, breaker *errors.CircuitBreaker, logger *slog.Logger, cfg Config) *SemanticSearchEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &SemanticSearchEngine{
		store:    s,
		provider: p,
		breaker:  breaker,
		logger:   logger,
		cfg:      cfg.withDefaults(),
	}
}

// Available reports whether semantic search may be attempted right now.
// Side-effect-free; delegates to the breaker.
func (s *SemanticSearchEngine) Available() bool {
	return s.breaker.CanExecute()
}

// Search returns up to k reranked chunks for the query, deduplicated to
// one per document and sorted by rerank score descending. An empty
// result is a valid outcome, not an error. Provider failures are
// recorded on the breaker and returned; they are never retried here
// since the breaker owns retry timing across calls.
func (s *SemanticSearchEngine) Search(ctx context.Context, tenantID, text string, k, recallK int) ([]*RerankedChunk, error) {
	if !s.breaker.CanExecute() {
		return nil, ErrSemanticUnavailable
	}
	if k <= 0 {
		k = s.cfg.DefaultLimit
	}
	effectiveRecall := max(recallK, k)

	// A half-open breaker shortens the deadline so one slow trial call
	// cannot stall the request.
	callCtx, cancel := context.WithTimeout(ctx, s.breaker.TrialTimeout(s.cfg.Timeout))
	defer cancel()

	vectors, err := s.provider.Embed(callCtx, []string{text}, provider.InputTypeQuery)
	if err != nil {
		s.breaker.RecordFailure()
		return nil, errors.ProviderError(errors.ErrCodeProviderEmbed, "query embedding failed", err)
	}

	candidates, err := s.store.FindNearestChunks(ctx, tenantID, vectors[0], effectiveRecall)
	if err != nil {
		// Store errors are not provider failures; leave the breaker alone.
		return nil, errors.StoreError("nearest chunk lookup failed", err)
	}
	if len(candidates) == 0 {
		s.breaker.RecordSuccess()
		return []*RerankedChunk{}, nil
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Chunk.Content
	}
	scores, err := s.provider.Rerank(callCtx, text, texts)
	if err != nil {
		s.breaker.RecordFailure()
		return nil, errors.ProviderError(errors.ErrCodeProviderRerank, "rerank failed", err)
	}
	s.breaker.RecordSuccess()

	reranked := make([]*RerankedChunk, 0, len(candidates))
	for _, r := range scores {
		if r.Index < 0 || r.Index >= len(candidates) {
			continue
		}
		c := candidates[r.Index]
		reranked = append(reranked, &RerankedChunk{
			DocumentID:  c.Chunk.DocumentID,
			Idx:         c.Chunk.Idx,
			Content:     c.Chunk.Content,
			Similarity:  c.Similarity,
			RerankScore: r.Score,
		})
	}

	sort.SliceStable(reranked, func(i, j int) bool {
		return reranked[i].RerankScore > reranked[j].RerankScore
	})
	if len(reranked) > k {
		reranked = reranked[:k]
	}

	s.stitchAll(ctx, tenantID, reranked)

	deduped := dedupeByDocument(reranked)
	if err := s.resolveTitles(ctx, tenantID, deduped); err != nil {
		// Missing metadata never fails the search.
		s.logger.Warn("title_lookup_failed",
			slog.String("tenant_id", tenantID),
			slog.String("error", err.Error()))
	}

	return deduped, nil
}

// stitchAll expands each chunk with its idx±1 neighbors. Fetches are
// independent per chunk and run concurrently; any failure silently
// keeps the original content.
func (s *SemanticSearchEngine) stitchAll(ctx context.Context, tenantID string, chunks []*RerankedChunk) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(adjacentFetchConcurrency)

	for _, chunk := range chunks {
		g.Go(func() error {
			adjacent, err := s.store.GetAdjacentChunks(gctx, tenantID, chunk.DocumentID, chunk.Idx, 1)
			if err != nil || len(adjacent) == 0 {
				return nil
			}
			var before, after string
			for _, adj := range adjacent {
				switch adj.Idx {
				case chunk.Idx - 1:
					before = adj.Content
				case chunk.Idx + 1:
					after = adj.Content
				}
			}
			chunk.Content = stitchContext(before, chunk.Content, after)
			return nil
		})
	}
	_ = g.Wait()
}

// dedupeByDocument keeps the highest-scoring chunk per document. Input
// is sorted by score descending, so the first occurrence wins.
func dedupeByDocument(chunks []*RerankedChunk) []*RerankedChunk {
	seen := make(map[string]struct{}, len(chunks))
	deduped := make([]*RerankedChunk, 0, len(chunks))
	for _, c := range chunks {
		if _, ok := seen[c.DocumentID]; ok {
			continue
		}
		seen[c.DocumentID] = struct{}{}
		deduped = append(deduped, c)
	}
	return deduped
}

func (s *SemanticSearchEngine) resolveTitles(ctx context.Context, tenantID string, chunks []*RerankedChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.DocumentID
	}
	titles, err := s.store.GetDocumentTitlesByIDs(ctx, tenantID, ids)
	if err != nil {
		titles = nil
	}
	for _, c := range chunks {
		if title, ok := titles[c.DocumentID]; ok && title != "" {
			c.Title = title
		} else {
			c.Title = "Untitled"
		}
	}
	return err
}
