package search

import (
	"context"
	"fmt"
	"sync"

	"github.com/mosaicdocs/mosaic/internal/provider"
	"github.com/mosaicdocs/mosaic/internal/store"
)

// fakeStore is an in-memory DocumentStore with canned lexical and
// vector results, keyed by tenant.
type fakeStore struct {
	mu sync.Mutex

	lexicalTotal   int
	lexicalHits    []*store.LexicalHit
	lexicalCalls   int
	lexicalLimits  []int
	lexicalOffsets []int

	nearest      []*store.ChunkMatch
	nearestCalls int

	adjacent    map[string][]*store.Chunk // key: documentID
	adjacentErr error

	titles    map[string]string
	titlesErr error

	details map[string]*store.Document
}

var _ store.DocumentStore = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		adjacent: make(map[string][]*store.Chunk),
		titles:   make(map[string]string),
		details:  make(map[string]*store.Document),
	}
}

func (f *fakeStore) LexicalSearch(ctx context.Context, tenantID, text string, limit, offset int) (int, []*store.LexicalHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lexicalCalls++
	f.lexicalLimits = append(f.lexicalLimits, limit)
	f.lexicalOffsets = append(f.lexicalOffsets, offset)

	start := min(offset, len(f.lexicalHits))
	end := min(start+limit, len(f.lexicalHits))
	return f.lexicalTotal, f.lexicalHits[start:end], nil
}

func (f *fakeStore) FindNearestChunks(ctx context.Context, tenantID string, vector []float32, k int) ([]*store.ChunkMatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nearestCalls++
	if k < len(f.nearest) {
		return f.nearest[:k], nil
	}
	return f.nearest, nil
}

func (f *fakeStore) GetAdjacentChunks(ctx context.Context, tenantID, documentID string, idx, window int) ([]*store.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.adjacentErr != nil {
		return nil, f.adjacentErr
	}
	return f.adjacent[documentID], nil
}

func (f *fakeStore) GetDocumentTitlesByIDs(ctx context.Context, tenantID string, ids []string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.titlesErr != nil {
		return nil, f.titlesErr
	}
	out := make(map[string]string)
	for _, id := range ids {
		if title, ok := f.titles[id]; ok {
			out[id] = title
		}
	}
	return out, nil
}

func (f *fakeStore) GetDocumentDetailsByIDs(ctx context.Context, tenantID string, ids []string) (map[string]*store.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]*store.Document)
	for _, id := range ids {
		if doc, ok := f.details[id]; ok {
			out[id] = doc
		}
	}
	return out, nil
}

func (f *fakeStore) SaveDocument(ctx context.Context, doc *store.Document) error { return nil }

func (f *fakeStore) SaveChunks(ctx context.Context, chunks []*store.Chunk, embeddings [][]float32) error {
	return nil
}

func (f *fakeStore) DeleteDocument(ctx context.Context, tenantID, documentID string) error {
	return nil
}

func (f *fakeStore) Stats(ctx context.Context, tenantID string) (*store.TenantStats, error) {
	return &store.TenantStats{}, nil
}

func (f *fakeStore) Close() error { return nil }

// fakeProvider returns canned rerank scores and fails on demand.
type fakeProvider struct {
	mu sync.Mutex

	embedErr    error
	embedCalls  int
	rerankErr   error
	rerankCalls int
	scores      []float64
}

var _ provider.Provider = (*fakeProvider)(nil)

func (f *fakeProvider) Embed(ctx context.Context, texts []string, inputType provider.InputType) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embedCalls++
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	vecs := make([][]float32, len(texts))
	for i := range texts {
		vecs[i] = []float32{1, 0, 0}
	}
	return vecs, nil
}

func (f *fakeProvider) Rerank(ctx context.Context, query string, texts []string) ([]provider.RerankResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rerankCalls++
	if f.rerankErr != nil {
		return nil, f.rerankErr
	}
	results := make([]provider.RerankResult, len(texts))
	for i := range texts {
		score := 0.5
		if i < len(f.scores) {
			score = f.scores[i]
		}
		results[i] = provider.RerankResult{Index: i, Score: score}
	}
	return results, nil
}

func (f *fakeProvider) Dimensions() int { return 3 }

func (f *fakeProvider) ModelName() string { return "fake" }

func (f *fakeProvider) Available(ctx context.Context) bool { return true }

func (f *fakeProvider) Close() error { return nil }

// captureAuditor records audit entries for assertions.
type captureAuditor struct {
	mu      sync.Mutex
	entries []*AuditEntry
}

func (c *captureAuditor) LogSearch(ctx context.Context, entry *AuditEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry)
}

func (c *captureAuditor) last() *AuditEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) == 0 {
		return nil
	}
	return c.entries[len(c.entries)-1]
}

func chunkMatch(docID string, idx int, content string) *store.ChunkMatch {
	return &store.ChunkMatch{
		Chunk:      &store.Chunk{DocumentID: docID, TenantID: "acme", Idx: idx, Content: content},
		Distance:   0.1,
		Similarity: 0.95,
	}
}

func lexHits(n int) []*store.LexicalHit {
	hits := make([]*store.LexicalHit, n)
	for i := range hits {
		hits[i] = &store.LexicalHit{
			DocumentID: fmt.Sprintf("doc-%d", i),
			Title:      fmt.Sprintf("Title %d", i),
			Snippet:    fmt.Sprintf("snippet %d", i),
			Score:      float64(n - i),
		}
	}
	return hits
}
