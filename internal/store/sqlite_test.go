package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore("", VectorConfig{Dimensions: 4})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func saveDoc(t *testing.T, s *SQLiteStore, tenantID, id, title, body string) {
	t.Helper()
	err := s.SaveDocument(context.Background(), &Document{
		ID:       id,
		TenantID: tenantID,
		Title:    title,
		Body:     body,
	})
	require.NoError(t, err)
}

func TestLexicalSearch_RanksTitleAboveBody(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Given two documents where only one has the term in its title
	saveDoc(t, s, "acme", "doc-1", "Kubernetes deployment guide", "General notes about containers.")
	saveDoc(t, s, "acme", "doc-2", "Operations handbook", "How we run kubernetes in production clusters.")

	// When searching for the term
	total, hits, err := s.LexicalSearch(ctx, "acme", "kubernetes", 10, 0)

	// Then the title match ranks first
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, hits, 2)
	assert.Equal(t, "doc-1", hits[0].DocumentID)
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestLexicalSearch_TenantIsolation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	saveDoc(t, s, "acme", "doc-1", "Billing runbook", "Invoices and billing workflows.")
	saveDoc(t, s, "globex", "doc-2", "Billing policy", "Billing approval rules.")

	total, hits, err := s.LexicalSearch(ctx, "acme", "billing", 10, 0)

	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, hits, 1)
	assert.Equal(t, "doc-1", hits[0].DocumentID)
}

func TestLexicalSearch_TotalIgnoresWindow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		saveDoc(t, s, "acme", fmt.Sprintf("doc-%d", i), fmt.Sprintf("Report %d", i), "quarterly revenue analysis")
	}

	// Total stays at the full match count across pages
	total, hits, err := s.LexicalSearch(ctx, "acme", "revenue", 3, 0)
	require.NoError(t, err)
	assert.Equal(t, 7, total)
	assert.Len(t, hits, 3)

	total, hits, err = s.LexicalSearch(ctx, "acme", "revenue", 3, 6)
	require.NoError(t, err)
	assert.Equal(t, 7, total)
	assert.Len(t, hits, 1)
}

func TestLexicalSearch_SnippetHighlightsMatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	saveDoc(t, s, "acme", "doc-1", "Onboarding", "New engineers should read the incident response playbook first.")

	_, hits, err := s.LexicalSearch(ctx, "acme", "incident", 10, 0)

	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Contains(t, hits[0].Snippet, "<mark>incident</mark>")
}

func TestLexicalSearch_UnparseableQueryReturnsEmpty(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	saveDoc(t, s, "acme", "doc-1", "Notes", "plain text body")

	// Punctuation-only input produces no tokens
	total, hits, err := s.LexicalSearch(ctx, "acme", `"""((()))`, 10, 0)

	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.Empty(t, hits)
}

func TestSaveDocument_UpdateReplacesIndexEntry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	saveDoc(t, s, "acme", "doc-1", "Old topic", "about postgres tuning")
	saveDoc(t, s, "acme", "doc-1", "New topic", "about redis caching")

	total, _, err := s.LexicalSearch(ctx, "acme", "postgres", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, total)

	total, hits, err := s.LexicalSearch(ctx, "acme", "redis", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, hits, 1)
	assert.Equal(t, "New topic", hits[0].Title)
}

func TestSaveChunks_FindNearest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	saveDoc(t, s, "acme", "doc-1", "Vectors", "body")
	chunks := []*Chunk{
		{DocumentID: "doc-1", TenantID: "acme", Idx: 0, Content: "first chunk"},
		{DocumentID: "doc-1", TenantID: "acme", Idx: 1, Content: "second chunk"},
	}
	embeddings := [][]float32{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
	}
	require.NoError(t, s.SaveChunks(ctx, chunks, embeddings))

	matches, err := s.FindNearestChunks(ctx, "acme", []float32{1, 0, 0, 0}, 2)

	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "first chunk", matches[0].Chunk.Content)
	assert.Equal(t, 0, matches[0].Chunk.Idx)
	assert.InDelta(t, 1.0, matches[0].Similarity, 0.01)
	assert.Less(t, matches[0].Distance, matches[1].Distance)
}

func TestFindNearestChunks_TenantIsolation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveChunks(ctx,
		[]*Chunk{{DocumentID: "doc-1", TenantID: "acme", Idx: 0, Content: "acme chunk"}},
		[][]float32{{1, 0, 0, 0}}))
	require.NoError(t, s.SaveChunks(ctx,
		[]*Chunk{{DocumentID: "doc-2", TenantID: "globex", Idx: 0, Content: "globex chunk"}},
		[][]float32{{1, 0, 0, 0}}))

	matches, err := s.FindNearestChunks(ctx, "acme", []float32{1, 0, 0, 0}, 10)

	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "acme chunk", matches[0].Chunk.Content)
}

func TestFindNearestChunks_DimensionMismatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveChunks(ctx,
		[]*Chunk{{DocumentID: "doc-1", TenantID: "acme", Idx: 0, Content: "chunk"}},
		[][]float32{{1, 0, 0, 0}}))

	_, err := s.FindNearestChunks(ctx, "acme", []float32{1, 0}, 10)

	require.Error(t, err)
	var dimErr ErrDimensionMismatch
	assert.ErrorAs(t, err, &dimErr)
}

func TestGetAdjacentChunks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var chunks []*Chunk
	var embeddings [][]float32
	for i := 0; i < 5; i++ {
		chunks = append(chunks, &Chunk{DocumentID: "doc-1", TenantID: "acme", Idx: i, Content: fmt.Sprintf("chunk %d", i)})
		embeddings = append(embeddings, []float32{float32(i), 1, 0, 0})
	}
	require.NoError(t, s.SaveChunks(ctx, chunks, embeddings))

	adjacent, err := s.GetAdjacentChunks(ctx, "acme", "doc-1", 2, 1)

	require.NoError(t, err)
	require.Len(t, adjacent, 2)
	assert.Equal(t, 1, adjacent[0].Idx)
	assert.Equal(t, 3, adjacent[1].Idx)
}

func TestGetAdjacentChunks_AtBoundary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveChunks(ctx,
		[]*Chunk{
			{DocumentID: "doc-1", TenantID: "acme", Idx: 0, Content: "first"},
			{DocumentID: "doc-1", TenantID: "acme", Idx: 1, Content: "second"},
		},
		[][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}}))

	adjacent, err := s.GetAdjacentChunks(ctx, "acme", "doc-1", 0, 1)

	require.NoError(t, err)
	require.Len(t, adjacent, 1)
	assert.Equal(t, 1, adjacent[0].Idx)
}

func TestGetDocumentTitlesByIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	saveDoc(t, s, "acme", "doc-1", "First", "body")
	saveDoc(t, s, "acme", "doc-2", "Second", "body")
	saveDoc(t, s, "globex", "doc-3", "Other tenant", "body")

	titles, err := s.GetDocumentTitlesByIDs(ctx, "acme", []string{"doc-1", "doc-2", "doc-3", "missing"})

	require.NoError(t, err)
	assert.Equal(t, map[string]string{"doc-1": "First", "doc-2": "Second"}, titles)
}

func TestDeleteDocument_RemovesEverything(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	saveDoc(t, s, "acme", "doc-1", "Doomed", "searchable body text")
	require.NoError(t, s.SaveChunks(ctx,
		[]*Chunk{{DocumentID: "doc-1", TenantID: "acme", Idx: 0, Content: "chunk"}},
		[][]float32{{1, 0, 0, 0}}))

	require.NoError(t, s.DeleteDocument(ctx, "acme", "doc-1"))

	total, _, err := s.LexicalSearch(ctx, "acme", "searchable", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, total)

	matches, err := s.FindNearestChunks(ctx, "acme", []float32{1, 0, 0, 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, matches)

	stats, err := s.Stats(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.DocumentCount)
	assert.Equal(t, 0, stats.ChunkCount)
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	saveDoc(t, s, "acme", "doc-1", "One", "body")
	require.NoError(t, s.SaveChunks(ctx,
		[]*Chunk{
			{DocumentID: "doc-1", TenantID: "acme", Idx: 0, Content: "a"},
			{DocumentID: "doc-1", TenantID: "acme", Idx: 1, Content: "b"},
		},
		[][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}}))

	stats, err := s.Stats(ctx, "acme")

	require.NoError(t, err)
	assert.Equal(t, 1, stats.DocumentCount)
	assert.Equal(t, 2, stats.ChunkCount)
	assert.Equal(t, 2, stats.VectorCount)
}

func TestStore_ReopenRebuildsVectors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mosaic.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(path, VectorConfig{Dimensions: 4})
	require.NoError(t, err)
	require.NoError(t, s.SaveChunks(ctx,
		[]*Chunk{{DocumentID: "doc-1", TenantID: "acme", Idx: 0, Content: "persisted"}},
		[][]float32{{1, 0, 0, 0}}))
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStore(path, VectorConfig{Dimensions: 4})
	require.NoError(t, err)
	defer reopened.Close()

	matches, err := reopened.FindNearestChunks(ctx, "acme", []float32{1, 0, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "persisted", matches[0].Chunk.Content)
}

func TestStore_CloseIsIdempotent(t *testing.T) {
	s, err := NewSQLiteStore("", VectorConfig{Dimensions: 4})
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, _, err = s.LexicalSearch(context.Background(), "acme", "anything", 10, 0)
	assert.Error(t, err)
}

func TestBuildFTSQuery(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"single term", "kubernetes", `"kubernetes"`},
		{"multiple terms", "search engine", `"search" OR "engine"`},
		{"strips punctuation", `it's "quoted"`, `"it" OR "s" OR "quoted"`},
		{"empty", "   ", ""},
		{"punctuation only", `!@#$%`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, buildFTSQuery(tt.input))
		})
	}
}
