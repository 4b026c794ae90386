package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// fts5TitleWeight ranks title matches above body matches.
const fts5TitleWeight = 2.0

// fts5SnippetTokens bounds the highlighted excerpt length.
const fts5SnippetTokens = 24

// SQLiteStore implements DocumentStore on SQLite with WAL mode. Lexical
// search uses the built-in FTS5 table unless an alternative LexicalIndex
// (Bleve) is injected. Vector search uses per-tenant HNSW graphs rebuilt
// from persisted chunk embeddings on open.
type SQLiteStore struct {
	mu      sync.RWMutex
	db      *sql.DB
	path    string
	vectors *VectorIndex
	lexical LexicalIndex // nil means FTS5
	closed  bool
}

// Verify interface implementation at compile time
var _ DocumentStore = (*SQLiteStore)(nil)

// SQLiteOption configures a SQLiteStore.
type SQLiteOption func(*SQLiteStore)

// WithLexicalIndex replaces the default FTS5 lexical backend.
func WithLexicalIndex(idx LexicalIndex) SQLiteOption {
	return func(s *SQLiteStore) {
		s.lexical = idx
	}
}

// NewSQLiteStore opens (or creates) the store at path. An empty path
// creates an in-memory store for testing.
func NewSQLiteStore(path string, vectorCfg VectorConfig, opts ...SQLiteOption) (*SQLiteStore, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer to prevent lock contention
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// WAL mode must be set via PRAGMA for modernc.org/sqlite
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &SQLiteStore{
		db:      db,
		path:    path,
		vectors: NewVectorIndex(vectorCfg),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if err := s.rebuildVectors(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to rebuild vector index: %w", err)
	}

	return s, nil
}

// DB exposes the underlying handle for collaborators that share the
// database file (the audit logger).
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS documents (
		id         TEXT PRIMARY KEY,
		tenant_id  TEXT NOT NULL,
		title      TEXT NOT NULL,
		body       TEXT NOT NULL,
		url        TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_documents_tenant ON documents(tenant_id);

	CREATE TABLE IF NOT EXISTS chunks (
		document_id TEXT NOT NULL,
		tenant_id   TEXT NOT NULL,
		idx         INTEGER NOT NULL,
		content     TEXT NOT NULL,
		embedding   BLOB,
		PRIMARY KEY (document_id, idx)
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_tenant ON chunks(tenant_id);

	-- FTS5 virtual table for lexical search. doc_id and tenant_id are
	-- stored but not tokenized; title is weighted above body at query time.
	CREATE VIRTUAL TABLE IF NOT EXISTS fts_documents USING fts5(
		doc_id UNINDEXED,
		tenant_id UNINDEXED,
		title,
		body,
		tokenize='unicode61'
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`

	_, err := s.db.Exec(schema)
	return err
}

// rebuildVectors loads persisted chunk embeddings into the per-tenant
// HNSW graphs. The graphs are memory-only; SQLite is the source of truth.
func (s *SQLiteStore) rebuildVectors() error {
	rows, err := s.db.Query(`SELECT document_id, tenant_id, idx, embedding FROM chunks WHERE embedding IS NOT NULL`)
	if err != nil {
		return err
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var docID, tenantID string
		var idx int
		var blob []byte
		if err := rows.Scan(&docID, &tenantID, &idx, &blob); err != nil {
			return err
		}
		vec := decodeVector(blob)
		if len(vec) == 0 {
			continue
		}
		key := fmt.Sprintf("%s:%d", docID, idx)
		if err := s.vectors.Add(tenantID, []string{key}, [][]float32{vec}); err != nil {
			return err
		}
		count++
	}
	if count > 0 {
		slog.Debug("vector_index_rebuilt", slog.Int("vectors", count))
	}
	return rows.Err()
}

// SaveDocument upserts a document and its lexical index entry.
func (s *SQLiteStore) SaveDocument(ctx context.Context, doc *Document) error {
	if doc.TenantID == "" {
		return fmt.Errorf("document %s has no tenant", doc.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (id, tenant_id, title, body, url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			body = excluded.body,
			url = excluded.url,
			updated_at = excluded.updated_at
		`, doc.ID, doc.TenantID, doc.Title, doc.Body, doc.URL, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save document %s: %w", doc.ID, err)
	}

	// FTS5 virtual tables don't support upsert, so delete then insert.
	if _, err := tx.ExecContext(ctx, `DELETE FROM fts_documents WHERE doc_id = ?`, doc.ID); err != nil {
		return fmt.Errorf("failed to clear index entry for %s: %w", doc.ID, err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO fts_documents (doc_id, tenant_id, title, body) VALUES (?, ?, ?, ?)`,
		doc.ID, doc.TenantID, doc.Title, doc.Body)
	if err != nil {
		return fmt.Errorf("failed to index document %s: %w", doc.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	if s.lexical != nil {
		if err := s.lexical.Index(ctx, doc); err != nil {
			return fmt.Errorf("failed to index document %s in lexical backend: %w", doc.ID, err)
		}
	}

	return nil
}

// SaveChunks persists chunks with their embeddings and adds them to the
// tenant's vector index.
func (s *SQLiteStore) SaveChunks(ctx context.Context, chunks []*Chunk, embeddings [][]float32) error {
	if len(chunks) == 0 {
		return nil
	}
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("chunks and embeddings length mismatch: %d vs %d", len(chunks), len(embeddings))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (document_id, tenant_id, idx, content, embedding)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(document_id, idx) DO UPDATE SET
			content = excluded.content,
			embedding = excluded.embedding
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare chunk statement: %w", err)
	}
	defer stmt.Close()

	for i, c := range chunks {
		if c.TenantID == "" {
			return fmt.Errorf("chunk %s has no tenant", c.Key())
		}
		if _, err := stmt.ExecContext(ctx, c.DocumentID, c.TenantID, c.Idx, c.Content, encodeVector(embeddings[i])); err != nil {
			return fmt.Errorf("failed to save chunk %s: %w", c.Key(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	// Group by tenant for the vector index.
	byTenant := make(map[string]struct {
		keys []string
		vecs [][]float32
	})
	for i, c := range chunks {
		entry := byTenant[c.TenantID]
		entry.keys = append(entry.keys, c.Key())
		entry.vecs = append(entry.vecs, embeddings[i])
		byTenant[c.TenantID] = entry
	}
	for tenantID, entry := range byTenant {
		if err := s.vectors.Add(tenantID, entry.keys, entry.vecs); err != nil {
			return fmt.Errorf("failed to add vectors for tenant %s: %w", tenantID, err)
		}
	}

	return nil
}

// LexicalSearch runs ranked full-text search scoped to the tenant.
// Title matches are weighted above body matches; each hit carries a
// highlighted snippet. Total is the full match count regardless of the
// limit/offset window.
func (s *SQLiteStore) LexicalSearch(ctx context.Context, tenantID, text string, limit, offset int) (int, []*LexicalHit, error) {
	s.mu.RLock()
	lexical := s.lexical
	closed := s.closed
	s.mu.RUnlock()

	if closed {
		return 0, nil, fmt.Errorf("store is closed")
	}
	if lexical != nil {
		return lexical.Search(ctx, tenantID, text, limit, offset)
	}
	return s.fts5Search(ctx, tenantID, text, limit, offset)
}

func (s *SQLiteStore) fts5Search(ctx context.Context, tenantID, text string, limit, offset int) (int, []*LexicalHit, error) {
	match := buildFTSQuery(text)
	if match == "" {
		return 0, []*LexicalHit{}, nil
	}

	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM fts_documents WHERE tenant_id = ? AND fts_documents MATCH ?`,
		tenantID, match).Scan(&total)
	if err != nil {
		// FTS5 returns an error for unparseable match queries; treat as no results.
		if isFTSSyntaxError(err) {
			return 0, []*LexicalHit{}, nil
		}
		return 0, nil, fmt.Errorf("lexical count failed: %w", err)
	}

	// bm25() returns negative values where lower is better; weights are
	// per column in table order (doc_id, tenant_id, title, body).
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT f.doc_id,
		       bm25(fts_documents, 0.0, 0.0, %f, 1.0) AS rank,
		       snippet(fts_documents, 3, '<mark>', '</mark>', '…', %d) AS snip,
		       d.title, d.url
		FROM fts_documents f
		JOIN documents d ON d.id = f.doc_id
		WHERE f.tenant_id = ? AND fts_documents MATCH ?
		ORDER BY rank
		LIMIT ? OFFSET ?
	`, fts5TitleWeight, fts5SnippetTokens), tenantID, match, limit, offset)
	if err != nil {
		if isFTSSyntaxError(err) {
			return 0, []*LexicalHit{}, nil
		}
		return 0, nil, fmt.Errorf("lexical search failed: %w", err)
	}
	defer rows.Close()

	hits := make([]*LexicalHit, 0, limit)
	for rows.Next() {
		var h LexicalHit
		var rank float64
		if err := rows.Scan(&h.DocumentID, &rank, &h.Snippet, &h.Title, &h.URL); err != nil {
			return 0, nil, fmt.Errorf("failed to scan hit: %w", err)
		}
		// Negate: higher positive = better match.
		h.Score = -rank
		hits = append(hits, &h)
	}

	return total, hits, rows.Err()
}

// FindNearestChunks returns the k nearest chunks for the tenant by
// vector distance, ascending.
func (s *SQLiteStore) FindNearestChunks(ctx context.Context, tenantID string, vector []float32, k int) ([]*ChunkMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	hits, err := s.vectors.Search(tenantID, vector, k)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return []*ChunkMatch{}, nil
	}

	matches := make([]*ChunkMatch, 0, len(hits))
	for _, hit := range hits {
		docID, idx, ok := splitChunkKey(hit.key)
		if !ok {
			continue
		}
		chunk, err := s.getChunk(ctx, tenantID, docID, idx)
		if err != nil {
			return nil, err
		}
		if chunk == nil {
			continue // vector without a chunk row, skip
		}
		matches = append(matches, &ChunkMatch{
			Chunk:      chunk,
			Distance:   hit.distance,
			Similarity: hit.similarity,
		})
	}

	return matches, nil
}

func (s *SQLiteStore) getChunk(ctx context.Context, tenantID, docID string, idx int) (*Chunk, error) {
	var c Chunk
	err := s.db.QueryRowContext(ctx,
		`SELECT document_id, tenant_id, idx, content FROM chunks
		 WHERE document_id = ? AND idx = ? AND tenant_id = ?`,
		docID, idx, tenantID).Scan(&c.DocumentID, &c.TenantID, &c.Idx, &c.Content)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load chunk %s:%d: %w", docID, idx, err)
	}
	return &c, nil
}

// GetAdjacentChunks returns the chunks at idx±window for the document,
// excluding idx itself, ordered by idx ascending.
func (s *SQLiteStore) GetAdjacentChunks(ctx context.Context, tenantID, documentID string, idx, window int) ([]*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT document_id, tenant_id, idx, content FROM chunks
		 WHERE document_id = ? AND tenant_id = ? AND idx BETWEEN ? AND ? AND idx != ?
		 ORDER BY idx`,
		documentID, tenantID, idx-window, idx+window, idx)
	if err != nil {
		return nil, fmt.Errorf("failed to load adjacent chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.DocumentID, &c.TenantID, &c.Idx, &c.Content); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, &c)
	}

	return chunks, rows.Err()
}

// GetDocumentTitlesByIDs batch-fetches titles for the tenant.
func (s *SQLiteStore) GetDocumentTitlesByIDs(ctx context.Context, tenantID string, ids []string) (map[string]string, error) {
	titles := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return titles, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	query := fmt.Sprintf(`SELECT id, title FROM documents WHERE tenant_id = ? AND id IN (%s)`, placeholders(len(ids)))
	rows, err := s.db.QueryContext(ctx, query, idArgs(tenantID, ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to load titles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, title string
		if err := rows.Scan(&id, &title); err != nil {
			return nil, fmt.Errorf("failed to scan title: %w", err)
		}
		titles[id] = title
	}

	return titles, rows.Err()
}

// GetDocumentDetailsByIDs batch-fetches full documents for the tenant.
func (s *SQLiteStore) GetDocumentDetailsByIDs(ctx context.Context, tenantID string, ids []string) (map[string]*Document, error) {
	docs := make(map[string]*Document, len(ids))
	if len(ids) == 0 {
		return docs, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	query := fmt.Sprintf(`
		SELECT id, tenant_id, title, body, url, created_at, updated_at
		FROM documents WHERE tenant_id = ? AND id IN (%s)`, placeholders(len(ids)))
	rows, err := s.db.QueryContext(ctx, query, idArgs(tenantID, ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.TenantID, &d.Title, &d.Body, &d.URL, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs[d.ID] = &d
	}

	return docs, rows.Err()
}

// DeleteDocument removes a document, its chunks, and its index entries.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, tenantID, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	// Collect chunk keys for vector deletion before removing rows.
	rows, err := s.db.QueryContext(ctx,
		`SELECT idx FROM chunks WHERE document_id = ? AND tenant_id = ?`, documentID, tenantID)
	if err != nil {
		return fmt.Errorf("failed to list chunks: %w", err)
	}
	var keys []string
	for rows.Next() {
		var idx int
		if err := rows.Scan(&idx); err != nil {
			rows.Close()
			return err
		}
		keys = append(keys, fmt.Sprintf("%s:%d", documentID, idx))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM chunks WHERE document_id = ? AND tenant_id = ?`, documentID, tenantID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM fts_documents WHERE doc_id = ? AND tenant_id = ?`, documentID, tenantID); err != nil {
		return fmt.Errorf("failed to delete index entry: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM documents WHERE id = ? AND tenant_id = ?`, documentID, tenantID); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	s.vectors.Delete(tenantID, keys)

	if s.lexical != nil {
		if err := s.lexical.Delete(ctx, tenantID, documentID); err != nil {
			slog.Warn("lexical backend delete failed",
				slog.String("document_id", documentID),
				slog.String("error", err.Error()))
		}
	}

	return nil
}

// Stats returns per-tenant index statistics.
func (s *SQLiteStore) Stats(ctx context.Context, tenantID string) (*TenantStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	stats := &TenantStats{VectorCount: s.vectors.Count(tenantID)}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE tenant_id = ?`, tenantID).Scan(&stats.DocumentCount); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chunks WHERE tenant_id = ?`, tenantID).Scan(&stats.ChunkCount); err != nil {
		return nil, err
	}

	return stats, nil
}

// Close closes the store, checkpointing the WAL first.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil // Idempotent
	}
	s.closed = true

	if s.lexical != nil {
		_ = s.lexical.Close()
	}

	if s.db != nil {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		return s.db.Close()
	}
	return nil
}

// buildFTSQuery converts free text into a safe FTS5 match expression:
// each alphanumeric token is double-quoted and tokens are OR-ed so any
// matching term ranks the document.
func buildFTSQuery(text string) string {
	tokens := splitAlphanumeric(text)
	if len(tokens) == 0 {
		return ""
	}
	quoted := make([]string, len(tokens))
	for i, t := range tokens {
		quoted[i] = `"` + t + `"`
	}
	return strings.Join(quoted, " OR ")
}

// splitAlphanumeric extracts lowercase alphanumeric runs from text.
func splitAlphanumeric(text string) []string {
	var tokens []string
	var current strings.Builder
	for _, r := range strings.ToLower(text) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r > 127 {
			current.WriteRune(r)
			continue
		}
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}
	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}
	return tokens
}

func isFTSSyntaxError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "fts5:") || strings.Contains(msg, "syntax error")
}

func splitChunkKey(key string) (docID string, idx int, ok bool) {
	i := strings.LastIndexByte(key, ':')
	if i < 0 {
		return "", 0, false
	}
	var n int
	if _, err := fmt.Sscanf(key[i+1:], "%d", &n); err != nil {
		return "", 0, false
	}
	return key[:i], n, true
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func idArgs(tenantID string, ids []string) []any {
	args := make([]any, 0, len(ids)+1)
	args = append(args, tenantID)
	for _, id := range ids {
		args = append(args, id)
	}
	return args
}

// encodeVector serializes a float32 vector as a little-endian blob.
func encodeVector(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector deserializes a little-endian float32 blob.
func decodeVector(b []byte) []float32 {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
