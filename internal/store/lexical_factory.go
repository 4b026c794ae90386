package store

import (
	"fmt"
	"path/filepath"
)

// LexicalBackend selects the full-text search backend.
type LexicalBackend string

const (
	// LexicalBackendFTS5 uses SQLite FTS5 (default). Lives inside the
	// main database file, so no extra state to manage.
	LexicalBackendFTS5 LexicalBackend = "fts5"

	// LexicalBackendBleve uses Bleve v2 in a sibling directory. Has
	// exclusive file locking via BoltDB, single process only.
	LexicalBackendBleve LexicalBackend = "bleve"
)

// Open creates a DocumentStore at dbPath with the requested lexical
// backend. An empty dbPath creates an in-memory store for testing.
func Open(dbPath string, vectorCfg VectorConfig, backend string) (DocumentStore, error) {
	switch LexicalBackend(backend) {
	case LexicalBackendFTS5, "":
		return NewSQLiteStore(dbPath, vectorCfg)

	case LexicalBackendBleve:
		var blevePath string
		if dbPath != "" {
			blevePath = blevePathFor(dbPath)
		}
		idx, err := NewBleveLexicalIndex(blevePath)
		if err != nil {
			return nil, err
		}
		s, err := NewSQLiteStore(dbPath, vectorCfg, WithLexicalIndex(idx))
		if err != nil {
			_ = idx.Close()
			return nil, err
		}
		return s, nil

	default:
		return nil, fmt.Errorf("unknown lexical backend: %s (valid options: fts5, bleve)", backend)
	}
}

// blevePathFor derives the Bleve index directory from the database path.
func blevePathFor(dbPath string) string {
	ext := filepath.Ext(dbPath)
	return dbPath[:len(dbPath)-len(ext)] + ".bleve"
}
