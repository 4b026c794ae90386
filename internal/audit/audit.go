// Package audit records search query metadata for analytics. Writes
// are fire-and-forget: a broken audit table must never affect the
// user-facing search path.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/mosaicdocs/mosaic/internal/search"
)

// SearchAuditLogger persists search audit rows to SQLite, sharing the
// document store's database handle.
type SearchAuditLogger struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ search.Auditor = (*SearchAuditLogger)(nil)

// NewSearchAuditLogger creates the audit logger and its table.
func NewSearchAuditLogger(db *sql.DB, logger *slog.Logger) (*SearchAuditLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := initAuditSchema(db); err != nil {
		return nil, err
	}
	return &SearchAuditLogger{db: db, logger: logger}, nil
}

func initAuditSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS search_logs (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		tenant_id    TEXT NOT NULL,
		user_id      TEXT NOT NULL DEFAULT '',
		query        TEXT NOT NULL,
		search_type  TEXT NOT NULL,
		result_count INTEGER NOT NULL,
		duration_ms  INTEGER NOT NULL,
		status       TEXT NOT NULL,
		created_at   TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_search_logs_tenant ON search_logs(tenant_id, created_at DESC);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create audit schema: %w", err)
	}
	return nil
}

// LogSearch appends one audit row. Failures are logged and swallowed.
func (l *SearchAuditLogger) LogSearch(ctx context.Context, entry *search.AuditEntry) {
	if entry == nil {
		return
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO search_logs (tenant_id, user_id, query, search_type, result_count, duration_ms, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, entry.TenantID, entry.UserID, entry.Query, entry.SearchType,
		entry.ResultCount, entry.Duration.Milliseconds(), entry.Status)
	if err != nil {
		l.logger.Warn("audit_write_failed",
			slog.String("tenant_id", entry.TenantID),
			slog.String("error", err.Error()))
	}
}

// LoggedSearch is one persisted audit row.
type LoggedSearch struct {
	TenantID    string
	UserID      string
	Query       string
	SearchType  string
	ResultCount int
	Duration    time.Duration
	Status      string
	CreatedAt   time.Time
}

// RecentSearches returns the tenant's most recent audit rows, newest
// first.
func (l *SearchAuditLogger) RecentSearches(ctx context.Context, tenantID string, limit int) ([]*LoggedSearch, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT tenant_id, user_id, query, search_type, result_count, duration_ms, status, created_at
		FROM search_logs
		WHERE tenant_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent searches: %w", err)
	}
	defer rows.Close()

	var out []*LoggedSearch
	for rows.Next() {
		var s LoggedSearch
		var durationMs int64
		if err := rows.Scan(&s.TenantID, &s.UserID, &s.Query, &s.SearchType,
			&s.ResultCount, &durationMs, &s.Status, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		s.Duration = time.Duration(durationMs) * time.Millisecond
		out = append(out, &s)
	}
	return out, rows.Err()
}
