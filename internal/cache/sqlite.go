package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"holocard/template-gateway/models"
)

const createCacheTable = `
	CREATE TABLE IF NOT EXISTS cached_templates (
		template_id   TEXT PRIMARY KEY,
		payload       BLOB NOT NULL,
		downloaded_at INTEGER NOT NULL,
		title         TEXT NOT NULL,
		author_id     TEXT NOT NULL,
		author_name   TEXT NOT NULL,
		category      TEXT NOT NULL,
		version       TEXT NOT NULL
	)
`

// SQLiteStore persists the template library in a local SQLite database. The
// whole-set Save runs inside a single transaction, which is what makes the
// manager's read-modify-write cycle safe against partial writes.
type SQLiteStore struct {
	db         *sql.DB
	quotaBytes int64
}

// NewSQLiteStore opens (creating if needed) the cache database at path.
// quotaBytes bounds the summed payload size; zero or negative means
// unbounded.
func NewSQLiteStore(path string, quotaBytes int64) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping cache database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(createCacheTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache table: %w", err)
	}

	return &SQLiteStore{db: db, quotaBytes: quotaBytes}, nil
}

func (s *SQLiteStore) Load(ctx context.Context) ([]models.CachedTemplateEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM cached_templates ORDER BY downloaded_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to read cached templates: %w", err)
	}
	defer rows.Close()

	var entries []models.CachedTemplateEntry
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan cached template: %w", err)
		}
		var entry models.CachedTemplateEntry
		if err := json.Unmarshal(payload, &entry); err != nil {
			return nil, fmt.Errorf("corrupted cache entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Save replaces the persisted set with entries, atomically. The quota check
// runs before any row is touched so a rejected save leaves the previous set
// intact.
func (s *SQLiteStore) Save(ctx context.Context, entries []models.CachedTemplateEntry) error {
	payloads := make([][]byte, len(entries))
	var total int64
	for i, entry := range entries {
		payload, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to marshal cache entry %s: %w", entry.TemplateID, err)
		}
		payloads[i] = payload
		total += int64(len(payload))
	}
	if s.quotaBytes > 0 && total > s.quotaBytes {
		return ErrQuotaExceeded
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin cache transaction: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM cached_templates`); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to clear cached templates: %w", err)
	}
	for i, entry := range entries {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cached_templates
				(template_id, payload, downloaded_at, title, author_id, author_name, category, version)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			entry.TemplateID,
			payloads[i],
			entry.DownloadedAt.UnixMilli(),
			entry.SourceMetadata.Title,
			entry.SourceMetadata.AuthorID,
			entry.SourceMetadata.AuthorName,
			entry.SourceMetadata.Category,
			entry.SourceMetadata.Version,
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert cache entry %s: %w", entry.TemplateID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cache transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Footprint(ctx context.Context) (int64, error) {
	var total sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(LENGTH(payload)), 0) FROM cached_templates`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to measure cache footprint: %w", err)
	}
	return total.Int64, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
