// Package sqlite persists indexed records so the vector index can be rebuilt
// without re-running extraction.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"docrag/internal/domain"
	"docrag/internal/store/sqlite/migrations"
)

// Meta keys written by the indexer.
const (
	MetaProvider  = "embedding_provider"
	MetaDimension = "dimension"
)

// Store is a SQLite-backed record store.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (or creates) the store in dataDir.
// If dataDir is empty, defaults to ~/.docrag/data.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".docrag", "data")
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "records.db")

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	s := &Store{db: db, path: dbPath}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	var upFiles []string
	for _, entry := range entries {
		if name := entry.Name(); strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_initial.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(string(content)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %s: %w", name, err)
		}
	}
	return nil
}

// SaveRecords appends records in one transaction.
func (s *Store) SaveRecords(ctx context.Context, texts []string, metas []domain.Metadata) error {
	if len(texts) != len(metas) {
		return fmt.Errorf("%d texts, %d metadata: %w", len(texts), len(metas), domain.ErrLengthMismatch)
	}
	if len(texts) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertRecords(ctx, tx, texts, metas); err != nil {
		return err
	}
	return tx.Commit()
}

// ReplaceRecords swaps the stored records and index metadata for the given
// records in one transaction. On error the previous contents are kept.
func (s *Store) ReplaceRecords(ctx context.Context, texts []string, metas []domain.Metadata) error {
	if len(texts) != len(metas) {
		return fmt.Errorf("%d texts, %d metadata: %w", len(texts), len(metas), domain.ErrLengthMismatch)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM records"); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM index_meta"); err != nil {
		return fmt.Errorf("clear index meta: %w", err)
	}
	if err := insertRecords(ctx, tx, texts, metas); err != nil {
		return err
	}
	return tx.Commit()
}

func insertRecords(ctx context.Context, tx *sql.Tx, texts []string, metas []domain.Metadata) error {
	if len(texts) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (id, text, doc_type, doc_code, metadata)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, text := range texts {
		meta := metas[i]
		if meta == nil {
			meta = domain.Metadata{}
		}
		raw, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("marshal metadata %d: %w", i, err)
		}
		if _, err := stmt.ExecContext(ctx, uuid.NewString(), text, meta.DocType(), meta.DocCode(), string(raw)); err != nil {
			return fmt.Errorf("insert record %d: %w", i, err)
		}
	}
	return nil
}

// LoadRecords returns all records in insertion order.
func (s *Store) LoadRecords(ctx context.Context) ([]string, []domain.Metadata, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT text, metadata FROM records ORDER BY seq")
	if err != nil {
		return nil, nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var texts []string
	var metas []domain.Metadata
	for rows.Next() {
		var text, raw string
		if err := rows.Scan(&text, &raw); err != nil {
			return nil, nil, fmt.Errorf("scan record: %w", err)
		}
		meta := domain.Metadata{}
		if raw != "" && raw != "null" {
			if err := json.Unmarshal([]byte(raw), &meta); err != nil {
				return nil, nil, fmt.Errorf("unmarshal metadata: %w", err)
			}
		}
		texts = append(texts, text)
		metas = append(metas, meta)
	}
	return texts, metas, rows.Err()
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM records").Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// CountByDocType returns record counts per doc_type.
func (s *Store) CountByDocType(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT doc_type, COUNT(*) FROM records GROUP BY doc_type")
	if err != nil {
		return nil, fmt.Errorf("count by doc_type: %w", err)
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var docType string
		var n int
		if err := rows.Scan(&docType, &n); err != nil {
			return nil, err
		}
		out[docType] = n
	}
	return out, rows.Err()
}

// Clear deletes all records and index metadata.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM records"); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM index_meta"); err != nil {
		return fmt.Errorf("clear index meta: %w", err)
	}
	return nil
}

// SetMeta stores an index fact.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO index_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("set meta %s: %w", key, err)
	}
	return nil
}

// GetMeta reads an index fact. Missing keys return domain.ErrNotFound.
func (s *Store) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM index_meta WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("meta %s: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get meta %s: %w", key, err)
	}
	return value, nil
}
