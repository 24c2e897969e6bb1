package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/streamchat/internal/store"
)

//go:embed schema.sql
var schema string

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ store.Store = (*SQLiteStore)(nil)

// New opens the SQLite database at dbPath and applies the schema.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, ApplySchema)
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply a custom schema.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps :memory:
	// databases alive across queries.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// ApplySchema creates the tables used by SQLiteStore if they do not exist.
func ApplySchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== JournalStore implementation ====

// AppendEntry persists one journal line.
func (s *SQLiteStore) AppendEntry(ctx context.Context, at time.Time, text string) error {
	query := `
		INSERT INTO journal_entries (body, created_at)
		VALUES (?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, text, at.UTC()); err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}
	return nil
}

// ListEntries returns up to limit of the newest entries in chronological order.
func (s *SQLiteStore) ListEntries(ctx context.Context, limit int) ([]*store.JournalEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, body, created_at
		FROM journal_entries
		ORDER BY id DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal entries: %w", err)
	}
	defer rows.Close()

	var entries []*store.JournalEntry
	for rows.Next() {
		var e store.JournalEntry
		if err := rows.Scan(&e.ID, &e.Text, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal entries: %w", err)
	}

	// Reverse to get chronological order
	for i := range len(entries) / 2 {
		j := len(entries) - 1 - i
		entries[i], entries[j] = entries[j], entries[i]
	}

	return entries, nil
}

// ==== ArtifactIndex implementation ====

// RecordArtifact inserts or replaces the metadata for name.
func (s *SQLiteStore) RecordArtifact(ctx context.Context, name string, size int64, uploader string) error {
	query := `
		INSERT INTO artifacts (name, size, uploader, uploaded_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			size = excluded.size,
			uploader = excluded.uploader,
			uploaded_at = excluded.uploaded_at
	`
	if _, err := s.db.ExecContext(ctx, query, name, size, uploader, s.now().UTC()); err != nil {
		return fmt.Errorf("upsert artifact: %w", err)
	}
	return nil
}

// GetArtifact retrieves metadata by name.
func (s *SQLiteStore) GetArtifact(ctx context.Context, name string) (*store.Artifact, error) {
	query := `
		SELECT name, size, uploader, uploaded_at
		FROM artifacts
		WHERE name = ?
	`
	var a store.Artifact
	err := s.db.QueryRowContext(ctx, query, name).Scan(&a.Name, &a.Size, &a.Uploader, &a.UploadedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("artifact %s: %w", name, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query artifact: %w", err)
	}
	return &a, nil
}

// ListArtifacts lists all known artifacts, newest first.
func (s *SQLiteStore) ListArtifacts(ctx context.Context) ([]*store.Artifact, error) {
	query := `
		SELECT name, size, uploader, uploaded_at
		FROM artifacts
		ORDER BY uploaded_at DESC, name ASC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []*store.Artifact
	for rows.Next() {
		var a store.Artifact
		if err := rows.Scan(&a.Name, &a.Size, &a.Uploader, &a.UploadedAt); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		artifacts = append(artifacts, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate artifacts: %w", err)
	}
	return artifacts, nil
}
