package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a looked-up record does not exist.
var ErrNotFound = errors.New("not found")

// JournalEntry is a persisted journal line.
type JournalEntry struct {
	ID        int64
	Text      string
	CreatedAt time.Time
}

// Artifact describes an uploaded file kept by the artifact store.
type Artifact struct {
	Name       string
	Size       int64
	Uploader   string
	UploadedAt time.Time
}

// JournalStore handles journal persistence.
type JournalStore interface {
	// AppendEntry persists one journal line.
	AppendEntry(ctx context.Context, at time.Time, text string) error

	// ListEntries returns up to limit of the newest entries in chronological order.
	ListEntries(ctx context.Context, limit int) ([]*JournalEntry, error)
}

// ArtifactIndex handles metadata about uploaded files.
type ArtifactIndex interface {
	// RecordArtifact inserts or replaces the metadata for name.
	RecordArtifact(ctx context.Context, name string, size int64, uploader string) error

	// GetArtifact retrieves metadata by name.
	GetArtifact(ctx context.Context, name string) (*Artifact, error)

	// ListArtifacts lists all known artifacts, newest first.
	ListArtifacts(ctx context.Context) ([]*Artifact, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	JournalStore
	ArtifactIndex

	// Close closes the underlying database connection.
	Close() error
}
