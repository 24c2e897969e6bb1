package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"

	"github.com/rs/zerolog"
)

// ArtifactStore keeps uploaded payloads in a flat namespace keyed by base name.
// A later upload with the same name replaces the earlier one.
type ArtifactStore interface {
	Create(name string) (io.WriteCloser, error)
	// Open returns the stored bytes and their size, or an error wrapping
	// fs.ErrNotExist.
	Open(name string) (io.ReadCloser, int64, error)
}

// ArtifactIndex records metadata about stored artifacts.
type ArtifactIndex interface {
	RecordArtifact(ctx context.Context, name string, size int64, uploader string) error
}

// Upload describes one ingest.
type Upload struct {
	Name     string
	Declared int64
	Received int64
}

// Relay splices file payloads into the frame stream in both directions.
type Relay struct {
	store    ArtifactStore
	index    ArtifactIndex
	maxBytes int64
	log      *zerolog.Logger
}

// NewRelay creates a relay over store. index may be nil; maxBytes <= 0 means
// no upload limit.
func NewRelay(store ArtifactStore, index ArtifactIndex, maxBytes int64, logger *zerolog.Logger) *Relay {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Relay{store: store, index: index, maxBytes: maxBytes, log: logger}
}

// BaseName strips every path component from name so clients cannot reach
// outside the artifact namespace.
func BaseName(name string) (string, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	base := path.Base(cleaned)
	switch base {
	case "", ".", "..", "/":
		return "", malformed(fmt.Sprintf("[서버] 잘못된 파일명입니다: %s", name))
	}
	return base, nil
}

// Ingest reads an 8-byte length and that many raw bytes from s into the store.
// A stream that ends early leaves a truncated artifact behind and returns an
// error wrapping both ErrSizeMismatch and ErrStreamClosed. Rejected uploads
// still consume the payload so the stream stays in frame mode.
func (r *Relay) Ingest(s *Session, rawName string) (Upload, error) {
	up := Upload{Name: rawName}

	declared, err := s.reader.ReadLength()
	if err != nil {
		// Without a trustworthy length the stream cannot be resynchronized.
		return up, fmt.Errorf("read upload length: %w", errors.Join(err, ErrStreamClosed))
	}
	up.Declared = declared

	if err := s.reader.ExpectRaw(declared); err != nil {
		return up, fmt.Errorf("expect upload payload: %w", err)
	}

	base, nameErr := BaseName(rawName)
	switch {
	case nameErr != nil:
		return up, r.reject(s, nameErr)
	case r.maxBytes > 0 && declared > r.maxBytes:
		return up, r.reject(s, coreError(ErrCodeTooLarge,
			fmt.Sprintf("[서버] 파일이 너무 큽니다 (최대 %d bytes).", r.maxBytes), ErrTooLarge))
	}
	up.Name = base

	w, err := r.store.Create(base)
	if err != nil {
		return up, r.reject(s, fmt.Errorf("create artifact %s: %w", base, err))
	}

	n, readErr := s.reader.ReadRaw(w)
	up.Received = n

	if readErr != nil && !errors.Is(readErr, ErrStreamClosed) {
		if a, ok := w.(interface{ Abort() error }); ok {
			_ = a.Abort()
		} else {
			_ = w.Close()
		}
		return up, r.reject(s, fmt.Errorf("store artifact %s: %w", base, readErr))
	}

	closeErr := w.Close()
	if closeErr != nil {
		return up, fmt.Errorf("store artifact %s: %w", base, errors.Join(closeErr, readErr))
	}
	r.record(base, n, s.Name())

	if readErr != nil {
		r.log.Warn().Str("file", base).Int64("declared", declared).Int64("received", n).Msg("upload truncated, keeping partial artifact")
		return up, fmt.Errorf("upload %s: %w", base, errors.Join(ErrSizeMismatch, readErr))
	}
	return up, nil
}

// record indexes a committed artifact with the size actually stored.
func (r *Relay) record(name string, size int64, uploader string) {
	if r.index == nil {
		return
	}
	if err := r.index.RecordArtifact(context.Background(), name, size, uploader); err != nil {
		r.log.Warn().Err(err).Str("file", name).Msg("failed to index artifact")
	}
}

// reject drains whatever is still pending and returns cause, or the stream
// error if draining fails.
func (r *Relay) reject(s *Session, cause error) error {
	if _, err := s.reader.Discard(); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

// Open locates a stored artifact for download.
func (r *Relay) Open(name string) (string, io.ReadCloser, int64, error) {
	base, err := BaseName(name)
	if err != nil {
		return "", nil, 0, err
	}
	body, size, err := r.store.Open(base)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return base, nil, 0, ErrArtifactNotFound
		}
		return base, nil, 0, fmt.Errorf("open artifact %s: %w", base, err)
	}
	return base, body, size, nil
}
