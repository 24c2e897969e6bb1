// Package fsstore keeps uploaded artifacts as plain files in one directory.
package fsstore

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const tempPattern = ".upload-*"

// ErrInvalidName is returned for names that are not a single path element.
var ErrInvalidName = errors.New("invalid artifact name")

// FileInfo describes a stored artifact.
type FileInfo struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// Store is a flat directory of artifacts keyed by base name.
type Store struct {
	dir string
}

// New creates dir if needed and returns a store rooted there.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the storage directory.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".upload-") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(s.dir, name), nil
}

// Create opens a pending artifact. Bytes land in a temp file that replaces
// name on Close; Abort discards them.
func (s *Store) Create(name string) (io.WriteCloser, error) {
	final, err := s.path(name)
	if err != nil {
		return nil, err
	}
	tmp, err := os.CreateTemp(s.dir, tempPattern)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	return &pendingFile{File: tmp, final: final}, nil
}

// Open returns the artifact contents and size. Missing artifacts yield an
// error wrapping fs.ErrNotExist.
func (s *Store) Open(name string) (io.ReadCloser, int64, error) {
	p, err := s.path(name)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", fs.ErrNotExist, err)
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stat artifact: %w", err)
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, 0, fmt.Errorf("%s: %w", name, fs.ErrNotExist)
	}
	return f, info.Size(), nil
}

// List returns the stored artifacts sorted by name.
func (s *Store) List() ([]FileInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read storage dir: %w", err)
	}

	files := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".upload-") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, FileInfo{Name: e.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

type pendingFile struct {
	*os.File
	final string
	done  bool
}

// Close syncs the temp file and renames it into place.
func (p *pendingFile) Close() error {
	if p.done {
		return nil
	}
	p.done = true

	if err := p.File.Sync(); err != nil {
		p.File.Close()
		os.Remove(p.File.Name())
		return fmt.Errorf("sync artifact: %w", err)
	}
	if err := p.File.Close(); err != nil {
		os.Remove(p.File.Name())
		return fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(p.File.Name(), p.final); err != nil {
		os.Remove(p.File.Name())
		return fmt.Errorf("commit artifact: %w", err)
	}
	return nil
}

// Abort drops the temp file without touching an existing artifact.
func (p *pendingFile) Abort() error {
	if p.done {
		return nil
	}
	p.done = true
	p.File.Close()
	return os.Remove(p.File.Name())
}
