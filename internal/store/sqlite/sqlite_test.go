package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vovakirdan/streamchat/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	// Setup in-memory DB
	s, err := NewWithSetup(":memory:", ApplySchema)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestJournalEntries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	lines := []string{"[입장] alice (현재 인원: 1)", "[alice](12:00:01): hi", "[퇴장] alice (현재 인원: 0)"}
	for i, line := range lines {
		if err := s.AppendEntry(ctx, base.Add(time.Duration(i)*time.Second), line); err != nil {
			t.Fatalf("append %q: %v", line, err)
		}
	}

	tests := []struct {
		name     string
		limit    int
		expected []string
	}{
		{name: "all", limit: 10, expected: lines},
		{name: "newest two", limit: 2, expected: lines[1:]},
		{name: "default limit", limit: 0, expected: lines},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := s.ListEntries(ctx, tt.limit)
			if err != nil {
				t.Fatalf("ListEntries failed: %v", err)
			}
			if len(entries) != len(tt.expected) {
				t.Fatalf("expected %d entries, got %d", len(tt.expected), len(entries))
			}
			for i, e := range entries {
				if e.Text != tt.expected[i] {
					t.Errorf("expected %q at index %d, got %q", tt.expected[i], i, e.Text)
				}
			}
		})
	}

	entries, _ := s.ListEntries(ctx, 1)
	if !entries[0].CreatedAt.Equal(base.Add(2 * time.Second)) {
		t.Fatalf("unexpected timestamp %v", entries[0].CreatedAt)
	}
}

func TestArtifactIndex(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	if err := s.RecordArtifact(ctx, "photo.png", 1000, "alice"); err != nil {
		t.Fatalf("record: %v", err)
	}
	clock = clock.Add(time.Minute)
	if err := s.RecordArtifact(ctx, "notes.txt", 12, "bob"); err != nil {
		t.Fatalf("record: %v", err)
	}

	// Re-upload replaces the earlier record.
	clock = clock.Add(time.Minute)
	if err := s.RecordArtifact(ctx, "photo.png", 2048, "carol"); err != nil {
		t.Fatalf("record: %v", err)
	}

	a, err := s.GetArtifact(ctx, "photo.png")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if a.Size != 2048 || a.Uploader != "carol" {
		t.Fatalf("unexpected artifact: %+v", a)
	}

	list, err := s.ListArtifacts(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Name != "photo.png" || list[1].Name != "notes.txt" {
		t.Fatalf("unexpected list: %+v", list)
	}

	if _, err := s.GetArtifact(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
