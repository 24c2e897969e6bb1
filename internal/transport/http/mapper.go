package http

import (
	"time"

	"github.com/vovakirdan/streamchat/internal/core"
	"github.com/vovakirdan/streamchat/internal/store"
	"github.com/vovakirdan/streamchat/internal/store/fsstore"
)

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// UsersResponse lists the registered display names.
type UsersResponse struct {
	Count int      `json:"count"`
	Users []string `json:"users"`
}

// LogEntryResponse represents one journal line.
type LogEntryResponse struct {
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
}

// LogsResponse wraps journal lines in chronological order.
type LogsResponse struct {
	Source  string             `json:"source"`
	Entries []LogEntryResponse `json:"entries"`
}

// FileResponse describes a stored artifact. Uploader is empty when only the
// file on disk is known.
type FileResponse struct {
	Name       string `json:"name"`
	Size       int64  `json:"size"`
	Uploader   string `json:"uploader,omitempty"`
	UploadedAt string `json:"uploaded_at"`
}

func entriesFromJournal(entries []core.Entry) []LogEntryResponse {
	out := make([]LogEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, LogEntryResponse{Text: e.Text, CreatedAt: e.At.Format(time.RFC3339)})
	}
	return out
}

func entriesFromStore(entries []*store.JournalEntry) []LogEntryResponse {
	out := make([]LogEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, LogEntryResponse{Text: e.Text, CreatedAt: e.CreatedAt.Format(time.RFC3339)})
	}
	return out
}

func fileFromArtifact(a *store.Artifact) FileResponse {
	return FileResponse{
		Name:       a.Name,
		Size:       a.Size,
		Uploader:   a.Uploader,
		UploadedAt: a.UploadedAt.Format(time.RFC3339),
	}
}

func filesFromArtifacts(artifacts []*store.Artifact) []FileResponse {
	out := make([]FileResponse, 0, len(artifacts))
	for _, a := range artifacts {
		out = append(out, fileFromArtifact(a))
	}
	return out
}

func filesFromDisk(files []fsstore.FileInfo) []FileResponse {
	out := make([]FileResponse, 0, len(files))
	for _, f := range files {
		out = append(out, FileResponse{Name: f.Name, Size: f.Size, UploadedAt: f.ModTime.Format(time.RFC3339)})
	}
	return out
}
