package log

import (
	"context"
	"fmt"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/vovakirdan/streamchat/internal/core"
)

const fileTimeLayout = "2006-01-02 15:04:05"

// FileSink mirrors journal entries to a size-rotated text file, one line per entry.
type FileSink struct {
	mu sync.Mutex
	w  *lumberjack.Logger
}

var _ core.Sink = (*FileSink)(nil)

// NewFileSink appends to path, rotating once the file exceeds maxSizeMB.
func NewFileSink(path string, maxSizeMB, maxBackups int) *FileSink {
	return &FileSink{
		w: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			LocalTime:  true,
		},
	}
}

// Append writes e as a single line.
func (f *FileSink) Append(_ context.Context, e core.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := fmt.Fprintf(f.w, "%s %s\n", e.At.Format(fileTimeLayout), e.Text); err != nil {
		return fmt.Errorf("write journal file: %w", err)
	}
	return nil
}

// Close closes the current log file.
func (f *FileSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.w.Close()
}
