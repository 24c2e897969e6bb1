package core

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Entry is one line of the server journal.
type Entry struct {
	At   time.Time
	Text string
}

// Sink durably mirrors journal entries. Appends arrive in journal order.
type Sink interface {
	Append(ctx context.Context, e Entry) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, e Entry) error

// Append calls f(ctx, e).
func (f SinkFunc) Append(ctx context.Context, e Entry) error {
	return f(ctx, e)
}

// Journal is the append-only, process-lifetime log of joins, leaves, renames,
// broadcasts and command outcomes. Sinks are written synchronously under the
// journal lock, so every sink sees the same order as Entries.
type Journal struct {
	mu      sync.Mutex
	entries []Entry
	sinks   []Sink
	now     func() time.Time
	log     *zerolog.Logger
}

// NewJournal creates an empty journal mirrored to the given sinks.
func NewJournal(logger *zerolog.Logger, sinks ...Sink) *Journal {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Journal{
		entries: make([]Entry, 0, 64),
		sinks:   sinks,
		now:     time.Now,
		log:     logger,
	}
}

// Append timestamps text and adds it to the journal.
func (j *Journal) Append(text string) Entry {
	j.mu.Lock()
	defer j.mu.Unlock()

	e := Entry{At: j.now(), Text: text}
	j.entries = append(j.entries, e)
	j.log.Info().Str("entry", text).Msg("journal")

	for _, sink := range j.sinks {
		if err := sink.Append(context.Background(), e); err != nil {
			j.log.Warn().Err(err).Msg("journal sink append failed")
		}
	}
	return e
}

// Entries returns a copy of all entries in append order.
func (j *Journal) Entries() []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make([]Entry, len(j.entries))
	copy(out, j.entries)
	return out
}

// Len returns the number of entries.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}
