package core

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/streamchat/internal/proto"
)

// Registry maps display names to live sessions. Every operation runs under one
// mutex; broadcasts happen inside the same critical section as the mutation that
// caused them, so all observers see roster changes and notices in one order.
//
// Fan-out uses Session.Send, which never blocks, so a stuck peer cannot stall
// the critical section.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	journal  *Journal
	log      *zerolog.Logger
}

// NewRegistry creates an empty registry that records notices in journal.
func NewRegistry(journal *Journal, logger *zerolog.Logger) *Registry {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if journal == nil {
		journal = NewJournal(logger)
	}
	return &Registry{
		sessions: make(map[string]*Session),
		journal:  journal,
		log:      logger,
	}
}

// Register adds s under name and announces the join to everyone else.
func (r *Registry) Register(name string, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[name]; exists {
		return ErrNameTaken
	}
	s.setName(name)
	r.sessions[name] = s

	r.log.Info().Str("name", name).Str("session_id", s.ID).Int("total", len(r.sessions)).Msg("session registered")
	r.broadcastLocked(s, fmt.Sprintf("%s %s (현재 인원: %d)", proto.TagJoin, name, len(r.sessions)))
	return nil
}

// Unregister removes s and announces the leave. Calling it for a session that is
// not registered is a no-op.
func (r *Registry) Unregister(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := s.Name()
	if cur, ok := r.sessions[name]; !ok || cur != s {
		return
	}
	delete(r.sessions, name)

	r.log.Info().Str("name", name).Str("session_id", s.ID).Int("total", len(r.sessions)).Msg("session unregistered")
	r.broadcastLocked(s, fmt.Sprintf("%s %s (현재 인원: %d)", proto.TagLeave, name, len(r.sessions)))
}

// Rename moves s to newName and broadcasts a notice. On collision nothing changes.
func (r *Registry) Rename(s *Session, newName string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	oldName := s.Name()
	if cur, ok := r.sessions[oldName]; !ok || cur != s {
		return oldName, ErrNotRegistered
	}
	if _, exists := r.sessions[newName]; exists {
		return oldName, ErrNameTaken
	}

	delete(r.sessions, oldName)
	s.setName(newName)
	r.sessions[newName] = s

	r.log.Info().Str("old", oldName).Str("new", newName).Msg("session renamed")
	r.broadcastLocked(s, fmt.Sprintf("%s %s이(가) %s으로 닉네임을 변경했습니다.", proto.TagServer, oldName, newName))
	return oldName, nil
}

// Broadcast delivers text to every registered session except exclude and
// appends it to the journal.
func (r *Registry) Broadcast(exclude *Session, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcastLocked(exclude, text)
}

func (r *Registry) broadcastLocked(exclude *Session, text string) {
	r.journal.Append(text)
	for _, s := range r.sessions {
		if s != exclude {
			s.Send(text)
		}
	}
}

// Whisper resolves to at call time and delivers text to that session only.
func (r *Registry) Whisper(to, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	target, ok := r.sessions[to]
	if !ok {
		return ErrTargetNotFound
	}
	target.Send(text)
	return nil
}

// Lookup returns the session registered under name, or nil.
func (r *Registry) Lookup(name string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[name]
}

// Snapshot returns the registered names in sorted order.
func (r *Registry) Snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.sessions))
	for name := range r.sessions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
