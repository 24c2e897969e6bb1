package core

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vovakirdan/streamchat/internal/proto"
)

// peer is the client end of a piped connection served by a hub.
type peer struct {
	conn   net.Conn
	w      *proto.Writer
	frames chan string
	files  chan []byte
}

func newPeer(tb testing.TB, conn net.Conn) *peer {
	tb.Helper()

	p := &peer{
		conn:   conn,
		w:      proto.NewWriter(conn),
		frames: make(chan string, 256),
		files:  make(chan []byte, 8),
	}
	go p.readLoop()
	tb.Cleanup(func() { _ = conn.Close() })
	return p
}

func (p *peer) readLoop() {
	defer close(p.frames)

	r := proto.NewReader(p.conn)
	for {
		frame, err := r.ReadFrame()
		if err != nil {
			return
		}
		if strings.HasPrefix(frame, proto.PrefixFile) {
			_, size, err := proto.ParseFileAnnounce(frame)
			if err != nil {
				return
			}
			if err := r.ExpectRaw(size); err != nil {
				return
			}
			var buf bytes.Buffer
			if _, err := r.ReadRaw(&buf); err != nil {
				return
			}
			p.files <- buf.Bytes()
		}
		p.frames <- frame
	}
}

func (p *peer) send(t *testing.T, text string) {
	t.Helper()
	if err := p.w.WriteFrame(text); err != nil {
		t.Fatalf("send %q: %v", text, err)
	}
}

func (p *peer) upload(t *testing.T, name string, payload []byte) {
	t.Helper()
	p.send(t, proto.PrefixUpload+name)
	if err := p.w.WriteLength(int64(len(payload))); err != nil {
		t.Fatalf("write length: %v", err)
	}
	if err := p.w.WriteRaw(bytes.NewReader(payload), int64(len(payload))); err != nil {
		t.Fatalf("write payload: %v", err)
	}
}

// dial connects a raw peer to hub without waiting for registration.
func dial(t *testing.T, hub *Hub, name string) *peer {
	t.Helper()

	serverSide, clientSide := net.Pipe()
	go hub.ServeConn(serverSide)

	p := newPeer(t, clientSide)
	p.send(t, name)
	return p
}

// join connects a peer and waits until name is registered.
func join(t *testing.T, hub *Hub, name string) (*peer, *Session) {
	t.Helper()

	p := dial(t, hub, name)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s := hub.Registry().Lookup(name); s != nil {
			return p, s
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("%s was not registered", name)
	return nil, nil
}

func mustFrame(t *testing.T, p *peer, prefix string) string {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case frame, ok := <-p.frames:
			if !ok {
				t.Fatalf("stream closed while waiting for %q", prefix)
			}
			if strings.HasPrefix(frame, prefix) {
				return frame
			}
		case <-deadline:
			t.Fatalf("expected frame with prefix %q not received", prefix)
			return ""
		}
	}
}

func expectNoFrame(t *testing.T, p *peer, within time.Duration) {
	t.Helper()

	select {
	case frame, ok := <-p.frames:
		if ok {
			t.Fatalf("unexpected frame %q", frame)
		}
	case <-time.After(within):
	}
}

func mustClose(t *testing.T, p *peer) {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-p.frames:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("stream was not closed")
		}
	}
}

// observe builds a session whose peer frames are collected into a channel.
func observe(tb testing.TB, queueSize int) (*Session, <-chan string) {
	tb.Helper()

	serverSide, clientSide := net.Pipe()
	s := NewSession(serverSide, queueSize, 0, nil)
	p := newPeer(tb, clientSide)
	tb.Cleanup(func() { _ = s.Close() })
	return s, p.frames
}

// newStuckSession builds a session whose peer never reads.
func newStuckSession(t *testing.T, queueSize int) *Session {
	t.Helper()

	serverSide, clientSide := net.Pipe()
	s := NewSession(serverSide, queueSize, 0, nil)
	t.Cleanup(func() {
		_ = s.Close()
		_ = clientSide.Close()
	})
	return s
}

// verify checks the registry invariants atomically. Every session in present
// must be registered exactly once.
func (r *Registry) verify(present ...*Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[*Session]string, len(r.sessions))
	for name, s := range r.sessions {
		if got := s.Name(); got != name {
			return fmt.Errorf("key %q maps to session named %q", name, got)
		}
		if other, dup := seen[s]; dup {
			return fmt.Errorf("session %s registered as %q and %q", s.ID, other, name)
		}
		seen[s] = name
	}
	for _, s := range present {
		if _, ok := seen[s]; !ok {
			return fmt.Errorf("session %s missing from registry", s.ID)
		}
	}
	return nil
}

type memStore struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{files: make(map[string][]byte)}
}

type memFile struct {
	bytes.Buffer
	store *memStore
	name  string
}

func (f *memFile) Close() error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	f.store.files[f.name] = append([]byte(nil), f.Bytes()...)
	return nil
}

func (m *memStore) Create(name string) (io.WriteCloser, error) {
	return &memFile{store: m, name: name}, nil
}

func (m *memStore) Open(name string) (io.ReadCloser, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[name]
	if !ok {
		return nil, 0, fmt.Errorf("open %s: %w", name, fs.ErrNotExist)
	}
	return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
}

func (m *memStore) get(name string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[name]
	return data, ok
}

type indexedArtifact struct {
	size     int64
	uploader string
}

// memIndex records RecordArtifact calls.
type memIndex struct {
	mu        sync.Mutex
	artifacts map[string]indexedArtifact
}

func newMemIndex() *memIndex {
	return &memIndex{artifacts: make(map[string]indexedArtifact)}
}

func (m *memIndex) RecordArtifact(_ context.Context, name string, size int64, uploader string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.artifacts[name] = indexedArtifact{size: size, uploader: uploader}
	return nil
}

func (m *memIndex) get(name string) (indexedArtifact, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.artifacts[name]
	return a, ok
}

// trackedBody counts Close calls across many bodies.
type trackedBody struct {
	io.Reader
	closed *atomic.Int32
}

func (b trackedBody) Close() error {
	b.closed.Add(1)
	return nil
}
