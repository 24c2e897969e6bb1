package core

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/vovakirdan/streamchat/internal/proto"
)

// SessionState is a step in the connection lifecycle.
type SessionState int32

const (
	StateConnecting SessionState = iota
	StateRegistering
	StateActive
	StateClosing
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateRegistering:
		return "registering"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// outbound is one unit for the writer goroutine: a text frame, or an
// announce frame followed by its raw payload.
type outbound struct {
	text string
	file *fileUnit
}

type fileUnit struct {
	name string
	size int64
	body io.ReadCloser
}

// Session is the live state of one connected participant. Reads belong to the
// receive loop; any goroutine may call Send.
type Session struct {
	ID     string
	Remote string

	conn   net.Conn
	reader *proto.Reader
	writer *proto.Writer

	// writeMu makes the writer goroutine the single writer of the stream.
	writeMu sync.Mutex

	nameMu sync.RWMutex
	name   string

	state atomic.Int32

	outbound  chan outbound
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error

	limiter *rate.Limiter
	log     zerolog.Logger
}

// NewSession wraps conn and starts its writer goroutine. queueSize bounds the
// outbound queue; perMinute limits chat frames (0 disables the limit).
func NewSession(conn net.Conn, queueSize, perMinute int, logger *zerolog.Logger) *Session {
	if queueSize <= 0 {
		queueSize = 1
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	id := uuid.NewString()
	remote := ""
	if addr := conn.RemoteAddr(); addr != nil {
		remote = addr.String()
	}

	s := &Session{
		ID:       id,
		Remote:   remote,
		conn:     conn,
		reader:   proto.NewReader(conn),
		writer:   proto.NewWriter(conn),
		outbound: make(chan outbound, queueSize),
		done:     make(chan struct{}),
		log:      logger.With().Str("session_id", id).Str("remote", remote).Logger(),
	}
	if perMinute > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(float64(perMinute)/60), perMinute)
	}

	go s.writePump()
	return s
}

// Name returns the current display name.
func (s *Session) Name() string {
	s.nameMu.RLock()
	defer s.nameMu.RUnlock()
	return s.name
}

func (s *Session) setName(name string) {
	s.nameMu.Lock()
	s.name = name
	s.nameMu.Unlock()
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// advance moves the state forward; states never go back.
func (s *Session) advance(next SessionState) {
	for {
		cur := s.state.Load()
		if SessionState(cur) >= next {
			return
		}
		if s.state.CompareAndSwap(cur, int32(next)) {
			return
		}
	}
}

// Done is closed once the session is closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Send queues one frame for the peer without blocking. Frames to a closing
// session or a full queue are dropped and logged; the caller never sees an error.
func (s *Session) Send(text string) {
	if s.State() >= StateClosing {
		s.log.Debug().Msg("drop frame for closing session")
		return
	}
	if !s.enqueue(outbound{text: text}, false) {
		s.log.Debug().Str("name", s.Name()).Msg("frame dropped")
	}
}

// reply queues a frame for the session's own peer, waiting for queue space.
// Only the session's receive loop calls it, so it only ever stalls itself.
func (s *Session) reply(text string) bool {
	return s.enqueue(outbound{text: text}, true)
}

// sendFile queues an announce frame and exactly size raw bytes from body as one
// unit. body is closed once written or dropped.
func (s *Session) sendFile(name string, size int64, body io.ReadCloser) bool {
	return s.enqueue(outbound{file: &fileUnit{name: name, size: size, body: body}}, true)
}

// enqueue hands msg to the writer goroutine. With wait unset a full queue drops
// msg. A unit that loses the race with Close is released here, because the
// writer may already have drained the queue and exited.
func (s *Session) enqueue(msg outbound, wait bool) bool {
	select {
	case <-s.done:
		msg.release()
		return false
	default:
	}

	if wait {
		select {
		case s.outbound <- msg:
		case <-s.done:
			msg.release()
			return false
		}
	} else {
		select {
		case s.outbound <- msg:
		default:
			s.log.Warn().Str("name", s.Name()).Msg("outbound queue full, dropping frame")
			msg.release()
			return false
		}
	}

	select {
	case <-s.done:
		s.drain()
		return false
	default:
		return true
	}
}

func (m outbound) release() {
	if m.file != nil {
		_ = m.file.body.Close()
	}
}

func (s *Session) writePump() {
	for {
		select {
		case msg := <-s.outbound:
			if err := s.write(msg); err != nil {
				s.log.Warn().Err(err).Str("name", s.Name()).Msg("write to peer failed")
				_ = s.Close()
				s.drain()
				return
			}
		case <-s.done:
			s.drain()
			return
		}
	}
}

func (s *Session) write(msg outbound) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if msg.file == nil {
		return s.skipOversize(s.writer.WriteFrame(msg.text))
	}

	defer msg.file.body.Close()
	if err := s.writer.WriteFrame(proto.FileAnnounce(msg.file.name, msg.file.size)); err != nil {
		return s.skipOversize(err)
	}
	if err := s.writer.WriteRaw(msg.file.body, msg.file.size); err != nil {
		// The peer now expects bytes that will never come; the stream is unusable.
		return fmt.Errorf("send %s: %w", msg.file.name, err)
	}
	return nil
}

// skipOversize drops a frame that cannot be encoded. WriteFrame rejects it
// before writing a byte, so the stream stays aligned and the session lives on.
func (s *Session) skipOversize(err error) error {
	if errors.Is(err, proto.ErrFrameTooLarge) {
		s.log.Warn().Err(err).Str("name", s.Name()).Msg("dropping oversized frame")
		return nil
	}
	return err
}

// writeNow writes a frame synchronously, bypassing the queue. Used before the
// session is registered, when nothing else can be queued yet.
func (s *Session) writeNow(text string) error {
	return s.write(outbound{text: text})
}

func (s *Session) drain() {
	for {
		select {
		case msg := <-s.outbound:
			msg.release()
		default:
			return
		}
	}
}

// allow reports whether the rate limiter admits one more chat frame.
func (s *Session) allow() bool {
	return s.limiter == nil || s.limiter.Allow()
}

// Close releases the stream. It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.advance(StateClosing)
		close(s.done)
		s.closeErr = s.conn.Close()
		s.advance(StateClosed)
	})
	return s.closeErr
}
