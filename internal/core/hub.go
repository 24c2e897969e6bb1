package core

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/streamchat/internal/proto"
)

// HubConfig tunes per-session resources.
type HubConfig struct {
	// QueueSize bounds each session's outbound queue.
	QueueSize int
	// MessagesPerMinute limits chat and whisper frames per session; 0 disables.
	MessagesPerMinute int
	// MaxUploadBytes rejects larger uploads; 0 disables.
	MaxUploadBytes int64
}

// DefaultHubConfig returns the settings used when none are configured.
func DefaultHubConfig() HubConfig {
	return HubConfig{QueueSize: 64}
}

// Hub owns the registry, journal and router, and runs one receive loop per
// connection handed to ServeConn.
type Hub struct {
	cfg      HubConfig
	registry *Registry
	journal  *Journal
	router   *Router
	log      *zerolog.Logger

	mu       sync.Mutex
	live     map[*Session]struct{}
	closing  bool
	sessions sync.WaitGroup
}

// NewHub wires a hub. store may be nil to disable file transfer; index may be nil.
func NewHub(cfg HubConfig, journal *Journal, store ArtifactStore, index ArtifactIndex, logger *zerolog.Logger) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if journal == nil {
		journal = NewJournal(logger)
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultHubConfig().QueueSize
	}

	registry := NewRegistry(journal, logger)
	var relay *Relay
	if store != nil {
		relay = NewRelay(store, index, cfg.MaxUploadBytes, logger)
	}

	return &Hub{
		cfg:      cfg,
		registry: registry,
		journal:  journal,
		router:   NewRouter(registry, journal, relay, logger),
		log:      logger,
		live:     make(map[*Session]struct{}),
	}
}

// Registry exposes the roster for read-only surfaces such as the admin API.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Journal exposes the server journal.
func (h *Hub) Journal() *Journal {
	return h.journal
}

// ServeConn runs the session state machine for conn and returns once the
// session is closed. conn is always closed on return.
func (h *Hub) ServeConn(conn net.Conn) {
	s := NewSession(conn, h.cfg.QueueSize, h.cfg.MessagesPerMinute, h.log)
	if !h.track(s) {
		_ = s.Close()
		return
	}
	defer h.untrack(s)
	defer s.Close()

	s.advance(StateRegistering)
	name, err := s.reader.ReadFrame()
	if err != nil {
		s.log.Debug().Err(err).Msg("connection closed before registration")
		return
	}
	name = strings.TrimSpace(name)

	if err := ValidateName(name); err != nil {
		var ce *CoreError
		if errors.As(err, &ce) {
			_ = s.writeNow(ce.Message)
		}
		s.log.Info().Str("name", name).Msg("registration rejected: invalid name")
		return
	}
	if err := h.registry.Register(name, s); err != nil {
		_ = s.writeNow(proto.TagServer + " 닉네임이 중복됩니다. 다른 닉네임을 입력해주세요.")
		s.log.Info().Str("name", name).Msg("registration rejected: name taken")
		return
	}

	s.advance(StateActive)
	defer func() {
		s.advance(StateClosing)
		h.registry.Unregister(s)
	}()

	for {
		frame, err := s.reader.ReadFrame()
		if err != nil {
			if errors.Is(err, proto.ErrMalformed) {
				s.reply(proto.TagServer + " 잘못된 메시지 형식입니다.")
				continue
			}
			if errors.Is(err, proto.ErrStreamClosed) {
				s.log.Info().Str("name", s.Name()).Msg("connection closed")
			} else {
				s.log.Warn().Err(err).Str("name", s.Name()).Msg("read failed")
			}
			return
		}
		if h.router.Dispatch(s, frame) {
			return
		}
	}
}

func (h *Hub) track(s *Session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return false
	}
	h.live[s] = struct{}{}
	h.sessions.Add(1)
	return true
}

func (h *Hub) untrack(s *Session) {
	h.mu.Lock()
	delete(h.live, s)
	h.mu.Unlock()
	h.sessions.Done()
}

// Shutdown closes every live session, registered or not, and waits for their
// receive loops to finish or ctx to expire. Queued frames are not drained.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	live := make([]*Session, 0, len(h.live))
	for s := range h.live {
		live = append(live, s)
	}
	h.mu.Unlock()

	for _, s := range live {
		_ = s.Close()
	}

	done := make(chan struct{})
	go func() {
		h.sessions.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
