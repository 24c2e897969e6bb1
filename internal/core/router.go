package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/streamchat/internal/proto"
)

// Router turns decoded frames into registry, relay and session operations.
type Router struct {
	registry *Registry
	journal  *Journal
	relay    *Relay
	now      func() time.Time
	log      *zerolog.Logger
}

// NewRouter builds a router. relay may be nil when file transfer is disabled.
func NewRouter(registry *Registry, journal *Journal, relay *Relay, logger *zerolog.Logger) *Router {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Router{
		registry: registry,
		journal:  journal,
		relay:    relay,
		now:      time.Now,
		log:      logger,
	}
}

// Dispatch handles one frame from s. It returns true when the session must
// close: on quit, or when the stream can no longer be trusted.
func (rt *Router) Dispatch(s *Session, frame string) bool {
	cmd, err := ParseCommand(frame)
	rt.log.Debug().Str("session_id", s.ID).Str("cmd", cmd.Kind.String()).Msg("dispatch")

	if err != nil {
		if cmd.Kind == CommandUpload {
			// The client sends the payload regardless; keep the stream aligned.
			if rt.relay == nil {
				return true
			}
			if _, drainErr := rt.relay.Ingest(s, ""); errors.Is(drainErr, ErrStreamClosed) {
				return true
			}
		}
		rt.replyErr(s, err)
		return false
	}

	switch cmd.Kind {
	case CommandChat:
		rt.chat(s, cmd)
	case CommandRename:
		rt.rename(s, cmd)
	case CommandWhisper:
		rt.whisper(s, cmd)
	case CommandUsers:
		rt.users(s)
	case CommandLogs:
		rt.logs(s)
	case CommandUpload:
		return rt.upload(s, cmd)
	case CommandDownload:
		rt.download(s, cmd)
	case CommandQuit:
		rt.logCommand(s.Name(), cmd.Raw, "접속 종료")
		return true
	}
	return false
}

func (rt *Router) chat(s *Session, cmd Command) {
	if !s.allow() {
		rt.replyErr(s, coreError(ErrCodeRateLimited,
			proto.TagServer+" 메시지를 너무 빠르게 보내고 있습니다. 잠시 후 다시 시도하세요.", ErrRateLimited))
		return
	}
	line := Message{From: s.Name(), Text: cmd.Text, CreatedAt: rt.now()}.String()
	if len(line) > proto.MaxFrameBytes {
		rt.replyErr(s, errLineTooLong)
		return
	}
	rt.registry.Broadcast(s, line)
}

func (rt *Router) rename(s *Session, cmd Command) {
	oldName, err := rt.registry.Rename(s, cmd.Target)
	switch {
	case err == nil:
		s.reply(fmt.Sprintf("%s 닉네임이 %s(으)로 변경되었습니다.", proto.TagServer, cmd.Target))
		rt.logCommand(oldName, cmd.Raw, "닉네임 변경 성공")
	case errors.Is(err, ErrNameTaken):
		s.reply(proto.TagServer + " 닉네임 중복. 변경 실패.")
		rt.logCommand(oldName, cmd.Raw, "닉네임 변경 실패 - 중복")
	default:
		rt.log.Warn().Err(err).Str("session_id", s.ID).Msg("rename failed")
		s.reply(proto.TagServer + " 닉네임 변경에 실패했습니다.")
	}
}

func (rt *Router) whisper(s *Session, cmd Command) {
	if !s.allow() {
		rt.replyErr(s, coreError(ErrCodeRateLimited,
			proto.TagServer+" 메시지를 너무 빠르게 보내고 있습니다. 잠시 후 다시 시도하세요.", ErrRateLimited))
		return
	}

	from := s.Name()
	line := Message{From: from, Text: cmd.Text, CreatedAt: rt.now(), Private: true}.String()
	if len(line) > proto.MaxFrameBytes {
		rt.replyErr(s, errLineTooLong)
		return
	}
	if err := rt.registry.Whisper(cmd.Target, line); err != nil {
		s.reply(proto.TagServer + " 수신자가 존재하지 않습니다.")
		rt.logCommand(from, cmd.Raw, "귓속말 전송 실패 - 수신자 없음")
		return
	}
	s.reply(fmt.Sprintf("%s %s에게 메시지를 보냈습니다.", proto.TagWhisper, cmd.Target))
	rt.logCommand(from, cmd.Raw, "귓속말 전송 성공")
}

// rosterMore ends a roster that does not fit in one frame; rosterReserve
// bytes are kept free for it.
const (
	rosterMore    = "... 외 %d명\n"
	rosterReserve = 32
)

func (rt *Router) users(s *Session) {
	var b strings.Builder
	b.WriteString("[현재 접속자 목록]\n")
	names := rt.registry.Snapshot()
	for i, name := range names {
		if b.Len()+len(name)+1 > proto.MaxFrameBytes-rosterReserve {
			fmt.Fprintf(&b, rosterMore, len(names)-i)
			break
		}
		b.WriteString(name)
		b.WriteByte('\n')
	}
	s.reply(b.String())
}

func (rt *Router) logs(s *Session) {
	rt.logCommand(s.Name(), proto.CommandLogs, "로그 요청")
	s.reply(FormatLogs(rt.journal.Entries(), proto.MaxFrameBytes))
}

// FormatLogs renders entries for the /logs reply, keeping the newest entries
// that fit in limit bytes.
func FormatLogs(entries []Entry, limit int) string {
	const header = "[서버 로그]\n"

	size := len(header)
	start := len(entries)
	for start > 0 {
		next := len(entries[start-1].Text) + 1
		if size+next > limit {
			break
		}
		size += next
		start--
	}

	var b strings.Builder
	b.Grow(size)
	b.WriteString(header)
	for _, e := range entries[start:] {
		b.WriteString(e.Text)
		b.WriteByte('\n')
	}
	return b.String()
}

func (rt *Router) upload(s *Session, cmd Command) bool {
	if rt.relay == nil {
		rt.log.Error().Str("session_id", s.ID).Msg("upload without relay, closing stream")
		return true
	}

	up, err := rt.relay.Ingest(s, cmd.Target)
	if err != nil {
		switch {
		case errors.Is(err, ErrSizeMismatch):
			rt.logCommand(s.Name(), cmd.Raw, fmt.Sprintf("이미지 전송 실패 - 크기 불일치 (%d/%d)", up.Received, up.Declared))
		default:
			rt.log.Warn().Err(err).Str("session_id", s.ID).Str("file", cmd.Target).Msg("upload failed")
			rt.logCommand(s.Name(), cmd.Raw, "이미지 전송 실패")
		}
		if errors.Is(err, ErrStreamClosed) {
			return true
		}
		var ce *CoreError
		if errors.As(err, &ce) {
			s.reply(ce.Message)
		} else {
			s.reply(proto.TagServer + " 이미지 전송 중 오류가 발생했습니다: " + up.Name)
		}
		return false
	}

	s.reply(proto.TagServer + " 이미지 전송을 성공적으로 받았습니다: " + up.Name)
	rt.logCommand(s.Name(), cmd.Raw, "이미지 전송 성공")
	rt.registry.Broadcast(s, fmt.Sprintf("%s %s가 이미지를 전송했습니다(다운을 원하시면 %s%s 를 입력하세요.)",
		proto.TagImage, s.Name(), proto.PrefixDownload, up.Name))
	return false
}

func (rt *Router) download(s *Session, cmd Command) {
	if rt.relay == nil {
		s.reply(proto.TagServer + " 파일 전송이 비활성화되어 있습니다.")
		return
	}

	base, body, size, err := rt.relay.Open(cmd.Target)
	if err != nil {
		if errors.Is(err, ErrArtifactNotFound) {
			s.reply(proto.TagServer + " 파일이 존재하지 않습니다: " + base)
			rt.logCommand(s.Name(), cmd.Raw, "다운로드 실패 - 파일 없음")
			return
		}
		rt.log.Warn().Err(err).Str("file", cmd.Target).Msg("download failed")
		rt.replyErr(s, err)
		rt.logCommand(s.Name(), cmd.Raw, "파일 전송 실패")
		return
	}

	if !s.sendFile(base, size, body) {
		return
	}
	s.reply(proto.TagServer + " 파일 전송 완료: " + base)
	rt.logCommand(s.Name(), cmd.Raw, "파일 다운로드 완료")
}

var errLineTooLong = coreError(ErrCodeTooLarge,
	proto.TagServer+" 메시지가 너무 깁니다. 전송되지 않았습니다.", ErrTooLarge)

func (rt *Router) replyErr(s *Session, err error) {
	var ce *CoreError
	if errors.As(err, &ce) {
		s.reply(ce.Message)
		return
	}
	s.reply(proto.TagServer + " 요청을 처리하지 못했습니다.")
}

func (rt *Router) logCommand(name, command, result string) {
	rt.journal.Append(fmt.Sprintf("%s %s -> %s : %s", proto.TagCommand, name, command, result))
}
