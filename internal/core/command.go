package core

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/vovakirdan/streamchat/internal/proto"
)

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandChat broadcasts a chat line to everyone else.
	CommandChat CommandKind = iota
	// CommandRename changes the sender's display name.
	CommandRename
	// CommandWhisper delivers a private message to one session.
	CommandWhisper
	// CommandUsers lists the current roster.
	CommandUsers
	// CommandLogs returns the server journal.
	CommandLogs
	// CommandUpload ingests a file payload that follows the frame.
	CommandUpload
	// CommandDownload streams a stored artifact back to the sender.
	CommandDownload
	// CommandQuit ends the session.
	CommandQuit
)

var commandNames = map[CommandKind]string{
	CommandChat:     "chat",
	CommandRename:   "rename",
	CommandWhisper:  "whisper",
	CommandUsers:    "users",
	CommandLogs:     "logs",
	CommandUpload:   "upload",
	CommandDownload: "download",
	CommandQuit:     "quit",
}

func (k CommandKind) String() string {
	if name, ok := commandNames[k]; ok {
		return name
	}
	return "unknown"
}

// Command represents an action requested by a client.
type Command struct {
	Kind CommandKind
	Raw  string
	// Target is the new name, whisper recipient or file name, depending on Kind.
	Target string
	Text   string
}

// maxNameBytes bounds display names.
const maxNameBytes = 64

// ParseCommand maps one frame to a Command. It never touches shared state.
// On error the returned Command still carries the Kind, so callers can keep the
// stream in sync for commands that are followed by a payload.
func ParseCommand(frame string) (Command, error) {
	cmd := Command{Raw: frame}
	trimmed := strings.TrimSpace(frame)

	switch {
	case strings.HasPrefix(frame, proto.PrefixRename):
		cmd.Kind = CommandRename
		cmd.Target = strings.TrimSpace(strings.TrimPrefix(frame, proto.PrefixRename))
		if cmd.Target == "" {
			return cmd, malformed(proto.TagServer + " 닉네임은 공백일 수 없습니다.")
		}
		if err := ValidateName(cmd.Target); err != nil {
			return cmd, err
		}
	case strings.HasPrefix(frame, proto.PrefixWhisper):
		cmd.Kind = CommandWhisper
		rest := strings.TrimPrefix(frame, proto.PrefixWhisper)
		recipient, text, ok := strings.Cut(rest, "/")
		if !ok {
			return cmd, malformed(proto.TagServer + " 귓속말 형식 오류. 사용법: /to:닉네임/메시지")
		}
		cmd.Target = strings.TrimSpace(recipient)
		cmd.Text = strings.TrimSpace(text)
		if cmd.Target == "" {
			return cmd, malformed(proto.TagServer + " 수신자 닉네임이 비어있습니다.")
		}
	case strings.HasPrefix(frame, proto.PrefixUpload):
		cmd.Kind = CommandUpload
		cmd.Target = strings.TrimSpace(strings.TrimPrefix(frame, proto.PrefixUpload))
		if cmd.Target == "" {
			return cmd, malformed(proto.TagServer + " 이미지 전송 형식 오류. 사용법: /img:파일경로")
		}
	case strings.HasPrefix(frame, proto.PrefixDownload):
		cmd.Kind = CommandDownload
		cmd.Target = strings.TrimSpace(strings.TrimPrefix(frame, proto.PrefixDownload))
		if cmd.Target == "" {
			return cmd, malformed(proto.TagServer + " 다운로드 형식 오류. 사용법: /download:파일명")
		}
	case commandWord(trimmed) == proto.CommandUsers:
		cmd.Kind = CommandUsers
	case commandWord(trimmed) == proto.CommandLogs:
		cmd.Kind = CommandLogs
	case strings.EqualFold(trimmed, proto.CommandQuit):
		cmd.Kind = CommandQuit
	default:
		cmd.Kind = CommandChat
		cmd.Text = frame
	}
	return cmd, nil
}

// commandWord returns the first whitespace-separated word, so "/users now"
// still lists users while "/usersx" stays chat.
func commandWord(s string) string {
	if i := strings.IndexFunc(s, unicode.IsSpace); i >= 0 {
		return s[:i]
	}
	return s
}

// ValidateName checks a proposed display name. Names cannot contain '/' or
// ':', the delimiters of whisper and command frames.
func ValidateName(name string) error {
	switch {
	case name == "":
		return malformed(proto.TagServer + " 닉네임은 공백일 수 없습니다.")
	case strings.ContainsAny(name, "/:"):
		return malformed(proto.TagServer + " 닉네임에 '/' 또는 ':' 문자를 사용할 수 없습니다.")
	case len(name) > maxNameBytes || !utf8.ValidString(name):
		return malformed(proto.TagServer + " 닉네임이 너무 깁니다.")
	}
	return nil
}
