package proto

import (
	"fmt"
	"strconv"
	"strings"
)

// Client to server command prefixes.
const (
	PrefixRename   = "/rename:"
	PrefixWhisper  = "/to:"
	PrefixUpload   = "/img:"
	PrefixDownload = "/download:"

	CommandUsers = "/users"
	CommandLogs  = "/logs"
	CommandQuit  = "quit"
)

// Server to client prefixes.
const (
	// PrefixFile starts an announce frame; exactly <size> raw bytes follow it.
	PrefixFile = "/file:"

	TagJoin    = "[입장]"
	TagLeave   = "[퇴장]"
	TagWhisper = "[귓속말]"
	TagImage   = "[이미지]"
	TagServer  = "[서버]"
	TagCommand = "[명령어]"
)

// TimeLayout formats timestamps inside chat and whisper lines.
const TimeLayout = "15:04:05"

// FileAnnounce formats the frame that precedes a download payload.
func FileAnnounce(name string, size int64) string {
	return fmt.Sprintf("%s%s:%d", PrefixFile, name, size)
}

// ParseFileAnnounce splits an announce frame into name and size. The size is
// taken after the last colon so names with colons survive.
func ParseFileAnnounce(frame string) (string, int64, error) {
	rest, ok := strings.CutPrefix(frame, PrefixFile)
	if !ok {
		return "", 0, fmt.Errorf("%w: not a file announce", ErrMalformed)
	}
	idx := strings.LastIndexByte(rest, ':')
	if idx <= 0 {
		return "", 0, fmt.Errorf("%w: missing size", ErrMalformed)
	}
	size, err := strconv.ParseInt(strings.TrimSpace(rest[idx+1:]), 10, 64)
	if err != nil || size < 0 {
		return "", 0, fmt.Errorf("%w: bad size %q", ErrMalformed, rest[idx+1:])
	}
	return strings.TrimSpace(rest[:idx]), size, nil
}
