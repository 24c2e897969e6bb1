package core

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		frame  string
		kind   CommandKind
		target string
		text   string
	}{
		{frame: "hello there", kind: CommandChat, text: "hello there"},
		{frame: "/rename: carol ", kind: CommandRename, target: "carol"},
		{frame: "/to:bob/hi there", kind: CommandWhisper, target: "bob", text: "hi there"},
		{frame: "/to:bob/a/b", kind: CommandWhisper, target: "bob", text: "a/b"},
		{frame: "/users", kind: CommandUsers},
		{frame: " /logs ", kind: CommandLogs},
		{frame: "/img:photo.png", kind: CommandUpload, target: "photo.png"},
		{frame: "/download:photo.png", kind: CommandDownload, target: "photo.png"},
		{frame: "quit", kind: CommandQuit},
		{frame: "QUIT", kind: CommandQuit},
		{frame: "/usersx", kind: CommandChat, text: "/usersx"},
		{frame: "/users now", kind: CommandUsers},
		{frame: "/logs\tplease", kind: CommandLogs},
		{frame: "   ", kind: CommandChat, text: "   "},
	}

	for _, tt := range tests {
		cmd, err := ParseCommand(tt.frame)
		if err != nil {
			t.Fatalf("ParseCommand(%q): %v", tt.frame, err)
		}
		if cmd.Kind != tt.kind || cmd.Target != tt.target || cmd.Text != tt.text {
			t.Fatalf("ParseCommand(%q) = %+v", tt.frame, cmd)
		}
		if cmd.Raw != tt.frame {
			t.Fatalf("raw frame not kept: %q", cmd.Raw)
		}
	}
}

func TestParseCommandMalformed(t *testing.T) {
	tests := []struct {
		frame string
		kind  CommandKind
	}{
		{frame: "/rename:", kind: CommandRename},
		{frame: "/rename:a/b", kind: CommandRename},
		{frame: "/rename:a:b", kind: CommandRename},
		{frame: "/to:bob", kind: CommandWhisper},
		{frame: "/to:/hi", kind: CommandWhisper},
		{frame: "/img:", kind: CommandUpload},
		{frame: "/download: ", kind: CommandDownload},
	}

	for _, tt := range tests {
		cmd, err := ParseCommand(tt.frame)
		if !errors.Is(err, ErrMalformed) {
			t.Fatalf("ParseCommand(%q): expected ErrMalformed, got %v", tt.frame, err)
		}
		if cmd.Kind != tt.kind {
			t.Fatalf("ParseCommand(%q) kind = %s, want %s", tt.frame, cmd.Kind, tt.kind)
		}
		var ce *CoreError
		if !errors.As(err, &ce) || ce.Code != ErrCodeMalformed || !strings.HasPrefix(ce.Message, "[서버]") {
			t.Fatalf("ParseCommand(%q): unexpected error %#v", tt.frame, err)
		}
	}
}

func TestValidateName(t *testing.T) {
	if err := ValidateName("앨리스"); err != nil {
		t.Fatalf("valid name rejected: %v", err)
	}
	for _, name := range []string{"", "a/b", "a:b", strings.Repeat("x", maxNameBytes+1), "\xff"} {
		if err := ValidateName(name); !errors.Is(err, ErrMalformed) {
			t.Fatalf("ValidateName(%q) = %v", name, err)
		}
	}
}

func TestMessageString(t *testing.T) {
	at := time.Date(2024, 5, 1, 9, 4, 5, 0, time.UTC)

	chat := Message{From: "alice", Text: "hi", CreatedAt: at}
	if got := chat.String(); got != "[alice](09:04:05): hi" {
		t.Fatalf("chat line = %q", got)
	}
	whisper := Message{From: "alice", Text: "psst", CreatedAt: at, Private: true}
	if got := whisper.String(); got != "[귓속말][alice](09:04:05): psst" {
		t.Fatalf("whisper line = %q", got)
	}
}

func TestFormatLogsKeepsNewest(t *testing.T) {
	entries := []Entry{{Text: "first"}, {Text: "second"}, {Text: "third"}}

	if got := FormatLogs(entries, 1000); got != "[서버 로그]\nfirst\nsecond\nthird\n" {
		t.Fatalf("full logs = %q", got)
	}

	limit := len("[서버 로그]\n") + len("second\n") + len("third\n")
	if got := FormatLogs(entries, limit); got != "[서버 로그]\nsecond\nthird\n" {
		t.Fatalf("trimmed logs = %q", got)
	}
}
