package app

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vovakirdan/streamchat/internal/client"
	"github.com/vovakirdan/streamchat/internal/config"
	"github.com/vovakirdan/streamchat/internal/store/sqlite"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Addr = "127.0.0.1:0"
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.StorageDir = filepath.Join(dir, "uploads")
	cfg.DatabasePath = filepath.Join(dir, "chat.db")
	cfg.LogFile = filepath.Join(dir, "server_logs.txt")
	cfg.ShutdownTimeout = 2 * time.Second
	return cfg
}

func TestAppServesAndShutsDown(t *testing.T) {
	cfg := testConfig(t)

	a, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- a.Run(ctx) }()

	dialCtx, dialCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer dialCancel()
	alice, err := client.Dial(dialCtx, a.TCPAddr().String(), "alice")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer alice.Close()

	frames := make(chan string, 16)
	go func() {
		_ = alice.Receive(client.Handlers{OnFrame: func(text string) { frames <- text }})
		close(frames)
	}()

	if err := alice.Send("/users"); err != nil {
		t.Fatalf("send: %v", err)
	}
	timeout := time.After(2 * time.Second)
	for roster := ""; !strings.HasPrefix(roster, "[현재 접속자 목록]"); {
		select {
		case roster = <-frames:
		case <-timeout:
			t.Fatal("no roster reply")
		}
		if strings.HasPrefix(roster, "[현재 접속자 목록]") && roster != "[현재 접속자 목록]\nalice\n" {
			t.Fatalf("unexpected roster %q", roster)
		}
	}

	resp, err := http.Get("http://" + a.HTTPAddr().String() + "/api/users")
	if err != nil {
		t.Fatalf("GET /api/users: %v", err)
	}
	var users struct {
		Count int      `json:"count"`
		Users []string `json:"users"`
	}
	err = json.NewDecoder(resp.Body).Decode(&users)
	resp.Body.Close()
	if err != nil || users.Count != 1 || users.Users[0] != "alice" {
		t.Fatalf("unexpected users: %+v (%v)", users, err)
	}

	cancel()
	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}

	// The session was closed by shutdown.
	for range frames {
	}

	data, err := os.ReadFile(cfg.LogFile)
	if err != nil {
		t.Fatalf("read journal file: %v", err)
	}
	if !strings.Contains(string(data), "[입장] alice (현재 인원: 1)") {
		t.Fatalf("journal file missing join:\n%s", data)
	}

	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer st.Close()
	entries, err := st.ListEntries(context.Background(), 10)
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) == 0 || entries[0].Text != "[입장] alice (현재 인원: 1)" {
		t.Fatalf("unexpected stored entries: %+v", entries)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Addr = ""
	cfg.HTTPAddr = ""

	if _, err := New(cfg, nil); err == nil {
		t.Fatal("expected config error")
	}
}

func TestNewFailsOnBusyAddress(t *testing.T) {
	first, err := New(testConfig(t), nil)
	if err != nil {
		t.Fatalf("first app: %v", err)
	}
	defer first.cleanup()

	cfg := testConfig(t)
	cfg.Addr = first.TCPAddr().String()
	if _, err := New(cfg, nil); err == nil {
		t.Fatal("expected listen error")
	}
}
