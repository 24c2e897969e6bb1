package http

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/vovakirdan/streamchat/internal/config"
	"github.com/vovakirdan/streamchat/internal/core"
	"github.com/vovakirdan/streamchat/internal/proto"
	"github.com/vovakirdan/streamchat/internal/store/fsstore"
	"github.com/vovakirdan/streamchat/internal/store/sqlite"
)

func startTestServer(t *testing.T, deps Deps) (*httptest.Server, *core.Hub) {
	t.Helper()

	if deps.Hub == nil {
		deps.Hub = core.NewHub(core.DefaultHubConfig(), nil, nil, nil, nil)
	}
	server := NewServer(deps, config.Config{
		HTTPAddr:          ":0",
		ReadHeaderTimeout: time.Second,
		ShutdownTimeout:   time.Second,
	}, nil)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = deps.Hub.Shutdown(ctx)
		ts.Close()
	})
	return ts, deps.Hub
}

func getJSON(t *testing.T, ts *httptest.Server, path string, out any) int {
	t.Helper()

	resp, err := ts.Client().Get(ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

func dialWS(t *testing.T, ts *httptest.Server, name string) (net.Conn, *proto.Reader, *proto.Writer) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := strings.Replace(ts.URL, "http", "ws", 1) + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	nc := websocket.NetConn(context.Background(), conn, websocket.MessageBinary)
	t.Cleanup(func() { nc.Close() })

	w := proto.NewWriter(nc)
	if err := w.WriteFrame(name); err != nil {
		t.Fatalf("send name: %v", err)
	}
	return nc, proto.NewReader(nc), w
}

func waitForUser(t *testing.T, hub *core.Hub, name string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.Registry().Lookup(name) != nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("%s was not registered", name)
}

func TestHealthEndpoint(t *testing.T) {
	ts, _ := startTestServer(t, Deps{})

	resp, err := ts.Client().Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestWebSocketChatAndRoster(t *testing.T) {
	ts, hub := startTestServer(t, Deps{})

	aliceConn, aliceR, _ := dialWS(t, ts, "alice")
	waitForUser(t, hub, "alice")
	_, _, bobW := dialWS(t, ts, "bob")
	waitForUser(t, hub, "bob")

	var users UsersResponse
	if status := getJSON(t, ts, "/api/users", &users); status != http.StatusOK {
		t.Fatalf("unexpected status: %d", status)
	}
	if users.Count != 2 || strings.Join(users.Users, ",") != "alice,bob" {
		t.Fatalf("unexpected users: %+v", users)
	}

	if err := bobW.WriteFrame("hi there"); err != nil {
		t.Fatalf("send: %v", err)
	}

	_ = aliceConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		frame, err := aliceR.ReadFrame()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if strings.HasPrefix(frame, "[bob](") {
			if !strings.HasSuffix(frame, "): hi there") {
				t.Fatalf("unexpected line %q", frame)
			}
			break
		}
	}

	var logs LogsResponse
	getJSON(t, ts, "/api/logs?limit=50", &logs)
	var joined bool
	for _, e := range logs.Entries {
		if e.Text == "[입장] bob (현재 인원: 2)" {
			joined = true
		}
	}
	if logs.Source != "memory" || !joined {
		t.Fatalf("unexpected logs: %+v", logs)
	}
}

func TestLogsFromStore(t *testing.T) {
	st, err := sqlite.NewWithSetup(":memory:", sqlite.ApplySchema)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	_ = st.AppendEntry(ctx, time.Now(), "first")
	_ = st.AppendEntry(ctx, time.Now(), "second")

	ts, _ := startTestServer(t, Deps{Journal: st})

	var logs LogsResponse
	if status := getJSON(t, ts, "/api/logs?source=store&limit=1", &logs); status != http.StatusOK {
		t.Fatalf("unexpected status: %d", status)
	}
	if len(logs.Entries) != 1 || logs.Entries[0].Text != "second" {
		t.Fatalf("unexpected entries: %+v", logs.Entries)
	}

	if status := getJSON(t, ts, "/api/logs?limit=abc", nil); status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
	if status := getJSON(t, ts, "/api/logs?source=nowhere", nil); status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
}

func TestFilesEndpoints(t *testing.T) {
	st, err := sqlite.NewWithSetup(":memory:", sqlite.ApplySchema)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	defer st.Close()
	if err := st.RecordArtifact(context.Background(), "photo.png", 1000, "alice"); err != nil {
		t.Fatalf("record: %v", err)
	}

	ts, _ := startTestServer(t, Deps{Artifacts: st})

	var files []FileResponse
	getJSON(t, ts, "/api/files", &files)
	if len(files) != 1 || files[0].Name != "photo.png" || files[0].Uploader != "alice" {
		t.Fatalf("unexpected files: %+v", files)
	}

	var file FileResponse
	if status := getJSON(t, ts, "/api/files/photo.png", &file); status != http.StatusOK || file.Size != 1000 {
		t.Fatalf("unexpected file: %d %+v", status, file)
	}
	if status := getJSON(t, ts, "/api/files/missing.png", nil); status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
}

func TestFilesFallBackToDisk(t *testing.T) {
	disk, err := fsstore.New(t.TempDir())
	if err != nil {
		t.Fatalf("fsstore: %v", err)
	}
	w, _ := disk.Create("notes.txt")
	_, _ = w.Write([]byte("hello"))
	_ = w.Close()

	ts, _ := startTestServer(t, Deps{Files: disk})

	var files []FileResponse
	getJSON(t, ts, "/api/files", &files)
	if len(files) != 1 || files[0].Name != "notes.txt" || files[0].Size != 5 || files[0].Uploader != "" {
		t.Fatalf("unexpected files: %+v", files)
	}
}
