package main

import (
	"bytes"
	"context"
	"crypto/rand"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vovakirdan/streamchat/internal/client"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

// run joins the server, sends a chat line, and round-trips a random payload
// through upload and download.
func run() error {
	addr := flag.String("addr", "localhost:18956", "TCP chat address")
	wsURL := flag.String("ws", "", "WebSocket address, e.g. ws://localhost:8080/ws; overrides -addr")
	user := flag.String("user", "tester", "display name to register")
	text := flag.String("text", "hello from smoke test", "chat line to send")
	size := flag.Int("size", 64<<10, "payload size for the file round trip")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	dir, err := os.MkdirTemp("", "ws_smoke")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	var c *client.Client
	if *wsURL != "" {
		c, err = client.DialWS(ctx, *wsURL, *user, client.WithDownloadDir(dir))
	} else {
		c, err = client.Dial(ctx, *addr, *user, client.WithDownloadDir(dir))
	}
	if err != nil {
		return err
	}
	defer c.Close()

	frames := make(chan string, 16)
	files := make(chan string, 1)
	failures := make(chan error, 1)
	go func() {
		_ = c.Receive(client.Handlers{
			OnFrame: func(text string) {
				select {
				case frames <- text:
				default:
				}
			},
			OnFile:  func(path string, _ int64) { files <- path },
			OnError: func(err error) { failures <- err },
		})
		close(frames)
	}()

	if err := c.Send("/users"); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	if err := waitFor(ctx, frames, "[현재 접속자 목록]"); err != nil {
		return err
	}
	fmt.Println("Registered as", *user)

	if err := c.Send(*text); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	payload := make([]byte, *size)
	_, _ = rand.Read(payload)
	name := fmt.Sprintf("smoke-%d.bin", time.Now().UnixNano())
	if err := c.Upload(name, bytes.NewReader(payload), int64(len(payload))); err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	if err := c.Download(name); err != nil {
		return fmt.Errorf("download: %w", err)
	}

	select {
	case path := <-files:
		got, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if !bytes.Equal(got, payload) {
			return fmt.Errorf("payload mismatch: sent %d bytes, got %d", len(payload), len(got))
		}
		fmt.Printf("File round trip ok: %s (%d bytes)\n", filepath.Base(path), len(got))
	case err := <-failures:
		return fmt.Errorf("download: %w", err)
	case <-ctx.Done():
		return fmt.Errorf("waiting for download: %w", ctx.Err())
	}

	return c.Quit()
}

func waitFor(ctx context.Context, frames <-chan string, prefix string) error {
	for {
		select {
		case f, ok := <-frames:
			if !ok {
				return fmt.Errorf("connection closed before %q", prefix)
			}
			fmt.Println("Received:", strings.SplitN(f, "\n", 2)[0])
			if strings.HasPrefix(f, prefix) {
				return nil
			}
		case <-ctx.Done():
			return fmt.Errorf("waiting for %q: %w", prefix, ctx.Err())
		}
	}
}
