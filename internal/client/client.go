// Package client speaks the framed chat protocol from the participant side.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/streamchat/internal/core"
	"github.com/vovakirdan/streamchat/internal/proto"
)

// DownloadPrefix is prepended to the names of saved downloads.
const DownloadPrefix = "downloaded_"

// Handlers receives what the server sends. Nil fields are ignored.
type Handlers struct {
	// OnFrame is called for every text frame except file announces.
	OnFrame func(text string)
	// OnFile is called after a download was saved to path.
	OnFile func(path string, size int64)
	// OnError reports failures that do not end the stream, such as a
	// download that could not be written to disk.
	OnError func(err error)
}

// Option configures a Client.
type Option func(*Client)

// WithDownloadDir saves downloads under dir instead of the working directory.
func WithDownloadDir(dir string) Option {
	return func(c *Client) { c.downloadDir = dir }
}

// WithLogger sets the diagnostics logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(c *Client) { c.log = logger }
}

// Client is one participant connection. Sends are safe for concurrent use;
// Receive must run on a single goroutine.
type Client struct {
	conn net.Conn
	r    *proto.Reader

	mu sync.Mutex
	w  *proto.Writer

	downloadDir string
	log         *zerolog.Logger
}

// Dial connects over TCP and registers name.
func Dial(ctx context.Context, addr, name string, opts ...Option) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return New(conn, name, opts...)
}

// DialWS connects over a WebSocket endpoint and registers name. The same
// framed protocol runs inside binary messages.
func DialWS(ctx context.Context, url, name string, opts ...Option) (*Client, error) {
	ws, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return New(websocket.NetConn(context.Background(), ws, websocket.MessageBinary), name, opts...)
}

// New wraps an established connection and sends the registration frame.
func New(conn net.Conn, name string, opts ...Option) (*Client, error) {
	c := &Client{
		conn: conn,
		r:    proto.NewReader(conn),
		w:    proto.NewWriter(conn),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		nop := zerolog.Nop()
		c.log = &nop
	}

	if err := c.Send(name); err != nil {
		conn.Close()
		return nil, fmt.Errorf("register: %w", err)
	}
	return c, nil
}

// Send writes one text frame.
func (c *Client) Send(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.w.WriteFrame(text)
}

// SendFile uploads the file at path under its base name.
func (c *Client) SendFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", path)
	}
	return c.Upload(filepath.Base(path), f, info.Size())
}

// Upload sends the upload frame, the 8-byte length and exactly size bytes
// from body as one unit; no other frame can interleave.
func (c *Client) Upload(name string, body io.Reader, size int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.w.WriteFrame(proto.PrefixUpload + name); err != nil {
		return err
	}
	if err := c.w.WriteLength(size); err != nil {
		return err
	}
	if err := c.w.WriteRaw(body, size); err != nil {
		// The server is now waiting for bytes that will never arrive.
		c.conn.Close()
		return fmt.Errorf("upload %s: %w", name, err)
	}
	return nil
}

// Download asks the server for a stored artifact. The payload arrives through
// Receive.
func (c *Client) Download(name string) error {
	return c.Send(proto.PrefixDownload + name)
}

// Quit tells the server the session is over and closes the connection.
func (c *Client) Quit() error {
	sendErr := c.Send(proto.CommandQuit)
	closeErr := c.conn.Close()
	if sendErr != nil {
		return sendErr
	}
	return closeErr
}

// Close closes the connection without saying goodbye.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Receive dispatches server frames to h until the stream ends. A stream closed
// by either side returns nil.
func (c *Client) Receive(h Handlers) error {
	for {
		frame, err := c.r.ReadFrame()
		if err != nil {
			if errors.Is(err, proto.ErrStreamClosed) {
				return nil
			}
			if errors.Is(err, proto.ErrMalformed) {
				c.log.Warn().Err(err).Msg("skipping malformed frame")
				continue
			}
			return err
		}

		if !strings.HasPrefix(frame, proto.PrefixFile) {
			if h.OnFrame != nil {
				h.OnFrame(frame)
			}
			continue
		}

		if err := c.receiveFile(frame, h); err != nil {
			return err
		}
	}
}

// receiveFile consumes the payload that follows an announce. Only stream
// failures are returned; local failures go to h.OnError.
func (c *Client) receiveFile(frame string, h Handlers) error {
	name, size, err := proto.ParseFileAnnounce(frame)
	if err != nil {
		// Without a size the stream cannot be resynchronized.
		return fmt.Errorf("bad file announce %q: %w", frame, err)
	}
	if err := c.r.ExpectRaw(size); err != nil {
		return err
	}

	path, werr := c.save(name)
	if werr != nil {
		if _, err := c.r.Discard(); err != nil {
			return streamErr(err)
		}
		report(h, werr)
		return nil
	}

	n, err := c.r.ReadRaw(path.file)
	closeErr := path.file.Close()
	switch {
	case errors.Is(err, proto.ErrStreamClosed):
		return nil
	case err != nil:
		if _, derr := c.r.Discard(); derr != nil {
			return streamErr(derr)
		}
		report(h, fmt.Errorf("save %s: %w", path.name, err))
		return nil
	case closeErr != nil:
		report(h, fmt.Errorf("save %s: %w", path.name, closeErr))
		return nil
	}

	c.log.Debug().Str("file", path.name).Int64("size", n).Msg("download saved")
	if h.OnFile != nil {
		h.OnFile(path.name, n)
	}
	return nil
}

type savedFile struct {
	name string
	file *os.File
}

func (c *Client) save(announced string) (savedFile, error) {
	base, err := core.BaseName(announced)
	if err != nil {
		return savedFile{}, fmt.Errorf("unsafe download name %q", announced)
	}
	name := filepath.Join(c.downloadDir, DownloadPrefix+base)
	f, err := os.Create(name)
	if err != nil {
		return savedFile{}, fmt.Errorf("create %s: %w", name, err)
	}
	return savedFile{name: name, file: f}, nil
}

func report(h Handlers, err error) {
	if h.OnError != nil {
		h.OnError(err)
	}
}

func streamErr(err error) error {
	if errors.Is(err, proto.ErrStreamClosed) {
		return nil
	}
	return err
}
