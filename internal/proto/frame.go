package proto

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// MaxFrameBytes is the largest text payload a single frame can carry.
const MaxFrameBytes = 0xFFFF

var (
	// ErrStreamClosed is returned when the peer goes away before a unit is complete.
	ErrStreamClosed = errors.New("stream closed")
	// ErrMalformed is returned when a frame or length header cannot be decoded.
	ErrMalformed = errors.New("malformed frame")
	// ErrFrameTooLarge is returned when a text does not fit into one frame.
	ErrFrameTooLarge = errors.New("frame too large")
	// ErrRawPending is returned when a frame is read while raw bytes are still expected.
	ErrRawPending = errors.New("raw payload pending")
)

// Mode tells what the next unit on a stream is.
type Mode int

const (
	// ModeFrame means the next unit is a length-prefixed text frame.
	ModeFrame Mode = iota
	// ModeRaw means the next unit is a run of raw bytes announced earlier.
	ModeRaw
)

func (m Mode) String() string {
	if m == ModeRaw {
		return "raw"
	}
	return "frame"
}

// Reader decodes frames and raw runs from a byte stream.
// It is owned by a single goroutine.
type Reader struct {
	br      *bufio.Reader
	pending int64
}

// NewReader wraps r in a buffered frame reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReader(r)}
}

// Mode reports whether the reader expects a frame or raw bytes next.
func (r *Reader) Mode() Mode {
	if r.pending > 0 {
		return ModeRaw
	}
	return ModeFrame
}

// Pending returns the number of raw bytes still expected.
func (r *Reader) Pending() int64 {
	return r.pending
}

// ReadFrame blocks until one full frame is available and returns its text.
func (r *Reader) ReadFrame() (string, error) {
	if r.pending > 0 {
		return "", fmt.Errorf("%w: %d bytes", ErrRawPending, r.pending)
	}

	var header [2]byte
	if _, err := io.ReadFull(r.br, header[:]); err != nil {
		return "", closedErr(err)
	}

	size := binary.BigEndian.Uint16(header[:])
	buf := make([]byte, size)
	if _, err := io.ReadFull(r.br, buf); err != nil {
		return "", closedErr(err)
	}
	if !utf8.Valid(buf) {
		return "", fmt.Errorf("%w: invalid utf-8", ErrMalformed)
	}
	return string(buf), nil
}

// ReadLength reads an 8-byte big-endian length header.
func (r *Reader) ReadLength() (int64, error) {
	if r.pending > 0 {
		return 0, fmt.Errorf("%w: %d bytes", ErrRawPending, r.pending)
	}

	var header [8]byte
	if _, err := io.ReadFull(r.br, header[:]); err != nil {
		return 0, closedErr(err)
	}
	n := int64(binary.BigEndian.Uint64(header[:]))
	if n < 0 {
		return 0, fmt.Errorf("%w: negative length %d", ErrMalformed, n)
	}
	return n, nil
}

// ExpectRaw switches the reader into raw mode for the next n bytes.
func (r *Reader) ExpectRaw(n int64) error {
	if n < 0 {
		return fmt.Errorf("%w: negative length %d", ErrMalformed, n)
	}
	if r.pending > 0 {
		return fmt.Errorf("%w: %d bytes", ErrRawPending, r.pending)
	}
	r.pending = n
	return nil
}

// ReadRaw copies the pending raw bytes into dst. If the stream ends early it
// returns the count received together with ErrStreamClosed. If dst fails, the
// bytes not yet copied stay pending so the caller can Discard them.
func (r *Reader) ReadRaw(dst io.Writer) (int64, error) {
	src := &sourceReader{r: r.br}
	n, err := io.CopyN(dst, src, r.pending)
	r.pending -= n
	if err == nil {
		return n, nil
	}
	if src.err != nil || errors.Is(err, io.EOF) {
		r.pending = 0
		return n, closedErr(err)
	}
	return n, err
}

// sourceReader remembers read failures so ReadRaw can tell them apart from
// failures of the destination.
type sourceReader struct {
	r   io.Reader
	err error
}

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil {
		s.err = err
	}
	return n, err
}

// Discard drops the pending raw bytes.
func (r *Reader) Discard() (int64, error) {
	return r.ReadRaw(io.Discard)
}

// Writer encodes frames and raw runs onto a byte stream. It is not safe for
// concurrent use; callers serialize access.
type Writer struct {
	bw *bufio.Writer
}

// NewWriter wraps w in a buffered frame writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{bw: bufio.NewWriter(w)}
}

// WriteFrame writes one length-prefixed frame and flushes it.
func (w *Writer) WriteFrame(text string) error {
	if len(text) > MaxFrameBytes {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(text))
	}

	var header [2]byte
	binary.BigEndian.PutUint16(header[:], uint16(len(text)))
	if _, err := w.bw.Write(header[:]); err != nil {
		return err
	}
	if _, err := w.bw.WriteString(text); err != nil {
		return err
	}
	return w.bw.Flush()
}

// WriteLength writes an 8-byte big-endian length header without flushing; the
// raw bytes that follow complete the unit.
func (w *Writer) WriteLength(n int64) error {
	var header [8]byte
	binary.BigEndian.PutUint64(header[:], uint64(n))
	_, err := w.bw.Write(header[:])
	return err
}

// WriteRaw copies exactly n bytes from src and flushes.
func (w *Writer) WriteRaw(src io.Reader, n int64) error {
	written, err := io.CopyN(w.bw, src, n)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("raw payload short by %d bytes: %w", n-written, io.ErrUnexpectedEOF)
		}
		return err
	}
	return w.bw.Flush()
}

func closedErr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrStreamClosed
	}
	return fmt.Errorf("%w: %v", ErrStreamClosed, err)
}
