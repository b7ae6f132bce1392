// Package stream provides the byte streams demuxers read from: a Stream
// wraps a Source backend (file, memory, SRT, QUIC, or the read-ahead cache)
// with a peek buffer, position tracking, control commands and read stats.
package stream

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"
)

// ProbeSize is the number of bytes a format probe may peek.
const ProbeSize = 2048

const skipChunk = 64 * 1024

// Source is the backend of a Stream. Sources may also implement io.Seeker,
// Sizer, Controller and Seekabler.
type Source interface {
	io.Reader
	io.Closer
}

// Sizer reports the total size of a source in bytes.
type Sizer interface {
	Size() int64
}

// Seekabler overrides the seekability a Stream would infer from io.Seeker.
type Seekabler interface {
	Seekable() bool
}

// Stats captures read-side counters for a stream, in the same shape as the
// ingest connection stats exposed for monitoring.
type Stats struct {
	BytesRead  int64  `json:"bytesRead"`
	ReadCount  int64  `json:"readCount"`
	OpenedAt   int64  `json:"openedAt"`
	UptimeMs   int64  `json:"uptimeMs"`
	RemoteAddr string `json:"remoteAddr,omitempty"`
}

// Stream is a positioned byte stream over a Source. A Stream is used by one
// goroutine at a time, except for Stats which is always safe.
type Stream struct {
	URL string
	// Demuxer names a format the source knows it carries. Open uses it when
	// the caller forces none.
	Demuxer string
	// Uncached is the raw stream below a cache layer, nil without a cache.
	Uncached *Stream

	log      *slog.Logger
	src      Source
	seeker   io.Seeker
	seekable bool
	start    int64
	pos      int64  // position of the next byte Read returns
	buf      []byte // data pulled from src by Peek; buf[off] is at pos
	off      int
	eof      bool
	closed   bool
	remote   string
	openedAt time.Time

	bytesRead atomic.Int64
	readCount atomic.Int64
}

// Option configures a Stream.
type Option func(*Stream)

// WithURL records the URL the stream was opened from.
func WithURL(url string) Option {
	return func(s *Stream) { s.URL = url }
}

// WithDemuxer sets the format hint.
func WithDemuxer(name string) Option {
	return func(s *Stream) { s.Demuxer = name }
}

// WithUncached links the raw stream below a cache.
func WithUncached(raw *Stream) Option {
	return func(s *Stream) { s.Uncached = raw }
}

// WithRemoteAddr records the peer of a network source.
func WithRemoteAddr(addr string) Option {
	return func(s *Stream) { s.remote = addr }
}

// WithStartPos sets the offset demuxers rewind to before probing.
func WithStartPos(pos int64) Option {
	return func(s *Stream) { s.start = pos }
}

// WithLogger sets the logger. If nil, slog.Default() is used.
func WithLogger(log *slog.Logger) Option {
	return func(s *Stream) {
		if log != nil {
			s.log = log
		}
	}
}

// New wraps src. The stream is seekable when src implements io.Seeker, unless
// src says otherwise through Seekabler.
func New(src Source, opts ...Option) *Stream {
	s := &Stream{
		log:      slog.Default(),
		src:      src,
		openedAt: time.Now(),
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With("component", "stream")
	if sk, ok := src.(io.Seeker); ok {
		s.seeker = sk
		s.seekable = true
	}
	if sa, ok := src.(Seekabler); ok {
		s.seekable = sa.Seekable()
	}
	return s
}

func (s *Stream) fill(n int) error {
	for len(s.buf)-s.off < n && !s.eof {
		chunk := make([]byte, n-(len(s.buf)-s.off))
		m, err := s.src.Read(chunk)
		if m > 0 {
			s.bytesRead.Add(int64(m))
			s.readCount.Add(1)
			s.buf = append(s.buf, chunk[:m]...)
		}
		if errors.Is(err, io.EOF) {
			s.eof = true
			return nil
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Peek returns up to n bytes at the current position without consuming
// them. Fewer bytes are returned only at end of stream. Peeked data stays
// buffered until it has all been read, so seeks back into it work even on
// sources that cannot seek.
func (s *Stream) Peek(n int) ([]byte, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if err := s.fill(n); err != nil {
		return nil, fmt.Errorf("peek %d bytes: %w", n, err)
	}
	avail := s.buf[s.off:]
	if n > len(avail) {
		n = len(avail)
	}
	return avail[:n], nil
}

// Read implements io.Reader.
func (s *Stream) Read(p []byte) (int, error) {
	if s.closed {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	if s.off < len(s.buf) {
		n := copy(p, s.buf[s.off:])
		s.off += n
		s.pos += int64(n)
		return n, nil
	}
	s.dropBuffer()
	if s.eof {
		return 0, io.EOF
	}
	n, err := s.src.Read(p)
	if n > 0 {
		s.bytesRead.Add(int64(n))
		s.readCount.Add(1)
		s.pos += int64(n)
	}
	if errors.Is(err, io.EOF) {
		s.eof = true
		if n > 0 {
			err = nil
		}
	}
	return n, err
}

func (s *Stream) dropBuffer() {
	s.buf = nil
	s.off = 0
}

// ReadFull reads exactly len(p) bytes.
func (s *Stream) ReadFull(p []byte) error {
	_, err := io.ReadFull(s, p)
	return err
}

// Skip advances n bytes by reading.
func (s *Stream) Skip(n int64) error {
	_, err := io.CopyN(io.Discard, s, n)
	return err
}

// Seek moves to absolute byte position pos. Targets inside the buffered
// window and forward targets on non-seekable streams are reached without
// seeking the source.
func (s *Stream) Seek(pos int64) error {
	if s.closed {
		return ErrClosed
	}
	if pos == s.pos {
		return nil
	}
	bufStart := s.pos - int64(s.off)
	if pos >= bufStart && pos <= bufStart+int64(len(s.buf)) {
		s.off = int(pos - bufStart)
		s.pos = pos
		return nil
	}
	if s.seeker == nil {
		if pos < s.pos {
			return fmt.Errorf("seek to %d from %d: %w", pos, s.pos, ErrNotSeekable)
		}
		for s.pos < pos {
			n := pos - s.pos
			if n > skipChunk {
				n = skipChunk
			}
			if err := s.Skip(n); err != nil {
				return fmt.Errorf("skip to %d: %w", pos, err)
			}
		}
		return nil
	}
	if _, err := s.seeker.Seek(pos, io.SeekStart); err != nil {
		return fmt.Errorf("seek to %d: %w", pos, err)
	}
	s.pos = pos
	s.dropBuffer()
	s.eof = false
	return nil
}

// Tell returns the current byte position.
func (s *Stream) Tell() int64 {
	return s.pos
}

// EOF reports whether the source returned end of stream and the buffer is
// drained.
func (s *Stream) EOF() bool {
	return s.eof && s.off >= len(s.buf)
}

// Seekable reports whether the source supports random access.
func (s *Stream) Seekable() bool {
	return s.seekable
}

// StartPos is where demuxers start reading.
func (s *Stream) StartPos() int64 {
	return s.start
}

// EndPos returns the stream size, or -1 when unknown.
func (s *Stream) EndPos() int64 {
	if sz, ok := s.src.(Sizer); ok {
		return sz.Size()
	}
	if v, err := s.Control(CtrlGetSize, nil); err == nil {
		if n, ok := v.(int64); ok {
			return n
		}
	}
	return -1
}

// Control forwards cmd to the source. Commands that reposition the source
// drop buffered data.
func (s *Stream) Control(cmd Command, arg any) (any, error) {
	c, ok := s.src.(Controller)
	if !ok {
		return nil, ErrUnsupported
	}
	v, err := c.Control(cmd, arg)
	if err == nil && cmd.NeedsFlush() {
		s.dropBuffer()
		s.eof = false
	}
	return v, err
}

// ManagesTimeline reports whether the source seeks by time itself and
// positions reported by demuxers are estimates.
func (s *Stream) ManagesTimeline() bool {
	_, err := s.Control(CtrlManagesTimeline, nil)
	return err == nil
}

// Source returns the backend.
func (s *Stream) Source() Source {
	return s.src
}

// Stats returns a snapshot of read counters.
func (s *Stream) Stats() Stats {
	return Stats{
		BytesRead:  s.bytesRead.Load(),
		ReadCount:  s.readCount.Load(),
		OpenedAt:   s.openedAt.UnixMilli(),
		UptimeMs:   time.Since(s.openedAt).Milliseconds(),
		RemoteAddr: s.remote,
	}
}

// Close closes the source.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.dropBuffer()
	st := s.Stats()
	s.log.Debug("stream closed", "url", s.URL,
		"bytes", st.BytesRead, "reads", st.ReadCount, "uptime_ms", st.UptimeMs)
	return s.src.Close()
}
