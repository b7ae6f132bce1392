package stream

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

const cacheChunk = 32 * 1024

// Cache is a Source that reads ahead from a slower stream on a background
// goroutine and keeps a bounded window of recent data, so short backward
// seeks work on sources that cannot seek. It reports the raw stream's
// seekability and answers the cache controls itself.
type Cache struct {
	log       *slog.Logger
	raw       *Stream
	size      int
	readahead int

	mu     sync.Mutex
	cond   *sync.Cond
	buf    []byte
	base   int64 // stream offset of buf[0]
	pos    int64 // read position
	eof    bool
	err    error
	idle   bool
	closed bool
	done   chan struct{}
}

// NewCache starts caching raw. size bounds the window; readahead bounds how
// far the filler runs ahead of the reader. readahead is clamped to size.
func NewCache(raw *Stream, size, readahead int, log *slog.Logger) *Cache {
	if log == nil {
		log = slog.Default()
	}
	if readahead <= 0 || readahead > size {
		readahead = size
	}
	c := &Cache{
		log:       log.With("component", "stream-cache"),
		raw:       raw,
		size:      size,
		readahead: readahead,
		base:      raw.Tell(),
		pos:       raw.Tell(),
		done:      make(chan struct{}),
	}
	c.cond = sync.NewCond(&c.mu)
	go c.run()
	return c
}

func (c *Cache) ahead() int64 {
	return c.base + int64(len(c.buf)) - c.pos
}

func (c *Cache) run() {
	defer close(c.done)

	chunk := make([]byte, cacheChunk)
	for {
		c.mu.Lock()
		for !c.closed && (c.eof || c.err != nil || c.ahead() >= int64(c.readahead)) {
			c.idle = true
			c.cond.Wait()
		}
		c.idle = false
		if c.closed {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		// The raw source is read directly so the raw Stream's own state is
		// only touched by Control and Close.
		n, err := c.raw.src.Read(chunk)
		if n > 0 {
			c.raw.bytesRead.Add(int64(n))
			c.raw.readCount.Add(1)
		}

		c.mu.Lock()
		if n > 0 {
			c.buf = append(c.buf, chunk[:n]...)
			if over := len(c.buf) - c.size; over > 0 {
				drop := int64(over)
				if behind := c.pos - c.base; drop > behind {
					drop = behind
				}
				if drop > 0 {
					c.buf = append(c.buf[:0], c.buf[drop:]...)
					c.base += drop
				}
			}
		}
		switch {
		case errors.Is(err, io.EOF):
			c.eof = true
		case err != nil && !c.closed:
			c.err = err
			c.log.Debug("read error", "url", c.raw.URL, "error", err)
		}
		c.cond.Broadcast()
		c.mu.Unlock()
	}
}

// Read implements io.Reader, blocking until data is cached.
func (c *Cache) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for !c.closed && c.ahead() <= 0 && !c.eof && c.err == nil {
		c.cond.Wait()
	}
	if c.closed {
		return 0, ErrClosed
	}
	if c.ahead() <= 0 {
		if c.err != nil {
			return 0, c.err
		}
		return 0, io.EOF
	}
	off := c.pos - c.base
	n := copy(p, c.buf[off:])
	c.pos += int64(n)
	c.cond.Broadcast()
	return n, nil
}

// Seek implements io.Seeker. Targets behind the window fail with
// ErrNotCached; targets ahead of it are reached as the filler catches up.
func (c *Cache) Seek(offset int64, whence int) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	target := offset
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		target = c.pos + offset
	default:
		return c.pos, fmt.Errorf("cache seek whence %d: %w", whence, ErrUnsupported)
	}
	if target < c.base {
		return c.pos, fmt.Errorf("seek to %d, window starts at %d: %w", target, c.base, ErrNotCached)
	}
	c.pos = target
	c.cond.Broadcast()
	return target, nil
}

// Seekable reports the raw stream's seekability. Seeks inside the window
// still succeed.
func (c *Cache) Seekable() bool {
	return c.raw.Seekable()
}

// Size returns the raw stream size, or -1.
func (c *Cache) Size() int64 {
	return c.raw.EndPos()
}

// Control answers the cache controls and forwards the rest to the raw
// stream. Repositioning commands reset the window.
func (c *Cache) Control(cmd Command, arg any) (any, error) {
	c.mu.Lock()
	switch cmd {
	case CtrlGetCacheSize:
		defer c.mu.Unlock()
		return int64(c.size), nil
	case CtrlGetCacheFill:
		defer c.mu.Unlock()
		return max(c.ahead(), 0), nil
	case CtrlGetCacheIdle:
		defer c.mu.Unlock()
		return c.idle, nil
	}
	c.mu.Unlock()

	ctl, ok := c.raw.src.(Controller)
	if !ok {
		return nil, ErrUnsupported
	}
	v, err := ctl.Control(cmd, arg)
	if err == nil && cmd.NeedsFlush() {
		c.mu.Lock()
		c.base += int64(len(c.buf))
		c.buf = c.buf[:0]
		c.pos = c.base
		c.eof = false
		c.err = nil
		c.cond.Broadcast()
		c.mu.Unlock()
	}
	return v, err
}

// Close stops the filler and closes the raw stream.
func (c *Cache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.cond.Broadcast()
	c.mu.Unlock()

	err := c.raw.Close()
	<-c.done
	return err
}
