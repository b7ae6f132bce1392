// Package packet defines the compressed media packets that flow from format
// plugins through per-track queues to the consumer, along with the queue
// itself and small helpers for plugins that keep whole packet lists in memory.
package packet

import (
	"fmt"
	"log/slog"
)

// Padding is the number of zeroed bytes kept after every packet buffer so
// decoders that read past the end of a bitstream never touch foreign memory.
const Padding = 64

// MaxSize is the largest packet a plugin may request. Anything larger means
// a corrupt size field upstream.
const MaxSize = 1_000_000_000

// NoPTS marks an unknown timestamp.
const NoPTS = -0x1p63

// SizeError is the panic value raised when a packet allocation exceeds MaxSize.
type SizeError struct {
	Op   string
	Size int
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("packet: %s of %d bytes exceeds %d byte limit", e.Op, e.Size, MaxSize)
}

// SideData is decoder-specific state owned by a packet. Release is called
// exactly once, when the owning packet is released.
type SideData interface {
	Release()
}

// SideCopier is implemented by side data that can hand out an independent
// reference for a duplicated packet.
type SideCopier interface {
	SideData
	CopySide() SideData
}

// Packet is one compressed unit for one track. Once pushed into a Queue the
// producer must not touch it again; the consumer that pops it owns it.
type Packet struct {
	buf []byte // len(buf) == payload length, cap(buf) >= len + Padding

	PTS       float64 // seconds, NoPTS when unknown
	Duration  float64 // seconds, -1 when unknown
	StreamPTS float64 // stream-level timestamp estimate, NoPTS when unknown
	Pos       int64   // byte position in the source stream, -1 when unknown
	Stream    int     // track index, -1 until queued
	Keyframe  bool
	Side      SideData

	next *Packet
}

func checkSize(op string, n int) {
	if n < 0 || n > MaxSize {
		err := &SizeError{Op: op, Size: n}
		slog.Error("fatal packet allocation", "op", op, "size", n)
		panic(err)
	}
}

func blank() *Packet {
	return &Packet{
		PTS:       NoPTS,
		Duration:  -1,
		StreamPTS: NoPTS,
		Pos:       -1,
		Stream:    -1,
	}
}

// New allocates a zeroed packet of n bytes plus padding. It panics with a
// *SizeError when n exceeds MaxSize.
func New(n int) *Packet {
	checkSize("allocate", n)
	p := blank()
	p.buf = make([]byte, n, n+Padding)
	return p
}

// Wrap builds a packet around data without copying. The caller gives up
// ownership of data, which should already have Padding spare capacity.
func Wrap(data []byte) *Packet {
	checkSize("wrap", len(data))
	p := blank()
	p.buf = data
	return p
}

// FromBytes allocates a packet and copies data into it.
func FromBytes(data []byte) *Packet {
	p := New(len(data))
	copy(p.buf, data)
	return p
}

// Data returns the payload. The slice aliases the packet buffer.
func (p *Packet) Data() []byte {
	return p.buf
}

// Len returns the payload length in bytes.
func (p *Packet) Len() int {
	return len(p.buf)
}

// Resize changes the payload length to n, preserving existing bytes and
// zeroing the padding after the new end.
func (p *Packet) Resize(n int) {
	checkSize("resize", n)
	if cap(p.buf) < n+Padding {
		buf := make([]byte, n, n+Padding)
		copy(buf, p.buf)
		p.buf = buf
		return
	}
	p.buf = p.buf[:n]
	clear(p.buf[n : n+Padding])
}

// Clone returns an independent copy with identical bytes and timing. Side
// data is carried over only when it implements SideCopier.
func (p *Packet) Clone() *Packet {
	c := FromBytes(p.buf)
	c.PTS = p.PTS
	c.Duration = p.Duration
	c.StreamPTS = p.StreamPTS
	c.Keyframe = p.Keyframe
	if sc, ok := p.Side.(SideCopier); ok {
		c.Side = sc.CopySide()
	}
	return c
}

// Release frees the buffer and any owned side data. The packet must not be
// used afterwards.
func (p *Packet) Release() {
	if p == nil {
		return
	}
	if p.Side != nil {
		p.Side.Release()
		p.Side = nil
	}
	p.buf = nil
	p.next = nil
}
