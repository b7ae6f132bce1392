package scte35

import (
	"bytes"

	"github.com/icza/bitio"
)

// reader wraps a bitio.Reader with sticky errors: after the first short
// read every further read yields zero and err reports ErrShort.
type reader struct {
	*bitio.Reader
	src *bytes.Reader
	n   int
}

func newReader(data []byte) *reader {
	src := bytes.NewReader(data)
	return &reader{Reader: bitio.NewReader(src), src: src, n: len(data)}
}

func (r *reader) u32(n uint8) uint32 { return uint32(r.TryReadBits(n)) }
func (r *reader) u64(n uint8) uint64 { return r.TryReadBits(n) }
func (r *reader) flag() bool         { return r.TryReadBool() }

func (r *reader) skip(n int) {
	for n > 0 && r.TryError == nil {
		k := min(n, 64)
		r.TryReadBits(uint8(k))
		n -= k
	}
}

func (r *reader) bytes(n int) []byte {
	if n > r.src.Len() {
		r.TryError = ErrShort
		return nil
	}
	b := make([]byte, n)
	r.TryRead(b)
	return b
}

// consumed returns how many whole bytes were read.
func (r *reader) consumed() int { return r.n - r.src.Len() }

func (r *reader) err() error {
	if r.TryError != nil {
		return ErrShort
	}
	return nil
}

type writer struct {
	*bitio.Writer
}

func (w writer) u(v uint64, n uint8) { w.TryWriteBits(v, n) }
func (w writer) flag(b bool)         { w.TryWriteBool(b) }

// encodeBits runs fn against a fresh bit writer and returns the flushed
// bytes.
func encodeBits(fn func(w writer)) ([]byte, error) {
	var buf bytes.Buffer
	w := writer{bitio.NewWriter(&buf)}
	fn(w)
	if w.TryError != nil {
		return nil, w.TryError
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
