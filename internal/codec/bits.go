// Package codec extracts the stream parameters a demuxer needs from
// elementary streams: NAL unit framing and SPS fields for H.264/H.265, and
// ADTS framing for AAC. It does not decode media.
package codec

import (
	"bytes"
	"errors"

	"github.com/icza/bitio"
)

// ErrShortSPS is returned when a parameter set ends before its mandatory fields.
var ErrShortSPS = errors.New("codec: parameter set truncated")

// rbspReader reads syntax elements from an unescaped NAL payload. Errors are
// sticky (bitio's Try* convention): after the first failure every read
// yields zero and TryError stays set.
type rbspReader struct {
	*bitio.Reader
}

// newRBSPReader reads an already unescaped payload.
func newRBSPReader(rbsp []byte) rbspReader {
	return rbspReader{bitio.NewReader(bytes.NewReader(rbsp))}
}

func (r rbspReader) u(n uint8) uint {
	return uint(r.TryReadBits(n))
}

func (r rbspReader) flag() bool {
	return r.TryReadBool()
}

func (r rbspReader) skip(n uint) {
	for n > 64 {
		r.TryReadBits(64)
		n -= 64
	}
	if n > 0 {
		r.TryReadBits(uint8(n))
	}
}

// ue reads an unsigned Exp-Golomb code.
func (r rbspReader) ue() uint {
	var zeros uint8
	for !r.TryReadBool() {
		if r.TryError != nil {
			return 0
		}
		if zeros++; zeros > 31 {
			r.TryError = ErrShortSPS
			return 0
		}
	}
	if zeros == 0 {
		return 0
	}
	return 1<<zeros - 1 + uint(r.TryReadBits(zeros))
}

// se reads a signed Exp-Golomb code.
func (r rbspReader) se() int {
	v := r.ue()
	if v%2 == 0 {
		return -int(v / 2)
	}
	return int((v + 1) / 2)
}

func (r rbspReader) err() error {
	if r.TryError != nil {
		return ErrShortSPS
	}
	return nil
}

// unescapeRBSP strips emulation prevention bytes (00 00 03 -> 00 00).
func unescapeRBSP(data []byte) []byte {
	if bytes.Index(data, []byte{0, 0, 3}) < 0 {
		return data
	}
	out := make([]byte, 0, len(data))
	zeros := 0
	for i, b := range data {
		if zeros >= 2 && b == 3 && (i+1 == len(data) || data[i+1] <= 3) {
			zeros = 0
			continue
		}
		if b == 0 {
			zeros++
		} else {
			zeros = 0
		}
		out = append(out, b)
	}
	return out
}
