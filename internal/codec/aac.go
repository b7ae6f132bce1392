package codec

import (
	"bytes"
	"errors"

	"github.com/icza/bitio"
)

// ErrInvalidADTS is returned when the ADTS sync word or header is malformed.
var ErrInvalidADTS = errors.New("invalid ADTS header")

// ADTSHeaderSize is the size of an ADTS header without CRC.
const ADTSHeaderSize = 7

// ISO 14496-3 sampling frequency index table.
var aacSampleRates = [...]int{
	96000, 88200, 64000, 48000, 44100, 32000, 24000, 22050,
	16000, 12000, 11025, 8000, 7350,
}

// ADTSHeader is a decoded ADTS fixed + variable header.
type ADTSHeader struct {
	Profile    int // audio object type minus one (1 = AAC LC)
	SampleRate int
	Channels   int
	FrameLen   int // header + payload
	HeaderLen  int // 7, or 9 with CRC
	Blocks     int // raw data blocks in the frame
}

// Samples returns the number of PCM samples per channel the frame decodes to.
func (h ADTSHeader) Samples() int { return 1024 * h.Blocks }

// Duration returns the frame duration in seconds.
func (h ADTSHeader) Duration() float64 {
	return float64(h.Samples()) / float64(h.SampleRate)
}

// ParseADTSHeader decodes the header at the start of data.
func ParseADTSHeader(data []byte) (ADTSHeader, error) {
	if len(data) < ADTSHeaderSize {
		return ADTSHeader{}, ErrInvalidADTS
	}
	r := bitio.NewReader(bytes.NewReader(data[:ADTSHeaderSize]))
	if r.TryReadBits(12) != 0xFFF {
		return ADTSHeader{}, ErrInvalidADTS
	}
	r.TryReadBits(3) // id, layer
	noCRC := r.TryReadBool()
	profile := int(r.TryReadBits(2))
	rateIdx := int(r.TryReadBits(4))
	r.TryReadBool() // private_bit
	channels := int(r.TryReadBits(3))
	r.TryReadBits(4) // original_copy, home, copyright id bit and start
	frameLen := int(r.TryReadBits(13))
	r.TryReadBits(11) // buffer fullness
	blocks := int(r.TryReadBits(2)) + 1
	if r.TryError != nil || rateIdx >= len(aacSampleRates) {
		return ADTSHeader{}, ErrInvalidADTS
	}

	h := ADTSHeader{
		Profile:    profile,
		SampleRate: aacSampleRates[rateIdx],
		Channels:   channels,
		FrameLen:   frameLen,
		HeaderLen:  ADTSHeaderSize,
		Blocks:     blocks,
	}
	if !noCRC {
		h.HeaderLen = 9
	}
	if h.FrameLen < h.HeaderLen {
		return ADTSHeader{}, ErrInvalidADTS
	}
	return h, nil
}

// AACFrame is one ADTS frame, header included.
type AACFrame struct {
	Data       []byte
	SampleRate int
	Channels   int
}

// ParseADTS splits an ADTS byte stream into frames. Bytes before a sync word
// are skipped; a truncated trailing frame is dropped.
func ParseADTS(data []byte) ([]AACFrame, error) {
	var frames []AACFrame
	for off := 0; len(data)-off >= ADTSHeaderSize; {
		if data[off] != 0xFF || data[off+1]&0xF0 != 0xF0 {
			off++
			continue
		}
		h, err := ParseADTSHeader(data[off:])
		if err != nil {
			return frames, err
		}
		if off+h.FrameLen > len(data) {
			break
		}
		frames = append(frames, AACFrame{
			Data:       data[off : off+h.FrameLen],
			SampleRate: h.SampleRate,
			Channels:   h.Channels,
		})
		off += h.FrameLen
	}
	return frames, nil
}
