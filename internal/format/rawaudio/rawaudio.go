// Package rawaudio demuxes raw AAC elementary streams in ADTS framing, as
// written by encoders and stream rippers, optionally behind an ID3v2 tag.
package rawaudio

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/zsiec/vdemux/internal/codec"
	"github.com/zsiec/vdemux/internal/demux"
	"github.com/zsiec/vdemux/internal/packet"
	"github.com/zsiec/vdemux/internal/stream"
)

// maxResync bounds the bytes skipped looking for the next frame.
const maxResync = 64 * 1024

var (
	errNoADTS  = errors.New("rawaudio: no ADTS header")
	errNoTrack = errors.New("rawaudio: cannot create track")
)

var profiles = [...]string{"Main", "LC", "SSR", "LTP"}

// Format is the ADTS plugin.
type Format struct{}

func (Format) Name() string { return "aac" }
func (Format) Desc() string { return "raw AAC (ADTS)" }

// Probe wants two back-to-back frames, or a single header when the format
// was requested or forced.
func (Format) Probe(d *demux.Demuxer, check demux.Check) error {
	data := d.ProbeData()
	off := id3Size(data)
	if off >= len(data) {
		return errNoADTS
	}
	h, err := codec.ParseADTSHeader(data[off:])
	if err != nil {
		return errNoADTS
	}
	if check == demux.CheckRequest || check == demux.CheckForce {
		return nil
	}
	next := off + h.FrameLen
	if next >= len(data) {
		// a single frame is the whole file
		if next == len(data) {
			return nil
		}
		return errNoADTS
	}
	if _, err := codec.ParseADTSHeader(data[next:]); err != nil {
		return errNoADTS
	}
	return nil
}

// id3Size is the length of an ID3v2 tag at the start of data, or 0.
func id3Size(data []byte) int {
	if len(data) < 10 || string(data[:3]) != "ID3" {
		return 0
	}
	n := int(data[6]&0x7F)<<21 | int(data[7]&0x7F)<<14 | int(data[8]&0x7F)<<7 | int(data[9]&0x7F)
	n += 10
	if data[5]&0x10 != 0 {
		n += 10 // footer
	}
	return n
}

func (Format) Open(d *demux.Demuxer, _ demux.Check) (any, error) {
	s := d.Stream()
	if n := id3Size(d.ProbeData()); n > 0 {
		if err := s.Skip(int64(n)); err != nil {
			return nil, fmt.Errorf("rawaudio: skip ID3 tag: %w", err)
		}
	}
	hdr, err := s.Peek(codec.ADTSHeaderSize)
	if err != nil {
		return nil, fmt.Errorf("rawaudio: %w", err)
	}
	h, err := codec.ParseADTSHeader(hdr)
	if err != nil {
		return nil, fmt.Errorf("rawaudio: %w", err)
	}

	t, err := d.NewTrack(demux.Audio)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errNoTrack, err)
	}
	t.Codec = "aac"
	t.Audio.SampleRate = h.SampleRate
	t.Audio.Channels = h.Channels
	t.Audio.Profile = profiles[h.Profile]

	return &plugin{
		log:   d.Logger().With("component", "rawaudio"),
		track: t,
		rate:  h.SampleRate,
		index: []int64{s.Tell()},
	}, nil
}

type plugin struct {
	log     *slog.Logger
	track   *demux.Track
	rate    int
	frame   int     // number of the next frame
	index   []int64 // byte position of every frame seen, by frame number
	indexed bool
}

// next reads the header at the current position, skipping garbage up to
// maxResync bytes. It returns the header and the frame position.
func (p *plugin) next(s *stream.Stream) (codec.ADTSHeader, int64, error) {
	for skipped := 0; ; skipped++ {
		hdr, err := s.Peek(codec.ADTSHeaderSize)
		if err != nil {
			return codec.ADTSHeader{}, 0, err
		}
		if len(hdr) < codec.ADTSHeaderSize {
			return codec.ADTSHeader{}, 0, io.EOF
		}
		if h, err := codec.ParseADTSHeader(hdr); err == nil {
			if skipped > 0 {
				p.log.Debug("resynchronized", "skipped", skipped, "pos", s.Tell())
			}
			return h, s.Tell(), nil
		}
		if skipped == maxResync {
			return codec.ADTSHeader{}, 0, errNoADTS
		}
		if err := s.Skip(1); err != nil {
			return codec.ADTSHeader{}, 0, err
		}
	}
}

func (p *plugin) note(pos int64) {
	if p.frame == len(p.index) {
		p.index = append(p.index, pos)
	} else if p.frame < len(p.index) {
		p.index[p.frame] = pos
	}
}

// FillBuffer reads one frame.
func (p *plugin) FillBuffer(d *demux.Demuxer) bool {
	s := d.Stream()
	h, pos, err := p.next(s)
	if err != nil {
		if errors.Is(err, io.EOF) {
			p.indexed = true
		} else {
			p.log.Warn("read failed", "error", err)
		}
		return false
	}
	pkt := packet.New(h.FrameLen)
	if err := s.ReadFull(pkt.Data()); err != nil {
		pkt.Release()
		p.indexed = true
		return false
	}
	p.note(pos)
	pkt.PTS = p.frameTime(p.frame)
	pkt.Duration = float64(h.Samples()) / float64(p.rate)
	pkt.Pos = pos
	pkt.Keyframe = true
	p.frame++
	d.AddPacket(p.track, pkt)
	return true
}

// Seek moves to the frame holding the target time. Frames past the part
// read so far are scanned header by header.
func (p *plugin) Seek(d *demux.Demuxer, rel float64, flags demux.SeekFlags) {
	s := d.Stream()
	target := rel
	switch {
	case flags&demux.SeekFactor != 0:
		if !p.scan(s, -1) {
			return
		}
		target = rel * p.frameTime(len(p.index))
	case flags&demux.SeekAbsolute == 0:
		target += p.frameTime(p.frame)
	}
	frame := max(int(target*float64(p.rate)/1024+1e-6), 0)
	if frame >= len(p.index) && !p.indexed && !p.scan(s, frame) {
		return
	}
	frame = min(frame, len(p.index)-1)
	if err := s.Seek(p.index[frame]); err != nil {
		p.log.Warn("seek failed", "error", err)
		return
	}
	p.frame = frame
}

func (p *plugin) frameTime(frame int) float64 {
	return float64(frame) * 1024 / float64(p.rate)
}

// scan indexes frames up to want (all of them when negative) and restores
// the read position.
func (p *plugin) scan(s *stream.Stream, want int) bool {
	back, frame := s.Tell(), p.frame
	defer func() { p.frame = frame }()
	if err := s.Seek(p.index[len(p.index)-1]); err != nil {
		return false
	}
	p.frame = len(p.index) - 1
	for want < 0 || p.frame <= want {
		h, pos, err := p.next(s)
		if err != nil {
			p.indexed = true
			break
		}
		p.note(pos)
		if err := s.Skip(int64(h.FrameLen)); err != nil {
			p.indexed = true
			break
		}
		p.frame++
	}
	return s.Seek(back) == nil
}

func (p *plugin) Control(d *demux.Demuxer, cmd demux.Ctrl, _ any) (any, error) {
	switch cmd {
	case demux.CtrlGetTimeLength:
		if p.indexed {
			return p.frameTime(len(p.index)), nil
		}
		s := d.Stream()
		n := len(p.index) - 1
		if n < 1 || s.EndPos() <= 0 {
			return nil, demux.ErrDontKnow
		}
		perFrame := float64(p.index[n]-p.index[0]) / float64(n)
		return p.frameTime(int(float64(s.EndPos()-p.index[0]) / perFrame)), nil
	case demux.CtrlGetStartTime:
		return 0.0, nil
	}
	return nil, demux.ErrUnsupported
}
