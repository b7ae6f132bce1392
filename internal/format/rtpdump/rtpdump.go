// Package rtpdump reads files written by rtpdump/rtpplay: a text line
// naming the capture address, a binary file header and one record per
// captured RTP or RTCP packet. Each RTP source (SSRC) becomes a track.
package rtpdump

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/pion/rtp"

	"github.com/zsiec/vdemux/internal/demux"
	"github.com/zsiec/vdemux/internal/packet"
	"github.com/zsiec/vdemux/internal/stream"
)

const (
	magic = "#!rtpplay1.0 "
	// maxLine bounds the text header line.
	maxLine      = 256
	fileHdrLen   = 16
	recordHdrLen = 8
)

var (
	errNoMagic = errors.New("rtpdump: missing #!rtpplay1.0 header")
	errHeader  = errors.New("rtpdump: malformed file header")
)

// Format is the rtpdump plugin.
type Format struct{}

func (Format) Name() string { return "rtpdump" }
func (Format) Desc() string { return "rtpdump RTP capture" }

// Probe needs the magic at every level; a forced open accepts anything
// whose header line parses.
func (Format) Probe(d *demux.Demuxer, check demux.Check) error {
	probe := d.ProbeData()
	if check == demux.CheckForce {
		if bytes.HasPrefix(probe, []byte("#!rtpplay")) {
			return nil
		}
	}
	if !bytes.HasPrefix(probe, []byte(magic)) {
		return errNoMagic
	}
	return nil
}

// Open reads the text line and the binary file header.
func (Format) Open(d *demux.Demuxer, _ demux.Check) (any, error) {
	s := d.Stream()
	head, err := s.Peek(maxLine)
	if err != nil {
		return nil, fmt.Errorf("rtpdump: %w", err)
	}
	nl := bytes.IndexByte(head, '\n')
	if nl < 0 {
		return nil, errHeader
	}
	line := string(bytes.TrimRight(head[:nl], "\r"))
	addr := ""
	if i := bytes.IndexByte(head[:nl], ' '); i >= 0 {
		addr = line[i+1:]
	}
	if err := s.Skip(int64(nl + 1)); err != nil {
		return nil, fmt.Errorf("rtpdump: %w", err)
	}

	var hdr [fileHdrLen]byte
	if err := s.ReadFull(hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: %w", errHeader, err)
	}
	start := time.Unix(int64(binary.BigEndian.Uint32(hdr[0:])), int64(binary.BigEndian.Uint32(hdr[4:]))*1000)

	p := &plugin{
		log:     d.Logger().With("component", "rtpdump"),
		sources: make(map[uint32]*source),
		first:   s.Tell(),
	}
	p.index = []record{{pos: p.first}}
	if addr != "" {
		d.InfoAdd("address", addr)
	}
	d.InfoAdd("start_time", start.UTC().Format(time.RFC3339Nano))
	d.AccurateSeek = false
	return p, nil
}

// record locates one record header in the file.
type record struct {
	offset uint32 // milliseconds since the capture started
	pos    int64
}

// source is the state of one SSRC.
type source struct {
	track   *demux.Track
	clock   float64
	baseAt  float64 // record time of the first packet, seconds
	ext     int64   // ticks from the first packet to the last one
	last    uint32
	lastSeq uint16
}

type plugin struct {
	log     *slog.Logger
	sources map[uint32]*source
	first   int64
	index   []record // record positions seen so far, by file order
	indexed bool     // the whole file was scanned
	cur     uint32   // offset of the last record read
}

// readRecord reads the next record. body is nil at end of file.
func (p *plugin) readRecord(s *stream.Stream, wantBody bool) (rec record, plen int, body []byte, err error) {
	rec.pos = s.Tell()
	var hdr [recordHdrLen]byte
	if err := s.ReadFull(hdr[:]); err != nil {
		return rec, 0, nil, err
	}
	length := int(binary.BigEndian.Uint16(hdr[0:]))
	plen = int(binary.BigEndian.Uint16(hdr[2:]))
	rec.offset = binary.BigEndian.Uint32(hdr[4:])
	if length < recordHdrLen {
		return rec, 0, nil, fmt.Errorf("rtpdump: record length %d at %d", length, rec.pos)
	}
	p.note(rec)
	n := length - recordHdrLen
	if !wantBody {
		return rec, plen, nil, s.Skip(int64(n))
	}
	body = make([]byte, n)
	if err := s.ReadFull(body); err != nil {
		return rec, 0, nil, err
	}
	return rec, plen, body, nil
}

// note extends the seek index with a record read past its end.
func (p *plugin) note(rec record) {
	last := p.index[len(p.index)-1]
	if rec.pos > last.pos {
		p.index = append(p.index, rec)
	} else if rec.pos == last.pos {
		p.index[len(p.index)-1] = rec
	}
}

// FillBuffer reads one record. RTCP records (plen 0) are skipped.
func (p *plugin) FillBuffer(d *demux.Demuxer) bool {
	s := d.Stream()
	rec, plen, body, err := p.readRecord(s, true)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			p.indexed = true
		} else {
			p.log.Warn("read failed", "error", err)
		}
		return false
	}
	p.cur = rec.offset
	if plen == 0 {
		return true
	}
	if plen < len(body) {
		body = body[:plen]
	}

	var pkt rtp.Packet
	if err := pkt.Unmarshal(body); err != nil {
		p.log.Debug("dropping bad RTP packet", "pos", rec.pos, "error", err)
		return true
	}
	src := p.source(d, &pkt, rec)
	if src == nil || src.track == nil {
		return true
	}
	if seq := pkt.SequenceNumber; seq != src.lastSeq+1 && src.lastSeq != 0 {
		p.log.Debug("sequence gap", "ssrc", pkt.SSRC, "expected", src.lastSeq+1, "got", seq)
	}
	src.lastSeq = pkt.SequenceNumber

	out := packet.FromBytes(pkt.Payload)
	out.PTS = src.pts(pkt.Timestamp)
	out.Pos = rec.pos
	out.Keyframe = src.track.Type == demux.Audio || pkt.Marker
	d.AddPacket(src.track, out)
	return true
}

// source returns the state of pkt's SSRC, creating its track on first
// sight. The first packet anchors the RTP clock to the record time.
func (p *plugin) source(d *demux.Demuxer, pkt *rtp.Packet, rec record) *source {
	if src, ok := p.sources[pkt.SSRC]; ok {
		return src
	}
	pt := payloadTypeOf(pkt.PayloadType)
	src := &source{
		clock:  float64(pt.clock),
		last:   pkt.Timestamp,
		baseAt: float64(rec.offset) / 1000,
	}
	p.sources[pkt.SSRC] = src
	t, err := d.NewTrack(pt.typ)
	if err != nil {
		p.log.Warn("dropping RTP source", "ssrc", pkt.SSRC, "error", err)
		return src
	}
	t.DemuxerID = int(pkt.SSRC)
	t.Codec = pt.codec
	t.Title = fmt.Sprintf("SSRC %08X", pkt.SSRC)
	if t.Audio != nil && pt.channels > 0 {
		t.Audio.SampleRate = pt.clock
		t.Audio.Channels = pt.channels
	}
	src.track = t
	p.log.Debug("new RTP source", "ssrc", pkt.SSRC, "payload_type", pkt.PayloadType, "codec", pt.codec)
	return src
}

// pts converts an RTP timestamp, unwrapping 32-bit overflow against the
// previous packet.
func (src *source) pts(ts uint32) float64 {
	src.ext += int64(int32(ts - src.last))
	src.last = ts
	return src.baseAt + float64(src.ext)/src.clock
}

// Seek positions the file at the last record at or before the target
// capture time. Records past the scanned part are indexed on the way.
func (p *plugin) Seek(d *demux.Demuxer, rel float64, flags demux.SeekFlags) {
	s := d.Stream()
	var target float64
	switch {
	case flags&demux.SeekFactor != 0:
		if !p.scanAll(s) {
			return
		}
		target = rel * float64(p.index[len(p.index)-1].offset) / 1000
	case flags&demux.SeekAbsolute != 0:
		target = rel
	default:
		target = float64(p.cur)/1000 + rel
	}
	ms := uint32(math.Round(max(target, 0) * 1000))

	last := p.index[len(p.index)-1]
	if ms > last.offset && !p.indexed {
		if err := s.Seek(last.pos); err != nil {
			p.log.Warn("seek failed", "error", err)
			return
		}
		for {
			rec, _, _, err := p.readRecord(s, false)
			if err != nil {
				p.indexed = true
				break
			}
			if rec.offset >= ms {
				break
			}
		}
	}

	i := sort.Search(len(p.index), func(i int) bool { return p.index[i].offset >= ms })
	if i == len(p.index) || p.index[i].offset > ms {
		i--
	}
	rec := p.index[max(i, 0)]
	if err := s.Seek(rec.pos); err != nil {
		p.log.Warn("seek failed", "pos", rec.pos, "error", err)
		return
	}
	p.cur = rec.offset
	for _, src := range p.sources {
		src.lastSeq = 0
	}
}

// scanAll indexes the remaining records, leaving the read position
// unchanged.
func (p *plugin) scanAll(s *stream.Stream) bool {
	if p.indexed {
		return true
	}
	back := s.Tell()
	if err := s.Seek(p.index[len(p.index)-1].pos); err != nil {
		return false
	}
	for {
		if _, _, _, err := p.readRecord(s, false); err != nil {
			break
		}
	}
	p.indexed = true
	return s.Seek(back) == nil
}

func (p *plugin) Control(d *demux.Demuxer, cmd demux.Ctrl, _ any) (any, error) {
	switch cmd {
	case demux.CtrlGetTimeLength:
		if !p.indexed && (!d.Seekable || !p.scanAll(d.Stream())) {
			return nil, demux.ErrDontKnow
		}
		return float64(p.index[len(p.index)-1].offset) / 1000, nil
	case demux.CtrlGetStartTime:
		return 0.0, nil
	}
	return nil, demux.ErrUnsupported
}
