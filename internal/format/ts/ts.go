// Package ts is the MPEG transport stream format plugin. It demuxes H.264
// and H.265 video, AAC and other audio, CEA-608/708 captions carried in
// video SEI, and turns SCTE-35 splice events into chapters.
package ts

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/zsiec/vdemux/internal/codec"
	"github.com/zsiec/vdemux/internal/demux"
	"github.com/zsiec/vdemux/internal/mpegts"
	"github.com/zsiec/vdemux/internal/packet"
	"github.com/zsiec/vdemux/internal/stream"
)

// discoveryUnits bounds how many units Open reads looking for the PMT and
// the codec parameters of every stream.
const discoveryUnits = 2000

var (
	errNoSync = errors.New("ts: no transport stream sync")
	errNoPMT  = errors.New("ts: no program map table")
)

// Format is the MPEG-TS plugin.
type Format struct{}

func (Format) Name() string { return "mpegts" }
func (Format) Desc() string { return "MPEG-TS" }

// Probe wants three sync bytes a packet apart at the start of the input,
// one when the format was requested, and scans for them when guessing.
func (Format) Probe(d *demux.Demuxer, check demux.Check) error {
	if packetSize(d.ProbeData(), check) == 0 {
		return errNoSync
	}
	return nil
}

func packetSize(probe []byte, check demux.Check) int {
	switch check {
	case demux.CheckNormal:
		return mpegts.ProbeSync(probe, 0, 3)
	case demux.CheckRequest:
		return mpegts.ProbeSync(probe, 0, 1)
	}
	for off := 0; off < mpegts.PacketSize && off < len(probe); off++ {
		if size := mpegts.ProbeSync(probe, off, 3); size != 0 {
			return size
		}
	}
	if check == demux.CheckForce {
		return mpegts.PacketSize
	}
	return 0
}

// Open reads ahead until the PMT and the parameters of its streams are
// known, then creates one track per supported elementary stream. The units
// read meanwhile are replayed by FillBuffer.
func (Format) Open(d *demux.Demuxer, check demux.Check) (any, error) {
	s := d.Stream()
	size := packetSize(d.ProbeData(), check)
	if size == 0 {
		size = mpegts.PacketSize
	}
	p := &plugin{
		log:      d.Logger().With("component", "ts"),
		size:     size,
		streams:  make(map[uint16]*elementary),
		cuePIDs:  make(map[uint16]bool),
		firstPTS: packet.NoPTS,
		lastPTS:  packet.NoPTS,
	}
	p.dmx = mpegts.NewDemuxer(s,
		mpegts.DemuxerOptPacketSize(size),
		mpegts.DemuxerOptPacketsParser(p.parseCue),
		mpegts.DemuxerOptSkipPID(p.skipPID),
		mpegts.DemuxerOptBasePos(s.Tell()),
		mpegts.DemuxerOptLogger(d.Logger()),
	)

	if err := p.discover(); err != nil {
		return nil, err
	}
	for _, es := range p.order {
		p.createTrack(d, es)
	}
	p.opened = true
	if size != mpegts.PacketSize {
		d.Filetype = fmt.Sprintf("MPEG-TS (%d-byte packets)", size)
	}
	d.AccurateSeek = false
	return p, nil
}

// elementary is one elementary stream of the PMT.
type elementary struct {
	pid        uint16
	streamType uint8
	lang       string
	track      *demux.Track

	known     bool // codec parameters found, or none needed
	video     demux.VideoInfo
	audio     demux.AudioInfo
	hevc      bool
	sps       codec.SPSInfo // H.264 only, for pic_timing
	extradata []byte
	captions  *captions
}

type plugin struct {
	log  *slog.Logger
	dmx  *mpegts.Demuxer
	size int

	opened  bool
	pmtSeen bool
	streams map[uint16]*elementary
	order   []*elementary
	cuePIDs map[uint16]bool
	skip    map[uint16]bool // nil until the first track switch
	pending []*mpegts.DemuxerData
	cues    []cue
	cueID   int64

	firstPTS, lastPTS float64
	firstPos, lastPos int64
	timecode          bool
}

func (p *plugin) discover() error {
	for range discoveryUnits {
		data, err := p.dmx.NextData()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("ts: discovery: %w", err)
		}
		p.pending = append(p.pending, data)
		switch {
		case data.PMT != nil:
			p.addProgram(nil, data.PMT)
		case data.PES != nil:
			if es := p.streams[data.FirstPacket.Header.PID]; es != nil && !es.known {
				es.inspect(data.PES.Data)
			}
		}
		if p.pmtSeen && p.complete() {
			break
		}
	}
	if !p.pmtSeen {
		return errNoPMT
	}
	return nil
}

func (p *plugin) complete() bool {
	for _, es := range p.order {
		if !es.known {
			return false
		}
	}
	return true
}

// addProgram registers the streams of a PMT. Once the plugin is open new
// streams get their tracks right away.
func (p *plugin) addProgram(d *demux.Demuxer, pmt *mpegts.PMTData) {
	p.pmtSeen = true
	for _, pes := range pmt.ElementaryStreams {
		pid := pes.ElementaryPID
		if pes.StreamType == mpegts.StreamTypeSCTE35 || pes.Registration == "CUEI" {
			if !p.cuePIDs[pid] {
				p.cuePIDs[pid] = true
				p.dmx.AddSectionPID(pid)
			}
			continue
		}
		if _, ok := p.streams[pid]; ok {
			continue
		}
		if _, _, ok := classify(pes.StreamType); !ok {
			p.log.Debug("ignoring stream", "pid", pid, "stream_type", pes.StreamType)
			continue
		}
		es := newElementary(pes)
		p.streams[pid] = es
		p.order = append(p.order, es)
		if p.opened && d != nil {
			p.createTrack(d, es)
		}
	}
}

func classify(streamType uint8) (demux.TrackType, string, bool) {
	switch streamType {
	case mpegts.StreamTypeH264:
		return demux.Video, "h264", true
	case mpegts.StreamTypeH265:
		return demux.Video, "hevc", true
	case mpegts.StreamTypeAAC:
		return demux.Audio, "aac", true
	case mpegts.StreamTypeLATM:
		return demux.Audio, "aac_latm", true
	case mpegts.StreamTypeMPEG1Audio:
		return demux.Audio, "mp3", true
	case mpegts.StreamTypeMPEG2Audio:
		return demux.Audio, "mp2", true
	case mpegts.StreamTypeAC3:
		return demux.Audio, "ac3", true
	}
	return 0, "", false
}

func (p *plugin) createTrack(d *demux.Demuxer, es *elementary) {
	typ, codecName, _ := classify(es.streamType)
	t, err := d.NewTrack(typ)
	if err != nil {
		p.log.Warn("dropping stream", "pid", es.pid, "error", err)
		return
	}
	t.DemuxerID = int(es.pid)
	t.Codec = codecName
	t.Lang = es.lang
	switch typ {
	case demux.Video:
		*t.Video = es.video
		t.Extradata = es.extradata
		es.captions = newCaptions(p.log)
	case demux.Audio:
		*t.Audio = es.audio
	}
	es.track = t
	p.log.Debug("new track", "pid", es.pid, "codec", codecName, "index", t.Index())
}

// FillBuffer handles one transport stream unit.
func (p *plugin) FillBuffer(d *demux.Demuxer) bool {
	data, err := p.next()
	if err != nil {
		if !errors.Is(err, io.EOF) {
			p.log.Warn("read failed", "error", err)
		}
		p.drainCues(d)
		return false
	}
	switch {
	case data.PMT != nil:
		p.addProgram(d, data.PMT)
	case data.PES != nil:
		p.handlePES(d, data)
	}
	p.drainCues(d)
	return true
}

func (p *plugin) next() (*mpegts.DemuxerData, error) {
	if len(p.pending) > 0 {
		data := p.pending[0]
		p.pending[0] = nil
		p.pending = p.pending[1:]
		return data, nil
	}
	return p.dmx.NextData()
}

func (p *plugin) handlePES(d *demux.Demuxer, data *mpegts.DemuxerData) {
	es := p.streams[data.FirstPacket.Header.PID]
	if es == nil || es.track == nil || len(data.PES.Data) == 0 {
		return
	}
	pts := packet.NoPTS
	if opt := data.PES.Header.OptionalHeader; opt != nil && opt.PTS != nil {
		pts = opt.PTS.Seconds()
	}
	pos := data.FirstPacket.Pos
	if pts != packet.NoPTS {
		if p.firstPTS == packet.NoPTS {
			p.firstPTS, p.firstPos = pts, pos
		}
		p.lastPTS, p.lastPos = pts, pos
	}

	switch {
	case es.track.Type == demux.Video:
		p.handleVideo(d, es, data, pts)
	case es.streamType == mpegts.StreamTypeAAC:
		p.handleAAC(d, es, data.PES.Data, pts, pos)
	default:
		pkt := packet.FromBytes(data.PES.Data)
		pkt.PTS = pts
		pkt.Pos = pos
		pkt.Keyframe = true
		d.AddPacket(es.track, pkt)
	}
}

// byteRate is the observed input bytes per second of pts, or 0.
func (p *plugin) byteRate() float64 {
	if p.firstPTS == packet.NoPTS || p.lastPTS <= p.firstPTS || p.lastPos <= p.firstPos {
		return 0
	}
	return float64(p.lastPos-p.firstPos) / (p.lastPTS - p.firstPTS)
}

// Seek jumps to a byte position estimated from the observed bitrate, or
// from the file size for factor seeks, then resyncs the parser.
func (p *plugin) Seek(d *demux.Demuxer, rel float64, flags demux.SeekFlags) {
	s := d.Stream()
	start, end := s.StartPos(), s.EndPos()
	var pos int64
	if flags&demux.SeekFactor != 0 {
		if end <= start {
			p.log.Debug("factor seek without file size")
			return
		}
		pos = start + int64(rel*float64(end-start))
	} else {
		rate := p.byteRate()
		if rate <= 0 {
			p.log.Debug("seek before bitrate is known")
			return
		}
		target := rel
		if flags&demux.SeekAbsolute == 0 {
			target += p.lastPTS
		}
		pos = p.firstPos + int64((target-p.firstPTS)*rate)
	}

	pos = start + (pos-start)/int64(p.size)*int64(p.size)
	if end > start {
		pos = min(pos, end-int64(p.size))
	}
	pos = max(pos, start)
	if err := s.Seek(pos); err != nil {
		p.log.Warn("seek failed", "pos", pos, "error", err)
		return
	}
	p.reset(s)
}

// reset drops buffered units and partial captions after the input moved.
func (p *plugin) reset(s *stream.Stream) {
	p.pending = nil
	for _, es := range p.streams {
		if es.captions != nil {
			es.captions.reset()
		}
	}
	p.dmx.Reset(s, s.Tell())
}

func (p *plugin) Control(d *demux.Demuxer, cmd demux.Ctrl, _ any) (any, error) {
	switch cmd {
	case demux.CtrlGetTimeLength:
		s := d.Stream()
		rate := p.byteRate()
		if rate <= 0 || s.EndPos() <= s.StartPos() {
			return nil, demux.ErrDontKnow
		}
		return float64(s.EndPos()-s.StartPos()) / rate, nil
	case demux.CtrlGetStartTime:
		if p.firstPTS == packet.NoPTS {
			return nil, demux.ErrDontKnow
		}
		return p.firstPTS, nil
	case demux.CtrlResync:
		p.reset(d.Stream())
		return nil, nil
	case demux.CtrlSwitchedTracks:
		p.updateSkip(d)
		return nil, nil
	case demux.CtrlFlush, demux.CtrlUpdateInfo:
		return nil, nil
	}
	return nil, demux.ErrUnsupported
}

// updateSkip makes the parser drop PIDs nobody reads. Video stays parsed
// while one of its caption tracks is selected.
func (p *plugin) updateSkip(d *demux.Demuxer) {
	skip := make(map[uint16]bool)
	for pid, es := range p.streams {
		if es.track == nil || d.IsSelected(es.track) {
			continue
		}
		if es.captions != nil && es.captions.selected(d) {
			continue
		}
		skip[pid] = true
	}
	p.skip = skip
}

func (p *plugin) skipPID(pid uint16) bool { return p.skip[pid] }

func (p *plugin) Close(*demux.Demuxer) {
	p.pending = nil
	p.cues = nil
}
