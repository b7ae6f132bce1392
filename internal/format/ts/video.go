package ts

import (
	"github.com/zsiec/vdemux/internal/codec"
	"github.com/zsiec/vdemux/internal/demux"
	"github.com/zsiec/vdemux/internal/mpegts"
	"github.com/zsiec/vdemux/internal/packet"
)

var aacProfiles = [...]string{"Main", "LC", "SSR", "LTP"}

func newElementary(pes *mpegts.PMTElementaryStream) *elementary {
	es := &elementary{
		pid:        pes.ElementaryPID,
		streamType: pes.StreamType,
		lang:       pes.Language,
		hevc:       pes.StreamType == mpegts.StreamTypeH265,
	}
	switch pes.StreamType {
	case mpegts.StreamTypeH264, mpegts.StreamTypeH265, mpegts.StreamTypeAAC:
	default:
		es.known = true
	}
	return es
}

// inspect looks for the SPS of a video stream or the first ADTS header of
// an AAC stream. The parameter sets next to the SPS become the extradata.
func (es *elementary) inspect(data []byte) {
	if es.streamType == mpegts.StreamTypeAAC {
		frames, _ := codec.ParseADTS(data)
		if len(frames) == 0 {
			return
		}
		h, err := codec.ParseADTSHeader(frames[0].Data)
		if err != nil {
			return
		}
		es.audio = demux.AudioInfo{SampleRate: h.SampleRate, Channels: h.Channels, Profile: aacProfiles[h.Profile]}
		es.known = true
		return
	}

	if es.hevc {
		units := codec.ParseAnnexBHEVC(data)
		for _, n := range units {
			if !codec.IsHEVCSPS(n.Type) {
				continue
			}
			info, err := codec.ParseHEVCSPS(n.Data)
			if err != nil {
				continue
			}
			es.video = demux.VideoInfo{Width: info.Width, Height: info.Height}
			if info.Height > 0 {
				es.video.Aspect = float64(info.Width) / float64(info.Height)
			}
			es.extradata = parameterSets(units, codec.IsHEVCVPS, codec.IsHEVCSPS, codec.IsHEVCPPS)
			es.known = true
			return
		}
		return
	}
	units := codec.ParseAnnexB(data)
	for _, n := range units {
		if !codec.IsSPS(n.Type) {
			continue
		}
		info, err := codec.ParseSPS(n.Data)
		if err != nil {
			continue
		}
		es.sps = info
		es.video = demux.VideoInfo{Width: info.Width, Height: info.Height, FPS: info.FPS, Aspect: info.Aspect()}
		es.extradata = parameterSets(units, codec.IsSPS, codec.IsPPS)
		es.known = true
		return
	}
}

// parameterSets joins the units matching any of is in Annex B form, in
// stream order.
func parameterSets(units []codec.NALUnit, is ...func(byte) bool) []byte {
	var out []byte
	for _, n := range units {
		for _, match := range is {
			if match(n.Type) {
				out = append(out, 0, 0, 0, 1)
				out = append(out, n.Data...)
				break
			}
		}
	}
	return out
}

// handleVideo queues one access unit and feeds its SEI messages to the
// caption decoders. The first SMPTE timecode becomes file metadata.
func (p *plugin) handleVideo(d *demux.Demuxer, es *elementary, data *mpegts.DemuxerData, pts float64) {
	payload := data.PES.Data
	key := data.FirstPacket.Header.RandomAccessIndicator
	es.captions.frames++

	if es.hevc {
		for _, n := range codec.ParseAnnexBHEVC(payload) {
			switch {
			case codec.IsHEVCKeyframe(n.Type):
				key = true
			case n.Type == codec.HEVCNALSEIPrefix:
				es.captions.sei(d, es, n.Data, pts)
			}
		}
	} else {
		for _, n := range codec.ParseAnnexB(payload) {
			switch {
			case codec.IsKeyframe(n.Type):
				key = true
			case n.Type == codec.NALTypeSEI:
				if !p.timecode && es.sps.PicStructPresent {
					if tc, ok := codec.ParsePicTimingSEI(n.Data, es.sps); ok {
						d.InfoAdd("timecode", tc.String())
						p.timecode = true
					}
				}
				es.captions.sei(d, es, n.Data, pts)
			case codec.IsSPS(n.Type) && !es.known:
				es.inspect(payload)
			}
		}
	}

	pkt := packet.FromBytes(payload)
	pkt.PTS = pts
	pkt.Pos = data.FirstPacket.Pos
	pkt.Keyframe = key
	d.AddPacket(es.track, pkt)
}

// handleAAC queues every ADTS frame of a PES packet as its own packet. The
// PES timestamp belongs to the first frame.
func (p *plugin) handleAAC(d *demux.Demuxer, es *elementary, payload []byte, pts float64, pos int64) {
	frames, err := codec.ParseADTS(payload)
	if err != nil && len(frames) == 0 {
		p.log.Debug("bad ADTS payload", "pid", es.pid, "error", err)
		return
	}
	for i, f := range frames {
		frameDur := 1024 / float64(f.SampleRate)
		pkt := packet.FromBytes(f.Data)
		if pts != packet.NoPTS {
			pkt.PTS = pts + float64(i)*frameDur
		}
		pkt.Duration = frameDur
		pkt.Pos = pos
		pkt.Keyframe = true
		if !d.AddPacket(es.track, pkt) {
			return
		}
	}
}
