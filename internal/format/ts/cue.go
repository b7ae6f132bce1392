package ts

import (
	"strconv"
	"time"

	"github.com/zsiec/vdemux/internal/demux"
	"github.com/zsiec/vdemux/internal/mpegts"
	"github.com/zsiec/vdemux/internal/packet"
	"github.com/zsiec/vdemux/internal/scte35"
)

// cue is a decoded splice event waiting to become a chapter.
type cue struct {
	name     string
	command  uint32
	eventID  uint32
	pts      float64 // seconds, NoPTS for immediate splices
	duration float64 // seconds, 0 when unknown
}

// parseCue intercepts the sections of SCTE-35 PIDs. Everything else goes
// through the standard parsers.
func (p *plugin) parseCue(ps []*mpegts.Packet) ([]*mpegts.DemuxerData, bool, error) {
	if len(ps) == 0 || !p.cuePIDs[ps[0].Header.PID] {
		return nil, false, nil
	}
	var payload []byte
	for _, pkt := range ps {
		payload = append(payload, pkt.Payload...)
	}
	if len(payload) < 1 || 1+int(payload[0]) >= len(payload) {
		return nil, true, nil
	}
	section := payload[1+int(payload[0]):]

	sis, err := scte35.DecodeBytes(section)
	if err != nil {
		p.log.Warn("bad SCTE-35 section", "pid", ps[0].Header.PID, "error", err)
		return nil, true, nil
	}
	if _, ok := sis.SpliceCommand.(*scte35.SpliceNull); ok {
		return nil, true, nil
	}

	c := cue{name: sis.Name(), pts: packet.NoPTS}
	if sis.SpliceCommand != nil {
		c.command = sis.SpliceCommand.Type()
	}
	if pts, ok := sis.SplicePTS(); ok {
		c.pts = float64(pts) / 90000
	}
	if ins, ok := sis.SpliceCommand.(*scte35.SpliceInsert); ok {
		c.eventID = ins.SpliceEventID
		if ins.BreakDuration != nil {
			c.duration = float64(ins.BreakDuration.Duration) / 90000
		}
	}
	for _, desc := range sis.SpliceDescriptors {
		if sd, ok := desc.(*scte35.SegmentationDescriptor); ok {
			c.eventID = sd.SegmentationEventID
			if sd.SegmentationDuration != nil {
				c.duration = float64(*sd.SegmentationDuration) / 90000
			}
			break
		}
	}
	p.log.Debug("SCTE-35", "name", c.name, "event_id", c.eventID, "pts", c.pts)
	p.cues = append(p.cues, c)
	return nil, true, nil
}

// drainCues turns queued splice events into chapters. Chapter times are
// relative to the first pts of the file; immediate splices happen at the
// last pts seen.
func (p *plugin) drainCues(d *demux.Demuxer) {
	if len(p.cues) == 0 || p.firstPTS == packet.NoPTS {
		return
	}
	for _, c := range p.cues {
		at := c.pts
		if at == packet.NoPTS {
			at = p.lastPTS
		}
		start := max(at-p.firstPTS, 0)
		var end float64
		if c.duration > 0 {
			end = start + c.duration
		}
		p.cueID++
		id := p.cueID
		d.AddChapter(c.name, seconds(start), seconds(end), id)
		d.AddChapterInfo(id, "SCTE35_COMMAND", strconv.FormatUint(uint64(c.command), 10))
		if c.eventID != 0 {
			d.AddChapterInfo(id, "SCTE35_EVENT_ID", strconv.FormatUint(uint64(c.eventID), 10))
		}
	}
	p.cues = p.cues[:0]
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
