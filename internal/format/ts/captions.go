package ts

import (
	"fmt"
	"log/slog"

	"github.com/zsiec/ccx"

	"github.com/zsiec/vdemux/internal/demux"
	"github.com/zsiec/vdemux/internal/packet"
)

// Caption channels 1-4 are CEA-608 CC1-CC4; CEA-708 service n is channel
// n+6.
const (
	cea608Channels = 4
	cea708Services = 6
	cea708Base     = 6
)

type ctrlCode struct {
	pair  [2]byte
	frame int64
	valid bool
}

// captions decodes the closed captions of one video stream into subtitle
// tracks, created when a channel first produces text.
type captions struct {
	log    *slog.Logger
	dec608 map[int]*ccx.CEA608Decoder
	svc708 map[int]*ccx.CEA708Service
	tracks map[int]*demux.Track
	dtvcc  []byte
	ctrl   map[int]ctrlCode // last control code per field
	frames int64
}

func newCaptions(log *slog.Logger) *captions {
	c := &captions{
		log:    log,
		dec608: make(map[int]*ccx.CEA608Decoder),
		svc708: make(map[int]*ccx.CEA708Service),
		tracks: make(map[int]*demux.Track),
		ctrl:   make(map[int]ctrlCode),
	}
	for ch := 1; ch <= cea608Channels; ch++ {
		c.dec608[ch] = ccx.NewCEA608Decoder()
	}
	for svc := 1; svc <= cea708Services; svc++ {
		c.svc708[svc] = ccx.NewCEA708Service()
	}
	return c
}

func (c *captions) reset() {
	c.dtvcc = c.dtvcc[:0]
	clear(c.ctrl)
}

func (c *captions) selected(d *demux.Demuxer) bool {
	for _, t := range c.tracks {
		if t != nil && d.IsSelected(t) {
			return true
		}
	}
	return false
}

// sei decodes the caption data of one SEI NAL unit. CEA-608 control codes
// are sent twice for robustness; a repeat on the same field within two
// frames is dropped.
func (c *captions) sei(d *demux.Demuxer, es *elementary, nal []byte, pts float64) {
	cd := ccx.ExtractCaptions(nal)
	if cd == nil {
		return
	}

	for _, pair := range cd.CC608Pairs {
		cc1, cc2 := pair.Data[0], pair.Data[1]
		f := int(pair.Field)
		if cc1 >= 0x10 && cc1 <= 0x1F {
			code := [2]byte{cc1, cc2}
			last := c.ctrl[f]
			if last.valid && last.pair == code && c.frames-last.frame <= 2 {
				c.ctrl[f] = ctrlCode{}
				continue
			}
			c.ctrl[f] = ctrlCode{pair: code, frame: c.frames, valid: true}
		} else {
			c.ctrl[f] = ctrlCode{}
		}

		dec := c.dec608[pair.Channel]
		if dec == nil {
			continue
		}
		if text := dec.Decode(cc1, cc2); text != "" {
			c.emit(d, es, pair.Channel, text, pts)
		}
	}

	for _, t := range cd.DTVCC {
		if t.Start {
			c.drainDTVCC(d, es, pts)
			c.dtvcc = c.dtvcc[:0]
		}
		c.dtvcc = append(c.dtvcc, t.Data[0], t.Data[1])
	}
}

// drainDTVCC decodes the DTVCC packet assembled so far.
func (c *captions) drainDTVCC(d *demux.Demuxer, es *elementary, pts float64) {
	if len(c.dtvcc) == 0 {
		return
	}
	size := ccx.DTVCCPacketSize(c.dtvcc[0])
	if len(c.dtvcc) < size {
		return
	}
	for _, block := range ccx.ParseDTVCCPacket(c.dtvcc[:size]) {
		svc := c.svc708[block.ServiceNum]
		if svc == nil || !svc.ProcessBlock(block.Data) {
			continue
		}
		if text := svc.DisplayText(); text != "" {
			c.emit(d, es, block.ServiceNum+cea708Base, text, pts)
		}
	}
	c.dtvcc = c.dtvcc[size:]
}

func (c *captions) emit(d *demux.Demuxer, es *elementary, channel int, text string, pts float64) {
	t := c.track(d, es, channel)
	if t == nil {
		return
	}
	pkt := packet.FromBytes([]byte(text))
	pkt.PTS = pts
	pkt.Keyframe = true
	d.AddPacket(t, pkt)
}

func (c *captions) track(d *demux.Demuxer, es *elementary, channel int) *demux.Track {
	if t, ok := c.tracks[channel]; ok {
		return t
	}
	t, err := d.NewTrack(demux.Subtitle)
	if err != nil {
		c.log.Warn("dropping caption channel", "channel", channel, "error", err)
		c.tracks[channel] = nil
		return nil
	}
	t.Codec = "eia_608"
	t.Title = fmt.Sprintf("CC%d", channel)
	if channel > cea708Base {
		t.Codec = "eia_708"
		t.Title = fmt.Sprintf("Service %d", channel-cea708Base)
	}
	t.Lang = es.lang
	t.Sub.Text = true
	c.tracks[channel] = t
	c.log.Debug("new caption track", "pid", es.pid, "channel", channel, "index", t.Index())
	return t
}
