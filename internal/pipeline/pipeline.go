// Package pipeline drains a demuxer: it reads packets from every selected
// track in presentation order and hands them to a Sink, while collecting
// per-type counters that can be read concurrently.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/zsiec/vdemux/internal/demux"
	"github.com/zsiec/vdemux/internal/packet"
)

// Sink consumes packets. The packet is released after WritePacket returns,
// so a sink that keeps the payload must copy it. A non-nil error stops Run.
type Sink interface {
	WritePacket(ctx context.Context, t *demux.Track, p *packet.Packet) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, t *demux.Track, p *packet.Packet) error

func (f SinkFunc) WritePacket(ctx context.Context, t *demux.Track, p *packet.Packet) error {
	return f(ctx, t, p)
}

// TrackStats counts the packets forwarded for one track type.
type TrackStats struct {
	Packets   int64
	Bytes     int64
	Keyframes int64
	LastPTS   float64 // packet.NoPTS until a timed packet is seen
}

// Stats is a point-in-time snapshot of a pipeline.
type Stats struct {
	Tracks  map[demux.TrackType]TrackStats
	Elapsed time.Duration // since New
}

type counters struct {
	packets   atomic.Int64
	bytes     atomic.Int64
	keyframes atomic.Int64
	lastPTS   atomic.Uint64 // float64 bits
}

var trackTypes = [...]demux.TrackType{demux.Video, demux.Audio, demux.Subtitle}

// Pipeline forwards the packets of one demuxer to a sink.
type Pipeline struct {
	log   *slog.Logger
	d     *demux.Demuxer
	sink  Sink
	max   int64
	start time.Time

	counts [len(trackTypes)]counters
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. If nil, slog.Default() is used.
func WithLogger(log *slog.Logger) Option {
	return func(p *Pipeline) { p.log = log }
}

// WithMaxPackets stops Run after n packets. Zero means no limit.
func WithMaxPackets(n int64) Option {
	return func(p *Pipeline) { p.max = n }
}

// New creates a Pipeline reading d and writing to sink.
func New(d *demux.Demuxer, sink Sink, opts ...Option) *Pipeline {
	p := &Pipeline{d: d, sink: sink, start: time.Now()}
	for _, o := range opts {
		o(p)
	}
	if p.log == nil {
		p.log = slog.Default()
	}
	p.log = p.log.With("component", "pipeline")
	for i := range p.counts {
		p.counts[i].lastPTS.Store(floatBits(packet.NoPTS))
	}
	return p
}

// Run forwards packets until the input is exhausted and every selected
// track is drained, the packet limit is hit, the sink fails or ctx is
// cancelled. When no selected track has a packet, Run reads more input
// directly, so tracks that appear while reading are picked up when they are
// selected. Cancellation is not an error.
func (p *Pipeline) Run(ctx context.Context) error {
	ended := make(map[int]bool)
	var sent int64

	for {
		if ctx.Err() != nil {
			p.log.Info("pipeline cancelled", "packets", sent)
			return nil
		}
		t := p.next(ended)
		if t == nil {
			// Formats that create tracks with their first packet have
			// nothing to pick from until the input is read.
			if p.d.FillBuffer() {
				continue
			}
			if p.queued() {
				continue
			}
			p.log.Info("all tracks ended", "packets", sent)
			return nil
		}
		pkt := p.d.ReadPacket(t)
		if pkt == nil {
			ended[t.Index()] = true
			continue
		}
		p.count(t.Type, pkt)
		err := p.sink.WritePacket(ctx, t, pkt)
		pkt.Release()
		if err != nil {
			return fmt.Errorf("pipeline: sink: %w", err)
		}
		sent++
		if p.max > 0 && sent >= p.max {
			p.log.Info("packet limit reached", "packets", sent)
			return nil
		}
	}
}

// next picks the selected track whose next packet has the lowest pts,
// reading input as needed. Packets without a pts go first. A track that
// yields nothing is marked ended until a packet shows up in its queue.
func (p *Pipeline) next(ended map[int]bool) *demux.Track {
	var (
		best    *demux.Track
		bestPTS float64
	)
	for _, t := range p.d.Tracks() {
		if !p.d.IsSelected(t) {
			continue
		}
		if ended[t.Index()] && !p.d.HasPacket(t) {
			continue
		}
		pts := p.d.NextPTS(t)
		if !p.d.HasPacket(t) {
			ended[t.Index()] = true
			continue
		}
		delete(ended, t.Index())
		if best == nil || pts < bestPTS {
			best, bestPTS = t, pts
		}
	}
	return best
}

// queued reports whether a selected track still holds a packet.
func (p *Pipeline) queued() bool {
	for _, t := range p.d.Tracks() {
		if p.d.IsSelected(t) && p.d.HasPacket(t) {
			return true
		}
	}
	return false
}

func (p *Pipeline) count(typ demux.TrackType, pkt *packet.Packet) {
	if int(typ) < 0 || int(typ) >= len(p.counts) {
		return
	}
	c := &p.counts[typ]
	c.packets.Add(1)
	c.bytes.Add(int64(pkt.Len()))
	if pkt.Keyframe {
		c.keyframes.Add(1)
	}
	if pkt.PTS != packet.NoPTS {
		c.lastPTS.Store(floatBits(pkt.PTS))
	}
}

// Stats returns the counters so far. It is safe to call while Run is
// active.
func (p *Pipeline) Stats() Stats {
	s := Stats{Tracks: make(map[demux.TrackType]TrackStats, len(trackTypes))}
	s.Elapsed = time.Since(p.start)
	for i, typ := range trackTypes {
		c := &p.counts[i]
		s.Tracks[typ] = TrackStats{
			Packets:   c.packets.Load(),
			Bytes:     c.bytes.Load(),
			Keyframes: c.keyframes.Load(),
			LastPTS:   floatFrom(c.lastPTS.Load()),
		}
	}
	return s
}

func floatBits(f float64) uint64 { return math.Float64bits(f) }
func floatFrom(b uint64) float64 { return math.Float64frombits(b) }
