// Package demux turns a byte stream into per-track packet queues. A Demuxer
// probes the stream against a list of format plugins, owns the tracks the
// winning plugin creates, and pulls packets on demand. NewThreaded runs a
// demuxer on its own goroutine behind a facade with the same API.
package demux

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/zsiec/vdemux/internal/packet"
	"github.com/zsiec/vdemux/internal/stream"
)

// Limits bound the demuxer's buffering and the threaded read-ahead.
type Limits struct {
	MaxPackets     int           // per-track queued packets before the queue counts as full
	MaxBytes       int           // per-track queued bytes before the queue counts as full
	MaxTracks      int           // tracks a demuxer accepts
	Readahead      int           // packets the threaded wrapper keeps queued per selected track
	UpdateInterval time.Duration // threaded snapshot refresh period
	IdleWait       time.Duration // threaded idle wait before rechecking
}

// DefaultLimits returns the stock limits.
func DefaultLimits() Limits {
	return Limits{
		MaxPackets:     16000,
		MaxBytes:       400 * 1024 * 1024,
		MaxTracks:      256,
		Readahead:      70,
		UpdateInterval: time.Second,
		IdleWait:       10 * time.Second,
	}
}

func (l Limits) withDefaults() Limits {
	def := DefaultLimits()
	if l.MaxPackets <= 0 {
		l.MaxPackets = def.MaxPackets
	}
	if l.MaxBytes <= 0 {
		l.MaxBytes = def.MaxBytes
	}
	if l.MaxTracks <= 0 {
		l.MaxTracks = def.MaxTracks
	}
	if l.Readahead <= 0 {
		l.Readahead = def.Readahead
	}
	if l.UpdateInterval <= 0 {
		l.UpdateInterval = def.UpdateInterval
	}
	if l.IdleWait <= 0 {
		l.IdleWait = def.IdleWait
	}
	return l
}

// StatsRecorder receives demuxer telemetry. internal/metrics implements it.
type StatsRecorder interface {
	RecordPacket(format string, typ TrackType, bytes int)
	RecordQueueDepth(format string, typ TrackType, index, packets, bytes int)
	RecordOverflow(format string)
	RecordSeek(format string, ok bool)
}

type options struct {
	format     string
	limits     Limits
	log        *slog.Logger
	stats      StatsRecorder
	autoselect bool
}

// Option configures Open.
type Option func(*options)

// WithFormat forces a format by name. A "+" prefix forces it even when its
// probe would reject the input.
func WithFormat(name string) Option {
	return func(o *options) { o.format = name }
}

// WithLimits overrides the buffering limits. Zero fields keep the default.
func WithLimits(l Limits) Option {
	return func(o *options) { o.limits = l }
}

// WithLogger sets the logger. If nil, slog.Default() is used.
func WithLogger(log *slog.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithStats attaches a telemetry recorder.
func WithStats(s StatsRecorder) Option {
	return func(o *options) { o.stats = s }
}

// WithAutoselect selects tracks as they are created.
func WithAutoselect() Option {
	return func(o *options) { o.autoselect = true }
}

// Demuxer reads one container from a stream. Its methods are not safe for
// concurrent use; NewThreaded provides read-ahead on a separate goroutine.
type Demuxer struct {
	// Filetype is a human readable description of the container, set by
	// the plugin or defaulting to the format description.
	Filetype string
	// Seekable reports whether Seek can work. Plugins may clear it.
	Seekable bool
	// AccurateSeek reports whether seek targets are hit exactly.
	AccurateSeek bool

	log         *slog.Logger
	stats       StatsRecorder
	limits      Limits
	format      Format
	plugin      any
	stream      *stream.Stream
	probe       []byte
	tracks      []*Track
	chapters    []Chapter
	attachments []Attachment
	metadata    *Tags
	autoselect  bool
	warned      bool
	filepos     int64
	streamPTS   float64
}

func newDemuxer(s *stream.Stream, f Format, o *options) *Demuxer {
	return &Demuxer{
		Seekable:     s.Seekable() && s.EndPos() > 0,
		AccurateSeek: true,
		log:          o.log.With("format", f.Name()),
		stats:        o.stats,
		limits:       o.limits,
		format:       f,
		stream:       s,
		metadata:     &Tags{},
		autoselect:   o.autoselect,
		filepos:      -1,
		streamPTS:    packet.NoPTS,
	}
}

// Open probes s against formats and returns a demuxer for the first format
// that accepts it. Without a forced format the stream's own hint is used.
// A forced format is tried alone; otherwise every format is tried at
// CheckNormal, then again at CheckUnsafe.
func Open(s *stream.Stream, formats []Format, opts ...Option) (*Demuxer, error) {
	o := &options{limits: DefaultLimits()}
	for _, fn := range opts {
		fn(o)
	}
	if o.log == nil {
		o.log = slog.Default()
	}
	o.log = o.log.With("component", "demux")
	o.limits = o.limits.withDefaults()

	force := o.format
	if force == "" {
		force = s.Demuxer
	}
	levels := []Check{CheckNormal, CheckUnsafe}
	var forced Format
	if force != "" {
		levels = []Check{CheckRequest}
		if name, ok := strings.CutPrefix(force, "+"); ok {
			force = name
			levels = []Check{CheckForce}
		}
		for _, f := range formats {
			if f.Name() == force {
				forced = f
				break
			}
		}
		if forced == nil {
			o.log.Error("demuxer does not exist", "format", force)
			return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, force)
		}
	}

	if _, err := s.Peek(stream.ProbeSize); err != nil {
		return nil, fmt.Errorf("probe window: %w", err)
	}
	for _, level := range levels {
		for _, f := range formats {
			if forced != nil && f.Name() != forced.Name() {
				continue
			}
			d, err := openFormat(s, f, level, o)
			if err == nil {
				return d, nil
			}
			o.log.Debug("format rejected", "format", f.Name(), "check", level, "error", err)
		}
	}
	return nil, ErrNoFormat
}

func openFormat(s *stream.Stream, f Format, check Check, o *options) (*Demuxer, error) {
	d := newDemuxer(s, f, o)
	if err := s.Seek(s.StartPos()); err != nil {
		d.log.Debug("rewind before probe failed", "error", err)
	}
	d.probe, _ = s.Peek(stream.ProbeSize)
	d.log.Debug("trying format", "check", check)

	if err := f.Probe(d, check); err != nil {
		d.free()
		return nil, err
	}
	plugin, err := f.Open(d, check)
	if err != nil {
		d.free()
		return nil, err
	}
	d.plugin = plugin
	d.probe = nil
	if d.Filetype == "" {
		d.Filetype = f.Desc()
	}
	d.log.Info("detected file format", "filetype", d.Filetype, "check", check)

	if s.ManagesTimeline() {
		d.AccurateSeek = false
	}
	d.addStreamChapters()
	d.sortChapters()
	d.InfoUpdate()
	if !d.Seekable && s.Uncached != nil {
		d.log.Warn("stream is not seekable, enabling seeking through the cache")
		d.Seekable = true
	}
	return d, nil
}

func (d *Demuxer) free() {
	for _, t := range d.tracks {
		t.queue.Flush()
	}
	d.tracks = nil
}

// Close releases the plugin and every queued packet. The stream stays open;
// it belongs to the caller.
func (d *Demuxer) Close() {
	if c, ok := d.plugin.(Closer); ok {
		c.Close(d)
	}
	d.plugin = nil
	d.free()
}

// Name returns the format name.
func (d *Demuxer) Name() string { return d.format.Name() }

// Desc returns the format description.
func (d *Demuxer) Desc() string { return d.format.Desc() }

// Stream returns the stream the demuxer reads from.
func (d *Demuxer) Stream() *stream.Stream { return d.stream }

// Logger returns the demuxer's logger, for plugins.
func (d *Demuxer) Logger() *slog.Logger { return d.log }

// Limits returns the buffering limits in effect.
func (d *Demuxer) Limits() Limits { return d.limits }

// ProbeData returns the peeked probe window. It is only valid during Probe
// and Open.
func (d *Demuxer) ProbeData() []byte { return d.probe }

// Plugin returns the state the format's Open returned.
func (d *Demuxer) Plugin() any { return d.plugin }

// FilePos returns the byte position of the last queued packet, or -1.
func (d *Demuxer) FilePos() int64 { return d.filepos }

// StreamPTS returns the stream-level timestamp of the last read packet
// that carried one, or packet.NoPTS.
func (d *Demuxer) StreamPTS() float64 { return d.streamPTS }

// AddPacket queues p on t. It returns false and releases p when either is
// nil or t is not selected. Plugins call it for every packet they produce.
func (d *Demuxer) AddPacket(t *Track, p *packet.Packet) bool {
	if p == nil || t == nil || !t.selected {
		if p != nil {
			p.Release()
		}
		return false
	}
	p.Stream = t.index
	if p.Pos >= 0 {
		d.filepos = p.Pos
	}
	n := p.Len()
	d.log.Debug("new packet", "type", t.Type, "index", t.index, "len", n, "pts", p.PTS, "pos", p.Pos)
	t.queue.Push(p)
	if d.stats != nil {
		d.stats.RecordPacket(d.format.Name(), t.Type, n)
	}
	return true
}

// QueueFull reports whether any track has reached the packet or byte limit.
// Plugins that produce packets for several tracks should stop reading once
// it is true. The first overflow after a flush is logged.
func (d *Demuxer) QueueFull() bool {
	for _, t := range d.tracks {
		bytes, count := t.queue.Size()
		if d.stats != nil {
			d.stats.RecordQueueDepth(d.format.Name(), t.Type, t.index, count, bytes)
		}
		if count > d.limits.MaxPackets || bytes > d.limits.MaxBytes {
			if !d.warned {
				d.log.Error("too many packets in the demuxer packet queue",
					"type", t.Type, "index", t.index, "packets", count, "bytes", bytes)
				if d.stats != nil {
					d.stats.RecordOverflow(d.format.Name())
				}
			}
			d.warned = true
			return true
		}
	}
	return false
}

// FillBuffer asks the plugin to read one unit of input. It returns false at
// the end of input or when the plugin cannot fill.
func (d *Demuxer) FillBuffer() bool {
	f, ok := d.plugin.(Filler)
	if !ok {
		return false
	}
	return f.FillBuffer(d)
}

// getPackets fills until t has a packet, the queues are full, or the input
// ends. A track left empty is marked EOF.
func (d *Demuxer) getPackets(t *Track) {
	for t.queue.IsEmpty() {
		if d.QueueFull() {
			break
		}
		if !d.FillBuffer() {
			break
		}
	}
	if t.queue.IsEmpty() {
		d.log.Debug("track reached EOF", "type", t.Type, "index", t.index)
	}
	t.queue.SetEOF(true)
}

// ReadPacket returns the next packet of t, reading input as needed. It
// returns nil at end of stream or when the other queues are full. The
// caller owns the packet.
func (d *Demuxer) ReadPacket(t *Track) *packet.Packet {
	d.getPackets(t)
	p := t.queue.Pop()
	if p != nil && p.StreamPTS != packet.NoPTS {
		d.streamPTS = p.StreamPTS
	}
	return p
}

// NextPTS returns the pts of the packet ReadPacket would return next,
// reading input if none is queued.
func (d *Demuxer) NextPTS(t *Track) float64 {
	d.getPackets(t)
	return t.queue.PeekPTS()
}

// HasPacket reports whether t has a queued packet. It never reads.
func (d *Demuxer) HasPacket(t *Track) bool {
	return t != nil && !t.queue.IsEmpty()
}

// TrackEOF reports whether reading t has hit the end of input. A nil track
// is always at EOF.
func (d *Demuxer) TrackEOF(t *Track) bool {
	return t == nil || t.queue.IsEOF()
}

// Flush tells the plugin and drops every queued packet.
func (d *Demuxer) Flush() {
	d.Control(CtrlFlush, nil)
	for _, t := range d.tracks {
		t.queue.Flush()
	}
	d.warned = false
}

// Seek repositions the demuxer. rel is in seconds, from the current stream
// position unless SeekAbsolute is set, and a fraction of the duration when
// SeekFactor is set. Every queue is flushed first. Streams that manage
// their own timeline are seeked by time and the plugin resyncs; otherwise
// the plugin seeks.
func (d *Demuxer) Seek(rel float64, flags SeekFlags) error {
	if !d.Seekable {
		d.log.Warn("cannot seek in this file")
		d.recordSeek(false)
		return ErrNotSeekable
	}
	if rel == packet.NoPTS && flags&SeekAbsolute != 0 {
		d.recordSeek(false)
		return fmt.Errorf("seek: %w", ErrDontKnow)
	}

	d.Flush()

	if d.stream.ManagesTimeline() {
		if pts, ok := d.timelineTarget(rel, flags); ok {
			_, err := d.stream.Control(stream.CtrlSeekToTime, pts)
			if !errors.Is(err, stream.ErrUnsupported) {
				d.Control(CtrlResync, nil)
				d.recordSeek(err == nil)
				return nil
			}
		}
	}

	if s, ok := d.plugin.(Seeker); ok {
		s.Seek(d, rel, flags)
	}
	d.recordSeek(true)
	return nil
}

func (d *Demuxer) timelineTarget(rel float64, flags SeekFlags) (float64, bool) {
	pts := d.streamPTS
	if flags&SeekAbsolute != 0 {
		pts = 0
	}
	if pts == packet.NoPTS {
		return 0, false
	}
	if flags&SeekFactor != 0 {
		v, err := d.stream.Control(stream.CtrlGetTimeLength, nil)
		if err != nil {
			return 0, false
		}
		length, _ := v.(float64)
		return pts + length*rel, true
	}
	return pts + rel, true
}

func (d *Demuxer) recordSeek(ok bool) {
	if d.stats != nil {
		d.stats.RecordSeek(d.format.Name(), ok)
	}
}

// Control sends cmd to the plugin. It returns ErrNotImpl when the plugin
// takes no controls.
func (d *Demuxer) Control(cmd Ctrl, arg any) (any, error) {
	c, ok := d.plugin.(Controller)
	if !ok {
		return nil, ErrNotImpl
	}
	return c.Control(d, cmd, arg)
}

// TimeLength returns the duration in seconds, asking the stream first and
// then the plugin, or -1 when neither knows.
func (d *Demuxer) TimeLength() float64 {
	if v, err := d.stream.Control(stream.CtrlGetTimeLength, nil); err == nil {
		if f, ok := v.(float64); ok {
			return f
		}
	}
	if v, err := d.Control(CtrlGetTimeLength, nil); err == nil {
		if f, ok := v.(float64); ok {
			return f
		}
	}
	return -1
}

// StartTime returns the timestamp of the start of the file in seconds,
// asking the stream first and then the plugin, or 0.
func (d *Demuxer) StartTime() float64 {
	if v, err := d.stream.Control(stream.CtrlGetStartTime, nil); err == nil {
		if f, ok := v.(float64); ok {
			return f
		}
	}
	if v, err := d.Control(CtrlGetStartTime, nil); err == nil {
		if f, ok := v.(float64); ok {
			return f
		}
	}
	return 0
}

func (d *Demuxer) streamMetadata() []stream.Tag {
	v, err := d.stream.Control(stream.CtrlGetMetadata, nil)
	if err != nil {
		return nil
	}
	tags, _ := v.([]stream.Tag)
	return tags
}
