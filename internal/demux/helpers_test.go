package demux

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zsiec/vdemux/internal/packet"
	"github.com/zsiec/vdemux/internal/stream"
)

const (
	synthMagic = "SYNTH"
	synthFrame = 0.02
)

// synthData is a synthetic container: a magic string followed by n 4-byte
// records holding their own index.
func synthData(magic string, n int) []byte {
	b := []byte(magic)
	for i := range n {
		b = binary.BigEndian.AppendUint32(b, uint32(i))
	}
	return b
}

// synthFormat accepts synthData. Without a magic it is a guesser that only
// accepts at CheckUnsafe or when forced.
type synthFormat struct {
	name     string
	magic    string
	tracks   int
	typ      TrackType
	failOpen bool
	extraAt  int // create a subtitle track when this record is read, 0 never

	mu     sync.Mutex
	checks []Check
	plugin *synthPlugin
}

func (f *synthFormat) Name() string { return f.name }
func (f *synthFormat) Desc() string { return "synthetic " + f.name }

func (f *synthFormat) Probe(d *Demuxer, check Check) error {
	if f.magic == "" {
		if check > CheckUnsafe {
			return errors.New("guessing only")
		}
		return nil
	}
	if check != CheckForce && !bytes.HasPrefix(d.ProbeData(), []byte(f.magic)) {
		return errors.New("no magic")
	}
	return nil
}

func (f *synthFormat) Open(d *Demuxer, check Check) (any, error) {
	f.mu.Lock()
	f.checks = append(f.checks, check)
	f.mu.Unlock()

	s := d.Stream()
	if err := s.ReadFull(make([]byte, len(f.magic))); err != nil {
		return nil, err
	}
	if f.failOpen {
		return nil, errors.New("corrupt header")
	}
	p := &synthPlugin{base: s.Tell(), extraAt: f.extraAt}
	for range max(f.tracks, 1) {
		t, err := d.NewTrack(f.typ)
		if err != nil {
			return nil, err
		}
		t.Codec = "pcm"
		p.tracks = append(p.tracks, t)
	}
	f.plugin = p
	return p, nil
}

func (f *synthFormat) seenChecks() []Check {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Check(nil), f.checks...)
}

type synthPlugin struct {
	base    int64
	extraAt int
	tracks  []*Track

	mu    sync.Mutex
	next  int
	ctrls []Ctrl
	seeks []float64
}

func (p *synthPlugin) FillBuffer(d *Demuxer) bool {
	buf := make([]byte, 4)
	pos := d.Stream().Tell()
	if err := d.Stream().ReadFull(buf); err != nil {
		return false
	}
	p.mu.Lock()
	n := p.next
	p.next++
	p.mu.Unlock()

	if p.extraAt > 0 && n == p.extraAt {
		if _, err := d.NewTrack(Subtitle); err != nil {
			return false
		}
	}
	pkt := packet.FromBytes(buf)
	pkt.PTS = float64(n) * synthFrame
	pkt.Duration = synthFrame
	pkt.Pos = pos
	d.AddPacket(p.tracks[n%len(p.tracks)], pkt)
	return true
}

func (p *synthPlugin) Seek(d *Demuxer, rel float64, flags SeekFlags) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seeks = append(p.seeks, rel)

	target := rel
	if flags&SeekFactor != 0 {
		target = rel * float64((d.Stream().EndPos()-p.base)/4) * synthFrame
	}
	if flags&SeekAbsolute == 0 {
		target += float64(p.next) * synthFrame
	}
	idx := max(int(math.Round(target/synthFrame)), 0)
	if err := d.Stream().Seek(p.base + int64(idx)*4); err == nil {
		p.next = idx
	}
}

func (p *synthPlugin) Control(d *Demuxer, cmd Ctrl, arg any) (any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ctrls = append(p.ctrls, cmd)
	switch cmd {
	case CtrlGetTimeLength:
		end := d.Stream().EndPos()
		if end < 0 {
			return nil, ErrDontKnow
		}
		return float64((end-p.base)/4) * synthFrame, nil
	case CtrlResync, CtrlSwitchedTracks, CtrlFlush, CtrlUpdateInfo:
		return nil, nil
	}
	return nil, ErrUnsupported
}

func (p *synthPlugin) count(cmd Ctrl) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.ctrls {
		if c == cmd {
			n++
		}
	}
	return n
}

func (p *synthPlugin) seekCalls() []float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]float64(nil), p.seeks...)
}

// ctrlSource is a seekable in-memory source that answers the controls in
// answers. CtrlGetChapterTime answers index into a []float64.
type ctrlSource struct {
	*bytes.Reader

	mu      sync.Mutex
	answers map[stream.Command]any
	calls   []stream.Command
	args    []any
}

func newCtrlSource(data []byte, answers map[stream.Command]any) *ctrlSource {
	return &ctrlSource{Reader: bytes.NewReader(data), answers: answers}
}

func (s *ctrlSource) Close() error { return nil }

func (s *ctrlSource) Control(cmd stream.Command, arg any) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, cmd)
	s.args = append(s.args, arg)
	v, ok := s.answers[cmd]
	if !ok {
		return nil, stream.ErrUnsupported
	}
	if cmd == stream.CtrlGetChapterTime {
		times, _ := v.([]float64)
		n, _ := arg.(int)
		if n < 0 || n >= len(times) {
			return nil, stream.ErrUnsupported
		}
		return times[n], nil
	}
	return v, nil
}

func (s *ctrlSource) argsFor(cmd stream.Command) []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []any
	for i, c := range s.calls {
		if c == cmd {
			out = append(out, s.args[i])
		}
	}
	return out
}

// slowReader delays every read so a reader goroutine is observably busy.
type slowReader struct {
	r     io.Reader
	delay time.Duration
}

func (s slowReader) Read(p []byte) (int, error) {
	time.Sleep(s.delay)
	return s.r.Read(p)
}

func (s slowReader) Close() error { return nil }

type fakeStats struct {
	mu        sync.Mutex
	packets   int
	overflows int
	seeks     int
	failed    int
}

func (f *fakeStats) RecordPacket(string, TrackType, int) {
	f.mu.Lock()
	f.packets++
	f.mu.Unlock()
}

func (f *fakeStats) RecordQueueDepth(string, TrackType, int, int, int) {}

func (f *fakeStats) RecordOverflow(string) {
	f.mu.Lock()
	f.overflows++
	f.mu.Unlock()
}

func (f *fakeStats) RecordSeek(_ string, ok bool) {
	f.mu.Lock()
	f.seeks++
	if !ok {
		f.failed++
	}
	f.mu.Unlock()
}

// openSynth opens n synthetic audio records with autoselect on.
func openSynth(t *testing.T, n int, opts ...Option) (*Demuxer, *synthFormat) {
	t.Helper()
	f := &synthFormat{name: "synth", magic: synthMagic, tracks: 1, typ: Audio}
	opts = append([]Option{WithAutoselect()}, opts...)
	d, err := Open(stream.NewMemory(synthData(synthMagic, n)), []Format{f}, opts...)
	require.NoError(t, err)
	return d, f
}
