// Package subrip reads SubRip (.srt) text subtitles. The whole file is
// parsed into a packet list when it is opened; there is no reliable magic,
// so the format is only tried when guessing hard or when forced.
package subrip

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/zsiec/vdemux/internal/demux"
	"github.com/zsiec/vdemux/internal/packet"
)

// maxFile bounds how much of the input is read as subtitles.
const maxFile = 64 * 1024 * 1024

var (
	errNotSubRip = errors.New("subrip: no cue timing line")
	errNoCues    = errors.New("subrip: no cues")
)

var timing = regexp.MustCompile(`^\s*(\d+):(\d{1,2}):(\d{1,2})[,.](\d{1,3})\s*-->\s*(\d+):(\d{1,2}):(\d{1,2})[,.](\d{1,3})`)

var bom = []byte{0xEF, 0xBB, 0xBF}

// Format is the SubRip plugin.
type Format struct{}

func (Format) Name() string { return "subrip" }
func (Format) Desc() string { return "SubRip subtitles" }

// Probe accepts input with a cue timing line in the probe window. It never
// matches at the normal level, so binary formats are tried first.
func (Format) Probe(d *demux.Demuxer, check demux.Check) error {
	if check == demux.CheckNormal {
		return errNotSubRip
	}
	probe := bytes.TrimPrefix(d.ProbeData(), bom)
	if !utf8.Valid(trimPartialRune(probe)) {
		return errNotSubRip
	}
	sc := bufio.NewScanner(bytes.NewReader(probe))
	for i := 0; i < 8 && sc.Scan(); i++ {
		if timing.MatchString(sc.Text()) {
			return nil
		}
	}
	return errNotSubRip
}

// trimPartialRune drops a rune cut off by the end of the probe window.
func trimPartialRune(b []byte) []byte {
	for i := 0; i < utf8.UTFMax && len(b) > 0; i++ {
		r, size := utf8.DecodeLastRune(b)
		if r != utf8.RuneError || size != 1 {
			break
		}
		b = b[:len(b)-1]
	}
	return b
}

func (Format) Open(d *demux.Demuxer, _ demux.Check) (any, error) {
	data, err := io.ReadAll(io.LimitReader(d.Stream(), maxFile))
	if err != nil {
		return nil, fmt.Errorf("subrip: read: %w", err)
	}
	log := d.Logger().With("component", "subrip")

	var list packet.List
	for _, c := range parse(bytes.TrimPrefix(data, bom)) {
		if c.end < c.start {
			log.Debug("cue ends before it starts", "start", c.start, "end", c.end)
			c.end = c.start
		}
		p := packet.FromBytes([]byte(c.text))
		p.PTS = c.start
		p.Duration = c.end - c.start
		p.Pos = c.pos
		p.Keyframe = true
		list.Packets = append(list.Packets, p)
	}
	if len(list.Packets) == 0 {
		return nil, errNoCues
	}
	list.Sort()

	t, err := d.NewTrack(demux.Subtitle)
	if err != nil {
		list.Release()
		return nil, fmt.Errorf("subrip: %w", err)
	}
	t.Codec = "subrip"
	t.Sub.Text = true

	log.Debug("parsed cues", "count", len(list.Packets))
	d.AccurateSeek = true
	return &plugin{track: t, list: list}, nil
}

type cue struct {
	start, end float64
	text       string
	pos        int64
}

// parse splits data into cues. The index line before a timing line is
// optional; text runs until the next blank line.
func parse(data []byte) []cue {
	var (
		cues []cue
		cur  *cue
		text []string
		pos  int64
	)
	flush := func() {
		if cur != nil {
			cur.text = strings.Join(text, "\n")
			cues = append(cues, *cur)
		}
		cur, text = nil, nil
	}
	for len(data) > 0 {
		lineStart := pos
		line := data
		if i := bytes.IndexByte(data, '\n'); i >= 0 {
			line, data = data[:i], data[i+1:]
			pos += int64(i + 1)
		} else {
			data = nil
			pos += int64(len(line))
		}
		l := strings.TrimRight(string(line), "\r")

		if start, end, ok := parseTiming(l); ok {
			flush()
			cur = &cue{start: start, end: end, pos: lineStart}
			continue
		}
		if cur == nil {
			continue
		}
		if strings.TrimSpace(l) == "" {
			flush()
			continue
		}
		text = append(text, l)
	}
	flush()
	return cues
}

func parseTiming(line string) (start, end float64, ok bool) {
	m := timing.FindStringSubmatch(line)
	if m == nil {
		return 0, 0, false
	}
	return clock(m[1:5]), clock(m[5:9]), true
}

// clock converts hours, minutes, seconds and milliseconds to seconds.
// "5" in the millisecond field means 500 ms, as players read it.
func clock(f []string) float64 {
	h, _ := strconv.Atoi(f[0])
	m, _ := strconv.Atoi(f[1])
	s, _ := strconv.Atoi(f[2])
	ms := f[3]
	for len(ms) < 3 {
		ms += "0"
	}
	frac, _ := strconv.Atoi(ms)
	return float64(h*3600+m*60+s) + float64(frac)/1000
}

type plugin struct {
	track *demux.Track
	list  packet.List
}

func (p *plugin) FillBuffer(d *demux.Demuxer) bool {
	pkt := p.list.Next()
	if pkt == nil {
		return false
	}
	d.AddPacket(p.track, pkt)
	return true
}

func (p *plugin) Seek(_ *demux.Demuxer, rel float64, flags demux.SeekFlags) {
	p.list.Seek(rel, flags&demux.SeekAbsolute != 0, flags&demux.SeekFactor != 0)
}

func (p *plugin) Control(_ *demux.Demuxer, cmd demux.Ctrl, _ any) (any, error) {
	switch cmd {
	case demux.CtrlGetTimeLength:
		return p.list.Duration(), nil
	case demux.CtrlGetStartTime:
		return 0.0, nil
	}
	return nil, demux.ErrUnsupported
}

func (p *plugin) Close(*demux.Demuxer) { p.list.Release() }
