package demux

import (
	"errors"
	"math"
	"slices"
	"time"

	"github.com/zsiec/vdemux/internal/stream"
)

// Chapter is one entry of the chapter table. Start and End are offsets from
// the start of the file; End is zero when unknown.
type Chapter struct {
	Name      string
	Start     time.Duration
	End       time.Duration
	DemuxerID int64
	Metadata  *Tags

	originalIndex int
}

// Attachment is a file embedded in the container, such as a font.
type Attachment struct {
	Name string
	MIME string
	Data []byte
}

// AddChapter appends a chapter and returns its index before sorting. The
// name is also stored as the chapter's title tag.
func (d *Demuxer) AddChapter(name string, start, end time.Duration, demuxerID int64) int {
	c := Chapter{
		Name:          name,
		Start:         start,
		End:           end,
		DemuxerID:     demuxerID,
		Metadata:      &Tags{},
		originalIndex: len(d.chapters),
	}
	c.Metadata.Set("TITLE", name)
	d.chapters = append(d.chapters, c)
	return c.originalIndex
}

// AddChapterInfo sets a tag on the chapter with the given DemuxerID.
func (d *Demuxer) AddChapterInfo(demuxerID int64, key, value string) {
	for i := range d.chapters {
		if d.chapters[i].DemuxerID == demuxerID {
			d.chapters[i].Metadata.Set(key, value)
			return
		}
	}
}

// Chapters returns the chapter table.
func (d *Demuxer) Chapters() []Chapter {
	return d.chapters
}

// sortChapters orders chapters by start time. Ties keep insertion order.
func (d *Demuxer) sortChapters() {
	slices.SortFunc(d.chapters, func(a, b Chapter) int {
		if a.Start != b.Start {
			if a.Start < b.Start {
				return -1
			}
			return 1
		}
		return a.originalIndex - b.originalIndex
	})
}

// addStreamChapters fills an empty chapter table from the stream.
func (d *Demuxer) addStreamChapters() {
	if len(d.chapters) > 0 {
		return
	}
	n := d.ChapterCount()
	for i := range n {
		v, err := d.stream.Control(stream.CtrlGetChapterTime, i)
		if err != nil {
			return
		}
		p, _ := v.(float64)
		d.AddChapter("", secondsToDuration(p), 0, 0)
	}
}

// SeekChapter resolves a chapter seek. Without a chapter table the stream
// seeks itself; the result is then (chapter, -1, nil) and the stream has
// already been repositioned. Otherwise the chapter index is clamped at 0
// and the caller seeks to the returned pts in seconds.
func (d *Demuxer) SeekChapter(chapter int) (int, float64, error) {
	if len(d.chapters) == 0 {
		_, err := d.stream.Control(stream.CtrlSeekToChapter, chapter)
		if errors.Is(err, stream.ErrUnsupported) {
			return -1, -1, ErrNoChapter
		}
		if err != nil {
			d.log.Warn("stream chapter seek failed", "chapter", chapter, "error", err)
		}
		d.Flush()
		d.Control(CtrlResync, nil)
		return chapter, -1, nil
	}
	if chapter >= len(d.chapters) {
		return -1, -1, ErrNoChapter
	}
	if chapter < 0 {
		chapter = 0
	}
	return chapter, d.chapters[chapter].Start.Seconds(), nil
}

// CurrentChapter returns the index of the chapter containing time t in
// seconds, -1 before the first chapter, or -2 when the stream cannot tell.
func (d *Demuxer) CurrentChapter(t float64) int {
	if len(d.chapters) == 0 {
		v, err := d.stream.Control(stream.CtrlGetCurrentChapter, nil)
		if err != nil {
			return -2
		}
		n, _ := v.(int)
		return n
	}
	now := time.Duration(t*1e9 + 0.5)
	i := len(d.chapters) - 1
	for ; i >= 0; i-- {
		if d.chapters[i].Start <= now {
			break
		}
	}
	return i
}

// ChapterName returns the chapter's title, or "" for an invalid index.
func (d *Demuxer) ChapterName(chapter int) string {
	if chapter < 0 || chapter >= len(d.chapters) {
		return ""
	}
	v, _ := d.chapters[chapter].Metadata.Get("TITLE")
	return v
}

// ChapterTime returns the chapter's start in seconds, or -1.
func (d *Demuxer) ChapterTime(chapter int) float64 {
	if chapter < 0 || chapter >= len(d.chapters) {
		return -1
	}
	return d.chapters[chapter].Start.Seconds()
}

// ChapterCount returns the number of chapters, asking the stream when the
// demuxer has none.
func (d *Demuxer) ChapterCount() int {
	if len(d.chapters) > 0 {
		return len(d.chapters)
	}
	v, err := d.stream.Control(stream.CtrlGetNumChapters, nil)
	if err != nil {
		return 0
	}
	n, _ := v.(int)
	return n
}

// AddAttachment stores an embedded file and returns its index.
func (d *Demuxer) AddAttachment(name, mime string, data []byte) int {
	d.attachments = append(d.attachments, Attachment{
		Name: name,
		MIME: mime,
		Data: slices.Clone(data),
	})
	return len(d.attachments) - 1
}

// Attachments returns the embedded files.
func (d *Demuxer) Attachments() []Attachment {
	return d.attachments
}

// AnglesCount returns the number of angles the stream offers, or -1.
func (d *Demuxer) AnglesCount() int {
	v, err := d.stream.Control(stream.CtrlGetNumAngles, nil)
	if err != nil {
		return -1
	}
	n, _ := v.(int)
	return n
}

// CurrentAngle returns the stream's current angle, or -1.
func (d *Demuxer) CurrentAngle() int {
	v, err := d.stream.Control(stream.CtrlGetAngle, nil)
	if err != nil {
		return -1
	}
	n, _ := v.(int)
	return n
}

// SetAngle switches the stream to angle and returns it.
func (d *Demuxer) SetAngle(angle int) (int, error) {
	n := d.AnglesCount()
	if n < 1 || angle > n {
		return -1, ErrNoAngle
	}
	d.Flush()
	if _, err := d.stream.Control(stream.CtrlSetAngle, angle); errors.Is(err, stream.ErrUnsupported) {
		return -1, ErrNoAngle
	}
	d.Control(CtrlResync, nil)
	return angle, nil
}

func secondsToDuration(s float64) time.Duration {
	if math.IsNaN(s) || math.IsInf(s, 0) {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}
