package demux

import (
	"github.com/zsiec/vdemux/internal/packet"
)

// TrackType is the kind of elementary stream a track carries.
type TrackType int

const (
	Video TrackType = iota
	Audio
	Subtitle
)

func (t TrackType) String() string {
	switch t {
	case Video:
		return "video"
	case Audio:
		return "audio"
	case Subtitle:
		return "sub"
	}
	return "unknown"
}

// VideoInfo is the video part of a track header.
type VideoInfo struct {
	Width  int
	Height int
	FPS    float64
	Aspect float64
}

// AudioInfo is the audio part of a track header.
type AudioInfo struct {
	SampleRate int
	Channels   int
	Profile    string
}

// SubInfo is the subtitle part of a track header.
type SubInfo struct {
	Text bool // plain text cues rather than bitmaps
}

// TrackInfo is the header of a track. Plugins fill it in while creating the
// track and do not change it afterwards: it is shared by every view of the
// track, including the facade views of a threaded demuxer.
type TrackInfo struct {
	Type      TrackType
	DemuxerID int // per-type index, or a container-native id set by the plugin
	Codec     string
	Title     string
	Lang      string
	Default   bool
	Forced    bool
	Extradata []byte

	Video *VideoInfo
	Audio *AudioInfo
	Sub   *SubInfo
}

// Track is one demuxer's view of an elementary stream: the shared header and
// packet queue plus this demuxer's selection flag and index.
type Track struct {
	*TrackInfo

	demuxer  *Demuxer
	index    int
	selected bool
	queue    *packet.Queue
}

// Index is the track's position among all tracks of its demuxer.
func (t *Track) Index() int { return t.index }

// Selected reports whether the consumer wants packets from the track.
func (t *Track) Selected() bool { return t.selected }

// Queue returns the track's packet queue.
func (t *Track) Queue() *packet.Queue { return t.queue }

// Demuxer returns the demuxer the track belongs to.
func (t *Track) Demuxer() *Demuxer { return t.demuxer }

// view returns a track sharing t's header and queue but belonging to d.
func (t *Track) view(d *Demuxer) *Track {
	return &Track{
		TrackInfo: t.TrackInfo,
		demuxer:   d,
		index:     t.index,
		selected:  t.selected,
		queue:     t.queue,
	}
}

// NewTrack creates a track of type typ and appends it to the demuxer's
// track list. The per-type DemuxerID counts the tracks of the same type
// created before it; plugins may overwrite it with a native id. Selection
// starts from the autoselect flag.
func (d *Demuxer) NewTrack(typ TrackType) (*Track, error) {
	if len(d.tracks) >= d.limits.MaxTracks {
		d.log.Warn("too many tracks, ignoring new one", "type", typ, "max", d.limits.MaxTracks)
		return nil, ErrTooManyTracks
	}
	id := 0
	for _, t := range d.tracks {
		if t.Type == typ {
			id++
		}
	}
	info := &TrackInfo{Type: typ, DemuxerID: id}
	switch typ {
	case Video:
		info.Video = &VideoInfo{}
	case Audio:
		info.Audio = &AudioInfo{}
	case Subtitle:
		info.Sub = &SubInfo{}
	}
	t := &Track{
		TrackInfo: info,
		demuxer:   d,
		index:     len(d.tracks),
		selected:  d.autoselect,
		queue:     packet.NewQueue(),
	}
	d.tracks = append(d.tracks, t)
	return t, nil
}

// Tracks returns the demuxer's tracks in creation order.
func (d *Demuxer) Tracks() []*Track {
	return d.tracks
}

// Track returns the track with the given index, or nil.
func (d *Demuxer) Track(index int) *Track {
	if index < 0 || index >= len(d.tracks) {
		return nil
	}
	return d.tracks[index]
}

// TrackByDemuxerID returns the track of type typ with the given DemuxerID.
func (d *Demuxer) TrackByDemuxerID(typ TrackType, id int) *Track {
	for _, t := range d.tracks {
		if t.Type == typ && t.DemuxerID == id {
			return t
		}
	}
	return nil
}

// SelectTrack sets the selection state of t. A change flushes the track's
// queue and tells the plugin; setting the current state again does nothing.
func (d *Demuxer) SelectTrack(t *Track, selected bool) {
	if t.selected == selected {
		return
	}
	t.selected = selected
	t.queue.Flush()
	d.Control(CtrlSwitchedTracks, nil)
}

// SwitchTrack selects cur and deselects every other track of type typ. A
// nil cur deselects all of them.
func (d *Demuxer) SwitchTrack(typ TrackType, cur *Track) {
	for _, t := range d.tracks {
		if t.Type == typ {
			d.SelectTrack(t, t == cur)
		}
	}
}

// EnableAutoselect makes tracks created from now on start selected.
func (d *Demuxer) EnableAutoselect(enable bool) {
	d.autoselect = enable
}

// IsSelected reports whether t is selected. A nil track is not.
func (d *Demuxer) IsSelected(t *Track) bool {
	return t != nil && t.selected
}
