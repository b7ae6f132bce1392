package demux

// Check is the confidence level a format probe runs at. Probes get stricter
// toward CheckNormal; CheckUnsafe is the last resort for formats that can
// only be guessed.
type Check int

const (
	CheckForce   Check = iota // format forced with "+name"; accept anything parseable
	CheckUnsafe               // guessing allowed
	CheckRequest              // format requested by name; trust it unless clearly wrong
	CheckNormal               // ordinary probe
)

func (c Check) String() string {
	switch c {
	case CheckForce:
		return "force"
	case CheckUnsafe:
		return "unsafe"
	case CheckRequest:
		return "request"
	case CheckNormal:
		return "normal"
	}
	return "unknown"
}

// Ctrl is a demuxer control command sent to a format plugin.
type Ctrl int

const (
	CtrlGetTimeLength   Ctrl = iota + 1 // result float64 seconds
	CtrlGetStartTime                    // result float64 seconds
	CtrlResync                          // the stream was repositioned underneath the plugin
	CtrlSwitchedTracks                  // track selection changed
	CtrlUpdateInfo                      // refresh metadata
	CtrlFlush                           // queues are about to be flushed
	CtrlIdentifyProgram                 // arg *Program, filled by the plugin
)

func (c Ctrl) String() string {
	switch c {
	case CtrlGetTimeLength:
		return "get-time-length"
	case CtrlGetStartTime:
		return "get-start-time"
	case CtrlResync:
		return "resync"
	case CtrlSwitchedTracks:
		return "switched-tracks"
	case CtrlUpdateInfo:
		return "update-info"
	case CtrlFlush:
		return "flush"
	case CtrlIdentifyProgram:
		return "identify-program"
	}
	return "unknown"
}

// Program is the argument of CtrlIdentifyProgram: the caller fills in the
// tracks it has now and the plugin replaces them with a consistent program.
type Program struct {
	Progid   int
	Video    int
	Audio    int
	Subtitle int
}

// SeekFlags modify how Seek interprets its target.
type SeekFlags int

const (
	SeekAbsolute SeekFlags = 1 << iota // target is from the start, not the current position
	SeekFactor                         // target is a fraction of the duration
	SeekForward                        // prefer landing after the target
	SeekBackward                       // prefer landing before the target
)

// Format is a container plugin. Probe inspects d.ProbeData() without
// consuming the stream; Open parses headers, creates tracks and returns the
// plugin state the demuxer hands back on every later call. The state may
// implement Filler, Seeker, Controller and Closer.
type Format interface {
	Name() string
	Desc() string
	Probe(d *Demuxer, check Check) error
	Open(d *Demuxer, check Check) (any, error)
}

// Filler reads one unit of input and adds zero or more packets. It returns
// false only at the true end of input.
type Filler interface {
	FillBuffer(d *Demuxer) bool
}

// Seeker repositions the plugin's read cursor.
type Seeker interface {
	Seek(d *Demuxer, rel float64, flags SeekFlags)
}

// Controller answers demuxer control commands.
type Controller interface {
	Control(d *Demuxer, cmd Ctrl, arg any) (any, error)
}

// Closer releases plugin state.
type Closer interface {
	Close(d *Demuxer)
}
