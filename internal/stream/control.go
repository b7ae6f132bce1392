package stream

import "errors"

// Command identifies a side-channel query or action sent to a source via
// Stream.Control.
type Command int

// Stream control commands. Argument and result types are listed per command.
const (
	CtrlGetTimeLength   Command = iota + 1 // result float64 seconds
	CtrlGetStartTime                       // result float64 seconds
	CtrlGetSize                            // result int64 bytes
	CtrlManagesTimeline                    // nil error means yes
	CtrlGetNumChapters                     // result int
	CtrlGetChapterTime                     // arg int chapter, result float64 seconds
	CtrlSeekToChapter                      // arg int chapter
	CtrlGetCurrentChapter                  // result int
	CtrlSeekToTime                         // arg float64 seconds
	CtrlGetMetadata                        // result []Tag
	CtrlGetCacheSize                       // result int64 bytes
	CtrlGetCacheFill                       // result int64 bytes
	CtrlGetCacheIdle                       // result bool
	CtrlGetNumAngles                       // result int
	CtrlGetAngle                           // result int
	CtrlSetAngle                           // arg int angle
)

var commandNames = map[Command]string{
	CtrlGetTimeLength:     "get-time-length",
	CtrlGetStartTime:      "get-start-time",
	CtrlGetSize:           "get-size",
	CtrlManagesTimeline:   "manages-timeline",
	CtrlGetNumChapters:    "get-num-chapters",
	CtrlGetChapterTime:    "get-chapter-time",
	CtrlSeekToChapter:     "seek-to-chapter",
	CtrlGetCurrentChapter: "get-current-chapter",
	CtrlSeekToTime:        "seek-to-time",
	CtrlGetMetadata:       "get-metadata",
	CtrlGetCacheSize:      "get-cache-size",
	CtrlGetCacheFill:      "get-cache-fill",
	CtrlGetCacheIdle:      "get-cache-idle",
	CtrlGetNumAngles:      "get-num-angles",
	CtrlGetAngle:          "get-angle",
	CtrlSetAngle:          "set-angle",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return "unknown"
}

// NeedsFlush reports whether the command repositions the source, so cached
// data and cached control answers become stale.
func (c Command) NeedsFlush() bool {
	switch c {
	case CtrlSeekToTime, CtrlSeekToChapter, CtrlSetAngle:
		return true
	}
	return false
}

// Errors returned by stream operations.
var (
	ErrUnsupported = errors.New("stream: control not supported")
	ErrNotSeekable = errors.New("stream: not seekable")
	ErrWrapperIO   = errors.New("stream: direct I/O on demuxer wrapper stream")
	ErrNotCached   = errors.New("stream: position outside cache window")
	ErrClosed      = errors.New("stream: closed")
)

// Tag is one metadata key/value pair reported by a source.
type Tag struct {
	Key   string
	Value string
}

// Controller is implemented by sources that answer control commands.
type Controller interface {
	Control(cmd Command, arg any) (any, error)
}
