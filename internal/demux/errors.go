package demux

import "errors"

// Errors returned by the demuxer and by format plugins. Control calls map
// their result codes onto these: nil is OK, ErrUnsupported, ErrNotImpl and
// ErrDontKnow are recoverable, anything else is a hard error.
var (
	ErrNoFormat      = errors.New("demux: no matching format")
	ErrUnknownFormat = errors.New("demux: unknown format")
	ErrNotSeekable   = errors.New("demux: not seekable")
	ErrNotImpl       = errors.New("demux: control not implemented")
	ErrUnsupported   = errors.New("demux: control not supported")
	ErrDontKnow      = errors.New("demux: value not known")
	ErrTooManyTracks = errors.New("demux: too many tracks")
	ErrNoChapter     = errors.New("demux: no such chapter")
	ErrNoAngle       = errors.New("demux: no such angle")
)
