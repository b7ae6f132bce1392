package stream

import (
	"errors"
	"math"
	"slices"
)

// NoTime marks an unknown start time in a CacheCtrls snapshot.
var NoTime = math.Inf(-1)

// CacheCtrls is a snapshot of the control answers that are cheap to serve
// without touching the stream. The threaded demuxer refreshes it
// periodically on its own goroutine and answers the consumer's queries
// from it.
type CacheCtrls struct {
	TimeLength      float64
	StartTime       float64
	Size            int64
	ManagesTimeline bool
	NumChapters     int
	CacheIdle       bool
	CacheFill       int64
	CacheSize       int64
	Metadata        []Tag
}

// Update queries s for every snapshot field. The caller synchronizes.
func (c *CacheCtrls) Update(s *Stream) {
	c.CacheSize = 0
	if v, err := s.Control(CtrlGetCacheSize, nil); err == nil {
		c.CacheSize, _ = v.(int64)
	}
	c.CacheFill = 0
	if v, err := s.Control(CtrlGetCacheFill, nil); err == nil {
		c.CacheFill, _ = v.(int64)
	}
	c.CacheIdle = false
	if v, err := s.Control(CtrlGetCacheIdle, nil); err == nil {
		c.CacheIdle, _ = v.(bool)
	}
	c.TimeLength = 0
	if v, err := s.Control(CtrlGetTimeLength, nil); err == nil {
		c.TimeLength, _ = v.(float64)
	}
	c.StartTime = NoTime
	if v, err := s.Control(CtrlGetStartTime, nil); err == nil {
		if f, ok := v.(float64); ok {
			c.StartTime = f
		}
	}
	c.ManagesTimeline = s.ManagesTimeline()
	c.NumChapters = 0
	if v, err := s.Control(CtrlGetNumChapters, nil); err == nil {
		c.NumChapters, _ = v.(int)
	}
	if v, err := s.Control(CtrlGetMetadata, nil); err == nil {
		if m, ok := v.([]Tag); ok {
			c.Metadata = m
		}
	}
	c.Size = s.EndPos()
}

// errNotCovered is returned by Get for commands the snapshot does not hold.
var errNotCovered = errors.New("stream: control not covered by snapshot")

// Get answers cmd from the snapshot. It returns ErrUnsupported where the
// stream did not support the command when the snapshot was taken. Commands
// the snapshot does not hold return an error for which Covered is false.
func (c *CacheCtrls) Get(cmd Command) (any, error) {
	switch cmd {
	case CtrlGetCacheSize:
		if c.CacheSize == 0 {
			return nil, ErrUnsupported
		}
		return c.CacheSize, nil
	case CtrlGetCacheFill:
		return c.CacheFill, nil
	case CtrlGetCacheIdle:
		return c.CacheIdle, nil
	case CtrlGetTimeLength:
		if c.TimeLength == 0 {
			return nil, ErrUnsupported
		}
		return c.TimeLength, nil
	case CtrlGetStartTime:
		if c.StartTime == NoTime {
			return nil, ErrUnsupported
		}
		return c.StartTime, nil
	case CtrlGetSize:
		return c.Size, nil
	case CtrlManagesTimeline:
		if !c.ManagesTimeline {
			return nil, ErrUnsupported
		}
		return nil, nil
	case CtrlGetNumChapters:
		return c.NumChapters, nil
	case CtrlGetMetadata:
		if len(c.Metadata) == 0 {
			return nil, ErrUnsupported
		}
		return slices.Clone(c.Metadata), nil
	}
	return nil, errNotCovered
}

// Covered reports whether err from Get is an answer rather than a miss.
func Covered(err error) bool {
	return !errors.Is(err, errNotCovered)
}
