package packet

import "sync/atomic"

// Shared is a reference-counted handle for side data that several packets
// may point at (e.g. a hardware decoder surface). Every holder calls Release
// once; the last one runs the free function.
type Shared struct {
	refs     *atomic.Int32
	value    any
	free     func(any)
	released bool
}

// NewShared returns a handle holding one reference to value.
func NewShared(value any, free func(any)) *Shared {
	refs := new(atomic.Int32)
	refs.Store(1)
	return &Shared{refs: refs, value: value, free: free}
}

// Value returns the shared object.
func (s *Shared) Value() any {
	return s.value
}

// Refs reports the number of live references.
func (s *Shared) Refs() int {
	return int(s.refs.Load())
}

// CopySide takes another reference. It makes Shared a SideCopier, so a
// cloned packet shares the object instead of losing it.
func (s *Shared) CopySide() SideData {
	s.refs.Add(1)
	return &Shared{refs: s.refs, value: s.value, free: s.free}
}

// Release drops this holder's reference.
func (s *Shared) Release() {
	if s.released {
		return
	}
	s.released = true
	if s.refs.Add(-1) == 0 && s.free != nil {
		s.free(s.value)
	}
}
