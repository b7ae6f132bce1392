package packet

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Parallel()

	p := New(10)
	require.Equal(t, 10, p.Len())
	require.GreaterOrEqual(t, cap(p.Data()), 10+Padding)
	require.Equal(t, NoPTS, p.PTS)
	require.Equal(t, -1.0, p.Duration)
	require.Equal(t, int64(-1), p.Pos)
	require.Equal(t, -1, p.Stream)

	padding := p.Data()[10 : 10+Padding]
	require.Equal(t, make([]byte, Padding), padding)
}

func TestNewOverLimitPanics(t *testing.T) {
	t.Parallel()

	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(*SizeError)
		require.True(t, ok, "panic value %T", r)
		require.Equal(t, "allocate", err.Op)
	}()
	New(MaxSize + 1)
}

func TestResizeOverLimitPanics(t *testing.T) {
	t.Parallel()

	p := New(4)
	require.Panics(t, func() { p.Resize(MaxSize + 1) })
}

func TestResize(t *testing.T) {
	t.Parallel()

	p := FromBytes([]byte{1, 2, 3, 4})
	p.Resize(2)
	require.Equal(t, []byte{1, 2}, p.Data())
	require.Equal(t, make([]byte, Padding), p.Data()[2:2+Padding])

	p.Resize(200)
	require.Equal(t, 200, p.Len())
	require.Equal(t, []byte{1, 2}, p.Data()[:2])
	require.GreaterOrEqual(t, cap(p.Data()), 200+Padding)
}

func TestWrap(t *testing.T) {
	t.Parallel()

	data := make([]byte, 3, 3+Padding)
	data[0] = 9
	p := Wrap(data)
	data[1] = 7
	require.Equal(t, []byte{9, 7, 0}, p.Data(), "wrap must not copy")
}

func TestCloneIsIndependent(t *testing.T) {
	t.Parallel()

	orig := FromBytes([]byte{1, 2, 3})
	orig.PTS = 1.5
	orig.Duration = 0.02
	orig.StreamPTS = 7

	dup := orig.Clone()
	require.Equal(t, orig.Data(), dup.Data())
	require.Equal(t, 1.5, dup.PTS)
	require.Equal(t, 0.02, dup.Duration)
	require.Equal(t, 7.0, dup.StreamPTS)

	orig.Data()[0] = 0xFF
	require.Equal(t, []byte{1, 2, 3}, dup.Data())
}

type plainSide struct{ released int }

func (s *plainSide) Release() { s.released++ }

func TestCloneSideData(t *testing.T) {
	t.Parallel()

	t.Run("copier shares the handle", func(t *testing.T) {
		freed := 0
		orig := FromBytes([]byte{1})
		orig.Side = NewShared("surface", func(any) { freed++ })

		dup := orig.Clone()
		require.NotNil(t, dup.Side)
		require.Equal(t, 2, dup.Side.(*Shared).Refs())

		orig.Release()
		require.Equal(t, 0, freed)
		dup.Release()
		require.Equal(t, 1, freed)
	})

	t.Run("plain side data is not carried", func(t *testing.T) {
		side := &plainSide{}
		orig := FromBytes([]byte{1})
		orig.Side = side

		dup := orig.Clone()
		require.Nil(t, dup.Side)
		orig.Release()
		require.Equal(t, 1, side.released)
	})
}

func TestSharedDoubleRelease(t *testing.T) {
	t.Parallel()

	freed := 0
	s := NewShared(1, func(any) { freed++ })
	s.Release()
	s.Release()
	require.Equal(t, 1, freed)
}
