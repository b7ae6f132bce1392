package packet

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newList(pts ...float64) *List {
	l := &List{}
	for _, v := range pts {
		p := pktWithPTS(v, 1)
		p.Duration = 1
		l.Packets = append(l.Packets, p)
	}
	return l
}

func TestListSortStable(t *testing.T) {
	t.Parallel()

	l := newList(5, 3, 5, 1)
	l.Packets[0].Pos = 0
	l.Packets[2].Pos = 2
	l.Sort()

	var pts []float64
	for _, p := range l.Packets {
		pts = append(pts, p.PTS)
	}
	require.Equal(t, []float64{1, 3, 5, 5}, pts)
	require.Equal(t, int64(0), l.Packets[2].Pos)
	require.Equal(t, int64(2), l.Packets[3].Pos)
}

func TestListSeek(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		cur      int
		rel      float64
		absolute bool
		factor   bool
		want     int
	}{
		{"absolute", 3, 2, true, false, 2},
		{"relative forward", 1, 2, false, false, 3},
		{"relative backward", 4, -3, false, false, 1},
		{"factor", 0, 0.5, true, true, 2},
		{"past end from end", 5, 0, false, false, 4},
		{"before start", 0, -10, false, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newList(0, 1, 2, 3, 4)
			l.Cur = tt.cur
			l.Seek(tt.rel, tt.absolute, tt.factor)
			require.Equal(t, tt.want, l.Cur)
		})
	}
}

func TestListNext(t *testing.T) {
	t.Parallel()

	l := newList(0, 1)
	require.Equal(t, 2.0, l.Duration())

	p := l.Next()
	require.Equal(t, 0.0, p.PTS)
	p.Data()[0] = 9
	require.Equal(t, byte(0), l.Packets[0].Data()[0], "next returns a copy")

	require.NotNil(t, l.Next())
	require.Nil(t, l.Next())
}
