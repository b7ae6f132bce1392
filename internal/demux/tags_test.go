package demux

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zsiec/vdemux/internal/stream"
)

func TestTagsCaseInsensitive(t *testing.T) {
	t.Parallel()

	var tags Tags
	tags.Set("Title", "one")
	tags.Set("ARTIST", "x")
	tags.Set("title", "two")

	require.Equal(t, 2, tags.Len())
	v, ok := tags.Get("TITLE")
	require.True(t, ok)
	require.Equal(t, "two", v)
	k, v := tags.At(0)
	require.Equal(t, "Title", k, "updates keep the original key")
	require.Equal(t, "two", v)

	_, ok = tags.Get("album")
	require.False(t, ok)

	c := tags.Clone()
	c.Set("title", "three")
	v, _ = tags.Get("title")
	require.Equal(t, "two", v)
}

func TestInfoAdd(t *testing.T) {
	t.Parallel()

	d, _ := openSynth(t, 0)
	defer d.Close()

	require.True(t, d.InfoAdd("Encoder", "a"))
	require.False(t, d.InfoAdd("encoder", "a"), "same value is not a change")
	require.True(t, d.InfoAdd("ENCODER", "b"))
	v, ok := d.InfoGet("encoder")
	require.True(t, ok)
	require.Equal(t, "b", v)
	require.Equal(t, 1, d.Metadata().Len())
	d.InfoPrint()
}

func TestInfoUpdateMergesStreamMetadata(t *testing.T) {
	t.Parallel()

	src := newCtrlSource(synthData(synthMagic, 1), map[stream.Command]any{
		stream.CtrlGetMetadata: []stream.Tag{{Key: "icy-title", Value: "song"}},
	})
	f := &synthFormat{name: "synth", magic: synthMagic}
	d, err := Open(stream.New(src), []Format{f})
	require.NoError(t, err)
	defer d.Close()

	v, ok := d.InfoGet("ICY-TITLE")
	require.True(t, ok)
	require.Equal(t, "song", v)
	require.Equal(t, 1, f.plugin.count(CtrlUpdateInfo))
}
