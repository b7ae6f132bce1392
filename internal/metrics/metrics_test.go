package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/vdemux/internal/demux"
	"github.com/zsiec/vdemux/internal/packet"
	"github.com/zsiec/vdemux/internal/stream"
)

func TestRecorder(t *testing.T) {
	t.Parallel()

	r := New(prometheus.NewRegistry())
	r.RecordPacket("mpegts", demux.Video, 1000)
	r.RecordPacket("mpegts", demux.Video, 500)
	r.RecordPacket("mpegts", demux.Audio, 200)
	r.RecordQueueDepth("mpegts", demux.Audio, 1, 12, 2400)
	r.RecordOverflow("mpegts")
	r.RecordSeek("mpegts", true)
	r.RecordSeek("mpegts", false)
	r.RecordSeek("mpegts", false)

	require.InDelta(t, 2, testutil.ToFloat64(r.Packets.WithLabelValues("mpegts", "video")), 0)
	require.InDelta(t, 1500, testutil.ToFloat64(r.Bytes.WithLabelValues("mpegts", "video")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(r.Packets.WithLabelValues("mpegts", "audio")), 0)
	require.InDelta(t, 12, testutil.ToFloat64(r.QueuePkts.WithLabelValues("mpegts", "audio", "1")), 0)
	require.InDelta(t, 2400, testutil.ToFloat64(r.QueueBytes.WithLabelValues("mpegts", "audio", "1")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(r.Overflows.WithLabelValues("mpegts")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(r.Seeks.WithLabelValues("mpegts", "ok")), 0)
	require.InDelta(t, 2, testutil.ToFloat64(r.Seeks.WithLabelValues("mpegts", "failed")), 0)
}

type onePacket struct{}

func (onePacket) Name() string { return "one" }
func (onePacket) Desc() string { return "one packet" }
func (onePacket) Probe(*demux.Demuxer, demux.Check) error { return nil }

func (onePacket) Open(d *demux.Demuxer, _ demux.Check) (any, error) {
	t, err := d.NewTrack(demux.Audio)
	if err != nil {
		return nil, err
	}
	return &onePacketPlugin{track: t}, nil
}

type onePacketPlugin struct {
	track *demux.Track
	done  bool
}

func (p *onePacketPlugin) FillBuffer(d *demux.Demuxer) bool {
	if p.done {
		return false
	}
	p.done = true
	d.AddPacket(p.track, packet.New(300))
	return true
}

func TestRecorderWiredIntoDemuxer(t *testing.T) {
	t.Parallel()

	r := New(prometheus.NewRegistry())
	d, err := demux.Open(stream.NewMemory(make([]byte, 64)), []demux.Format{onePacket{}},
		demux.WithAutoselect(), demux.WithStats(r))
	require.NoError(t, err)
	defer d.Close()

	p := d.ReadPacket(d.Tracks()[0])
	require.NotNil(t, p)
	p.Release()
	require.InDelta(t, 1, testutil.ToFloat64(r.Packets.WithLabelValues("one", "audio")), 0)
	require.InDelta(t, 300, testutil.ToFloat64(r.Bytes.WithLabelValues("one", "audio")), 0)

	require.NoError(t, d.Seek(0, demux.SeekAbsolute))
	require.InDelta(t, 1, testutil.ToFloat64(r.Seeks.WithLabelValues("one", "ok")), 0)
}

func TestServerHandler(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	r := New(reg)
	r.RecordOverflow("subrip")

	srv := httptest.NewServer(NewServer(":0", reg, nil).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), `vdemux_demux_queue_overflows_total{format="subrip"} 1`)
}
