package mpegts_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zsiec/vdemux/internal/mpegts"
	"github.com/zsiec/vdemux/internal/mpegts/mpegtstest"
)

const (
	pmtPID   = 0x1000
	videoPID = 0x100
	audioPID = 0x101
	cuePID   = 0x1F4
)

func collect(t *testing.T, d *mpegts.Demuxer) []*mpegts.DemuxerData {
	t.Helper()
	var out []*mpegts.DemuxerData
	for {
		data, err := d.NextData()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, data)
	}
}

func writeHeader(m *mpegtstest.Muxer) {
	m.WritePAT(mpegtstest.Program{Number: 1, PMTPID: pmtPID})
	m.WritePMT(pmtPID, 1, videoPID,
		mpegtstest.Stream{Type: mpegts.StreamTypeH264, PID: videoPID},
		mpegtstest.Stream{Type: mpegts.StreamTypeAAC, PID: audioPID, Language: "eng"},
	)
}

// kind summarizes a unit as "pat", "pmt" or the PES PID.
func kind(d *mpegts.DemuxerData) any {
	switch {
	case d.PAT != nil:
		return "pat"
	case d.PMT != nil:
		return "pmt"
	default:
		return d.FirstPacket.Header.PID
	}
}

func kinds(units []*mpegts.DemuxerData) []any {
	out := make([]any, len(units))
	for i, u := range units {
		out[i] = kind(u)
	}
	return out
}

func TestDemuxerSynthetic(t *testing.T) {
	t.Parallel()

	m := mpegtstest.NewMuxer()
	writeHeader(m)
	idr := []byte{0, 0, 0, 1, 0x65, 0x88}
	m.WritePES(videoPID, 0xE0, 90000, idr)
	m.WritePES(audioPID, 0xC0, 90000, []byte{0xFF, 0xF1, 0x50, 0x80})
	m.WritePES(videoPID, 0xE0, 93754, idr)

	units := collect(t, mpegts.NewDemuxer(bytes.NewReader(m.Bytes())))
	require.Equal(t, []any{"pat", "pmt", uint16(videoPID), uint16(videoPID), uint16(audioPID)}, kinds(units))

	require.Equal(t, uint16(pmtPID), units[0].PAT.Programs[0].ProgramMapID)
	pmt := units[1].PMT
	require.Len(t, pmt.ElementaryStreams, 2)
	require.Equal(t, "eng", pmt.ElementaryStreams[1].Language)

	require.Equal(t, int64(90000), units[2].PES.Header.OptionalHeader.PTS.Base)
	require.Equal(t, idr, units[2].PES.Data)
	require.Equal(t, int64(93754), units[3].PES.Header.OptionalHeader.PTS.Base)
	require.Equal(t, []byte{0xFF, 0xF1, 0x50, 0x80}, units[4].PES.Data)

	var pos []int64
	for _, u := range units {
		pos = append(pos, u.FirstPacket.Pos)
	}
	require.Equal(t, []int64{0, 188, 376, 752, 564}, pos)
}

func TestDemuxerMultiPacketPES(t *testing.T) {
	t.Parallel()

	payload := make([]byte, 1000)
	for i := range payload {
		payload[i] = byte(i)
	}
	m := mpegtstest.NewMuxer()
	writeHeader(m)
	m.WritePES(audioPID, 0xC0, 1234, payload)

	units := collect(t, mpegts.NewDemuxer(bytes.NewReader(m.Bytes())))
	require.Len(t, units, 3)
	require.Equal(t, payload, units[2].PES.Data)
	require.Equal(t, int64(1234), units[2].PES.Header.OptionalHeader.PTS.Base)
}

func TestDemuxerM2TS(t *testing.T) {
	t.Parallel()

	m := mpegtstest.NewMuxer()
	writeHeader(m)
	m.WritePES(videoPID, 0xE0, 0, []byte{0, 0, 1, 0x09})
	data := mpegtstest.M2TS(m.Bytes())
	require.Equal(t, 192, mpegts.ProbeSync(data, 0, 3))

	units := collect(t, mpegts.NewDemuxer(bytes.NewReader(data), mpegts.DemuxerOptPacketSize(192)))
	require.Equal(t, []any{"pat", "pmt", uint16(videoPID)}, kinds(units))
	require.Equal(t, int64(2*192), units[2].FirstPacket.Pos)
}

func TestDemuxerResync(t *testing.T) {
	t.Parallel()

	m := mpegtstest.NewMuxer()
	writeHeader(m)
	head := append([]byte(nil), m.Bytes()...)

	m2 := mpegtstest.NewMuxer()
	m2.WritePES(videoPID, 0xE0, 3000, []byte{0, 0, 1, 0x09})
	m2.WritePES(videoPID, 0xE0, 6000, []byte{0, 0, 1, 0x09})

	garbage := []byte{1, 2, 3, 4, 5, 6, 7}
	data := append(head, garbage...)
	data = append(data, m2.Bytes()...)

	d := mpegts.NewDemuxer(bytes.NewReader(data))
	units := collect(t, d)
	require.Equal(t, []any{"pat", "pmt", uint16(videoPID), uint16(videoPID)}, kinds(units))
	require.Equal(t, 1, d.Resyncs())
	require.Equal(t, int64(len(head)+len(garbage)), units[2].FirstPacket.Pos)
	require.Equal(t, int64(len(data)), d.Pos())
}

func TestDemuxerSkipPID(t *testing.T) {
	t.Parallel()

	m := mpegtstest.NewMuxer()
	writeHeader(m)
	m.WritePES(videoPID, 0xE0, 0, []byte{0, 0, 1, 0x09})
	m.WritePES(audioPID, 0xC0, 0, []byte{0xFF, 0xF1})

	d := mpegts.NewDemuxer(bytes.NewReader(m.Bytes()),
		mpegts.DemuxerOptSkipPID(func(pid uint16) bool { return pid != videoPID }))
	require.Equal(t, []any{"pat", "pmt", uint16(videoPID)}, kinds(collect(t, d)))
}

func TestDemuxerReset(t *testing.T) {
	t.Parallel()

	m := mpegtstest.NewMuxer()
	m.WritePAT(mpegtstest.Program{Number: 1, PMTPID: pmtPID})
	m.WritePES(videoPID, 0xE0, 1, []byte{0, 0, 1, 0x09})
	m.WritePMT(pmtPID, 1, videoPID, mpegtstest.Stream{Type: mpegts.StreamTypeH264, PID: videoPID})

	d := mpegts.NewDemuxer(bytes.NewReader(m.Bytes()))
	data, err := d.NextData()
	require.NoError(t, err)
	require.NotNil(t, data.PAT)
	data, err = d.NextData()
	require.NoError(t, err)
	require.NotNil(t, data.PMT)

	// the buffered video unit is discarded and the PMT PID stays known
	m2 := mpegtstest.NewMuxer()
	m2.WritePMT(pmtPID, 1, videoPID, mpegtstest.Stream{Type: mpegts.StreamTypeH264, PID: videoPID})
	m2.WritePES(videoPID, 0xE0, 2, []byte{0, 0, 1, 0x09})
	d.Reset(bytes.NewReader(m2.Bytes()), 10000)
	require.Equal(t, int64(10000), d.Pos())

	units := collect(t, d)
	require.Equal(t, []any{"pmt", uint16(videoPID)}, kinds(units))
	require.Equal(t, int64(10000), units[0].FirstPacket.Pos)
	require.Equal(t, int64(2), units[1].PES.Header.OptionalHeader.PTS.Base)
}

func TestDemuxerPacketsParser(t *testing.T) {
	t.Parallel()

	m := mpegtstest.NewMuxer()
	writeHeader(m)
	m.WriteSection(cuePID, mpegtstest.Section(0xFC, 0, []byte{1, 2, 3}))
	m.WritePES(videoPID, 0xE0, 0, []byte{0, 0, 1, 0x09})

	var cues [][]byte
	parser := func(ps []*mpegts.Packet) ([]*mpegts.DemuxerData, bool, error) {
		if ps[0].Header.PID != cuePID {
			return nil, false, nil
		}
		cues = append(cues, ps[0].Payload)
		return nil, true, nil
	}
	d := mpegts.NewDemuxer(bytes.NewReader(m.Bytes()), mpegts.DemuxerOptPacketsParser(parser))
	require.Equal(t, []any{"pat", "pmt", uint16(videoPID)}, kinds(collect(t, d)))
	require.Len(t, cues, 1)
	require.Equal(t, byte(0xFC), cues[0][1])
}

func TestDemuxerEmpty(t *testing.T) {
	t.Parallel()

	d := mpegts.NewDemuxer(bytes.NewReader(nil))
	_, err := d.NextData()
	require.ErrorIs(t, err, io.EOF)
	_, err = d.NextData()
	require.ErrorIs(t, err, io.EOF)
}

func TestDemuxerCorruptPAT(t *testing.T) {
	t.Parallel()

	m := mpegtstest.NewMuxer()
	writeHeader(m)
	data := append([]byte(nil), m.Bytes()...)
	data[mpegts.PacketSize-6] ^= 0xFF // program entry of the PAT section

	units := collect(t, mpegts.NewDemuxer(bytes.NewReader(data)))
	require.Empty(t, units)
}
