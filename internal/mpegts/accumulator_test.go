package mpegts

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func pkt(pid uint16, cc uint8, pusi bool, payload ...byte) *Packet {
	return &Packet{
		Header: PacketHeader{
			PID:                       pid,
			ContinuityCounter:         cc,
			HasPayload:                true,
			PayloadUnitStartIndicator: pusi,
		},
		Payload: payload,
	}
}

func TestAccumulator(t *testing.T) {
	t.Parallel()

	discontinuity := pkt(0x100, 9, false, 3)
	discontinuity.Header.DiscontinuityIndicator = true
	tei := pkt(0x100, 1, false, 2)
	tei.Header.TransportErrorIndicator = true
	afOnly := &Packet{Header: PacketHeader{PID: 0x100, ContinuityCounter: 1, HasAdaptationField: true}}

	tests := []struct {
		name    string
		packets []*Packet
		want    []byte // payload bytes of the unit flushed by the last packet
	}{
		{
			name:    "start flushes previous unit",
			packets: []*Packet{pkt(0x100, 0, true, 1), pkt(0x100, 1, false, 2), pkt(0x100, 2, true, 3)},
			want:    []byte{1, 2},
		},
		{
			name:    "counter wraps",
			packets: []*Packet{pkt(0x100, 15, true, 1), pkt(0x100, 0, false, 2), pkt(0x100, 1, true, 3)},
			want:    []byte{1, 2},
		},
		{
			name:    "duplicate dropped",
			packets: []*Packet{pkt(0x100, 3, true, 1), pkt(0x100, 3, false, 1), pkt(0x100, 4, true, 2)},
			want:    []byte{1},
		},
		{
			name:    "unsignaled gap drops partial unit",
			packets: []*Packet{pkt(0x100, 0, true, 1), pkt(0x100, 1, false, 2), pkt(0x100, 5, false, 3), pkt(0x100, 6, true, 4)},
			want:    nil,
		},
		{
			name:    "signaled discontinuity keeps unit",
			packets: []*Packet{pkt(0x100, 0, true, 1), pkt(0x100, 1, false, 2), discontinuity, pkt(0x100, 10, true, 4)},
			want:    []byte{1, 2, 3},
		},
		{
			name:    "transport error drops unit",
			packets: []*Packet{pkt(0x100, 0, true, 1), tei, pkt(0x100, 2, true, 3)},
			want:    nil,
		},
		{
			name:    "adaptation only ignored",
			packets: []*Packet{pkt(0x100, 0, true, 1), afOnly, pkt(0x100, 1, true, 2)},
			want:    []byte{1},
		},
		{
			name:    "continuation without start dropped",
			packets: []*Packet{pkt(0x100, 0, false, 1), pkt(0x100, 1, false, 2), pkt(0x100, 2, true, 3)},
			want:    nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			acc := &packetAccumulator{pid: 0x100, psi: programMap{}}
			var flushed []*Packet
			for _, p := range tt.packets {
				flushed = acc.add(p)
			}
			if tt.want == nil {
				require.Nil(t, flushed)
				return
			}
			require.Equal(t, tt.want, concatPayloads(flushed))
		})
	}
}

func TestAccumulatorPSICompletesWithoutNextStart(t *testing.T) {
	t.Parallel()

	acc := &packetAccumulator{pid: pidPAT, psi: programMap{}}
	// pointer, table_id, section_length=5 split over two packets
	require.Nil(t, acc.add(pkt(pidPAT, 0, true, 0x00, 0x00, 0x80, 0x05, 1, 2)))
	flushed := acc.add(pkt(pidPAT, 1, false, 3, 4, 5, 0xFF, 0xFF))
	require.Len(t, flushed, 2)
}

func TestSections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		payload  []byte
		sections int
		complete bool
	}{
		{"empty", nil, 0, false},
		{"single", []byte{0x00, 0x00, 0x80, 0x02, 1, 2}, 1, true},
		{"stuffed", []byte{0x00, 0x00, 0x80, 0x02, 1, 2, 0xFF, 0xFF}, 1, true},
		{"two", []byte{0x00, 0x00, 0x80, 0x01, 1, 0x02, 0x80, 0x01, 2}, 2, true},
		{"pointer skips bytes", []byte{0x02, 0xAA, 0xBB, 0x00, 0x80, 0x01, 1}, 1, true},
		{"truncated", []byte{0x00, 0x00, 0x80, 0x0A, 1, 2, 3}, 0, false},
		{"truncated header", []byte{0x00, 0x00, 0x80}, 0, false},
		{"pointer past end", []byte{0x05, 0x00}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			secs, complete := sections(tt.payload)
			require.Len(t, secs, tt.sections)
			require.Equal(t, tt.complete, complete)
		})
	}
}

func TestPacketPoolDumpOrder(t *testing.T) {
	t.Parallel()

	pp := newPacketPool(programMap{})
	pp.add(pkt(0x200, 0, true, 2))
	pp.add(pkt(0x100, 0, true, 1))
	pp.add(pkt(pidPAT, 0, true, 0))

	all := pp.dump()
	require.Len(t, all, 3)
	require.Equal(t, uint16(pidPAT), all[0][0].Header.PID)
	require.Equal(t, uint16(0x100), all[1][0].Header.PID)
	require.Equal(t, uint16(0x200), all[2][0].Header.PID)
	require.Empty(t, pp.dump())

	pp.add(pkt(0x100, 1, true, 1))
	pp.reset()
	require.Empty(t, pp.dump())
}
