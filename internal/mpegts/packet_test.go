package mpegts

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func rawPacket(b1, b2, b3 byte, rest ...byte) []byte {
	buf := make([]byte, PacketSize)
	buf[0], buf[1], buf[2], buf[3] = syncByte, b1, b2, b3
	copy(buf[4:], rest)
	return buf
}

func TestParsePacket(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		buf        []byte
		want       PacketHeader
		payloadLen int
		payload0   byte
	}{
		{
			name:       "payload only",
			buf:        rawPacket(0x41, 0x00, 0x15, 0xAB),
			want:       PacketHeader{PID: 0x100, ContinuityCounter: 5, HasPayload: true, PayloadUnitStartIndicator: true},
			payloadLen: 184,
			payload0:   0xAB,
		},
		{
			name:       "adaptation field with flags",
			buf:        rawPacket(0x01, 0x01, 0x37, 0x07, 0xC0, 0, 0, 0, 0, 0, 0, 0xCD),
			want:       PacketHeader{PID: 0x101, ContinuityCounter: 7, HasPayload: true, HasAdaptationField: true, DiscontinuityIndicator: true, RandomAccessIndicator: true},
			payloadLen: 176,
			payload0:   0xCD,
		},
		{
			name: "adaptation only",
			buf:  rawPacket(0x00, 0x20, 0x20, 183),
			want: PacketHeader{PID: 0x20, HasAdaptationField: true},
		},
		{
			name: "transport error",
			buf:  rawPacket(0x9F, 0xFF, 0x10),
			want: PacketHeader{PID: 0x1FFF, HasPayload: true, TransportErrorIndicator: true},
			// null packet payload is still copied
			payloadLen: 184,
		},
		{
			name: "oversized adaptation length",
			buf:  rawPacket(0x00, 0x30, 0x30, 0xFF),
			want: PacketHeader{PID: 0x30, HasPayload: true, HasAdaptationField: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, err := parsePacket(tt.buf)
			require.NoError(t, err)
			require.Equal(t, tt.want, p.Header)
			require.Len(t, p.Payload, tt.payloadLen)
			if tt.payloadLen > 0 {
				require.Equal(t, tt.payload0, p.Payload[0])
			}
		})
	}
}

func TestParsePacketCopiesPayload(t *testing.T) {
	t.Parallel()

	buf := rawPacket(0x40, 0x00, 0x10, 1, 2, 3)
	p, err := parsePacket(buf)
	require.NoError(t, err)
	buf[4] = 9
	require.Equal(t, byte(1), p.Payload[0])
}

func TestParsePacketInvalid(t *testing.T) {
	t.Parallel()

	_, err := parsePacket(make([]byte, 100))
	require.Error(t, err)

	bad := rawPacket(0, 0, 0x10)
	bad[0] = 0x48
	_, err = parsePacket(bad)
	require.ErrorContains(t, err, "sync")
}

func TestProbeSync(t *testing.T) {
	t.Parallel()

	units := func(size, n, off int) []byte {
		buf := make([]byte, size*n)
		for i := range n {
			buf[i*size+off] = syncByte
		}
		return buf
	}

	tests := []struct {
		name string
		data []byte
		off  int
		want int
	}{
		{"ts", units(188, 4, 0), 0, 188},
		{"m2ts", units(192, 4, 4), 0, 192},
		{"dvb", units(204, 4, 0), 0, 204},
		{"offset", append(make([]byte, 10), units(188, 4, 0)...), 10, 188},
		{"garbage", make([]byte, 1000), 0, 0},
		{"too short", units(188, 2, 0), 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, ProbeSync(tt.data, tt.off, 3))
		})
	}
}

func FuzzParsePacket(f *testing.F) {
	f.Add(rawPacket(0x40, 0x00, 0x10))
	f.Add(rawPacket(0x01, 0x00, 0x30, 0x07))
	f.Add(rawPacket(0x01, 0x00, 0x30, 0xB7, 0xFF))

	f.Fuzz(func(t *testing.T, data []byte) {
		if len(data) != PacketSize {
			return
		}
		data[0] = syncByte
		p, err := parsePacket(data)
		if err != nil {
			t.Fatal(err)
		}
		if len(p.Payload) > PacketSize-4 {
			t.Fatalf("payload %d bytes", len(p.Payload))
		}
	})
}
