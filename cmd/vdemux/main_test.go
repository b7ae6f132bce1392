package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/vdemux/internal/config"
)

const srt = "1\n00:00:01,000 --> 00:00:02,500\nFirst\n\n2\n00:00:04,000 --> 00:00:05,000\nSecond\n"

func writeSRT(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.srt")
	require.NoError(t, os.WriteFile(path, []byte(srt), 0o644))
	return path
}

// writeRTPDump writes a capture of ten 20 ms PCMU packets on one SSRC and
// two video packets on another, 40 ms apart.
func writeRTPDump(t *testing.T) string {
	t.Helper()
	var b bytes.Buffer
	b.WriteString("#!rtpplay1.0 127.0.0.1/5004\n")
	b.Write(make([]byte, 16))

	add := func(offset uint32, pkt *rtp.Packet) {
		body, err := pkt.Marshal()
		require.NoError(t, err)
		h := make([]byte, 8)
		binary.BigEndian.PutUint16(h[0:], uint16(8+len(body)))
		binary.BigEndian.PutUint16(h[2:], uint16(len(body)))
		binary.BigEndian.PutUint32(h[4:], offset)
		b.Write(h)
		b.Write(body)
	}
	for i := range 10 {
		add(uint32(20*i), &rtp.Packet{
			Header:  rtp.Header{Version: 2, PayloadType: 0, SequenceNumber: uint16(1 + i), Timestamp: uint32(160 * i), SSRC: 0xA},
			Payload: bytes.Repeat([]byte{byte(i)}, 160),
		})
		if i%2 == 0 && i < 4 {
			add(uint32(20*i), &rtp.Packet{
				Header:  rtp.Header{Version: 2, PayloadType: 96, SequenceNumber: uint16(100 + i), Timestamp: uint32(1000 + 1800*i), SSRC: 0xB, Marker: i == 0},
				Payload: []byte{0x65, 1, 2, 3},
			})
		}
	}

	path := filepath.Join(t.TempDir(), "capture.rtp")
	require.NoError(t, os.WriteFile(path, b.Bytes(), 0o644))
	return path
}

func TestRunRTPDump(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		threaded bool
	}{
		{name: "direct"},
		{name: "threaded", threaded: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := config.Default()
			cfg.Demux.Threaded = tt.threaded
			var out bytes.Buffer
			require.NoError(t, run(context.Background(), cfg, options{url: writeRTPDump(t)}, &out))

			s := out.String()
			require.Contains(t, s, "format: rtpdump")
			require.Contains(t, s, "audio: 10 packets, 1600 bytes, 10 keyframes, last pts 0.180\n")
			require.Contains(t, s, "video: 2 packets, 8 bytes, 1 keyframes, last pts 0.040\n")
		})
	}
}

func TestRunDumpsPackets(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Demux.Threaded = false
	var out bytes.Buffer
	err := run(context.Background(), cfg, options{url: writeSRT(t), dump: true}, &out)
	require.NoError(t, err)

	s := out.String()
	require.Contains(t, s, "format: subrip (SubRip subtitles)\n")
	require.Contains(t, s, "duration: 5s\n")
	require.Contains(t, s, "track 0: sub subrip id=0\n")
	require.Contains(t, s, "packet track=0 sub pts=1.000 dur=1.500 pos=2 size=5 key=true\n")
	require.Contains(t, s, "packet track=0 sub pts=4.000 dur=1.000")
	require.Contains(t, s, "sub: 2 packets, 11 bytes, 2 keyframes, last pts 4.000\n")
}

func TestRunSeekAndLimit(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Demux.Threaded = false
	var out bytes.Buffer
	err := run(context.Background(), cfg, options{url: writeSRT(t), dump: true, seek: 4.5, max: 1}, &out)
	require.NoError(t, err)
	require.Contains(t, out.String(), "sub: 1 packets, 6 bytes, 1 keyframes, last pts 4.000\n")
}

func TestRunThreaded(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), cfg, options{url: writeSRT(t)}, &out))
	require.Contains(t, out.String(), "sub: 2 packets, 11 bytes")
}

func TestRunErrors(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Demux.Threaded = false
	var out bytes.Buffer
	require.Error(t, run(context.Background(), cfg, options{url: filepath.Join(t.TempDir(), "missing.ts")}, &out))

	cfg.Demux.Format = "nosuchformat"
	require.Error(t, run(context.Background(), cfg, options{url: writeSRT(t)}, &out))
}
