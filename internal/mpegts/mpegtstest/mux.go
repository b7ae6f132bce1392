// Package mpegtstest builds transport streams for tests.
package mpegtstest

import (
	"bytes"
	"encoding/binary"

	"github.com/zsiec/vdemux/internal/mpegts"
)

// Program is one PAT entry.
type Program struct {
	Number uint16
	PMTPID uint16
}

// Stream is one PMT elementary stream entry.
type Stream struct {
	Type         uint8
	PID          uint16
	Language     string
	Registration string
}

// Muxer appends transport packets to an in-memory buffer. Continuity
// counters are tracked per PID.
type Muxer struct {
	buf bytes.Buffer
	cc  map[uint16]uint8
}

func NewMuxer() *Muxer {
	return &Muxer{cc: make(map[uint16]uint8)}
}

// Bytes returns everything written so far.
func (m *Muxer) Bytes() []byte { return m.buf.Bytes() }

// Len returns the number of bytes written so far.
func (m *Muxer) Len() int { return m.buf.Len() }

// Write splits payload into packets of pid. The first packet carries the
// payload unit start indicator.
func (m *Muxer) Write(pid uint16, payload []byte) {
	first := true
	for first || len(payload) > 0 {
		n := min(len(payload), mpegts.PacketSize-4)
		m.buf.Write(Packet(pid, m.cc[pid], first, payload[:n]))
		m.cc[pid] = (m.cc[pid] + 1) & 0x0F
		payload = payload[n:]
		first = false
	}
}

// WriteSection writes a PSI section preceded by a zero pointer field.
func (m *Muxer) WriteSection(pid uint16, section []byte) {
	m.Write(pid, append([]byte{0}, section...))
}

func (m *Muxer) WritePAT(programs ...Program) {
	m.WriteSection(0, PAT(1, programs...))
}

func (m *Muxer) WritePMT(pid, program, pcrPID uint16, streams ...Stream) {
	m.WriteSection(pid, PMT(program, pcrPID, streams...))
}

// WritePES writes a PES packet. A negative pts omits the timestamp.
func (m *Muxer) WritePES(pid uint16, streamID byte, pts int64, data []byte) {
	m.Write(pid, PES(streamID, pts, -1, data))
}

// Packet builds a single 188-byte packet, stuffing the adaptation field
// when payload is shorter than 184 bytes.
func Packet(pid uint16, cc uint8, pusi bool, payload []byte) []byte {
	pkt := make([]byte, mpegts.PacketSize)
	pkt[0] = 0x47
	pkt[1] = byte(pid>>8) & 0x1F
	if pusi {
		pkt[1] |= 0x40
	}
	pkt[2] = byte(pid)
	pkt[3] = 0x10 | cc&0x0F

	off := 4
	if stuff := mpegts.PacketSize - 4 - len(payload); stuff > 0 {
		pkt[3] |= 0x20
		pkt[4] = byte(stuff - 1)
		if stuff > 1 {
			pkt[5] = 0x00
			for i := 6; i < 4+stuff; i++ {
				pkt[i] = 0xFF
			}
		}
		off += stuff
	}
	copy(pkt[off:], payload)
	return pkt
}

// Section wraps body in a long-form PSI section header and appends the
// CRC_32.
func Section(tableID byte, ext uint16, body []byte) []byte {
	n := 5 + len(body) + 4
	s := make([]byte, 0, 3+n)
	s = append(s, tableID, 0xB0|byte(n>>8)&0x0F, byte(n))
	s = binary.BigEndian.AppendUint16(s, ext)
	s = append(s, 0xC1, 0x00, 0x00)
	s = append(s, body...)
	return binary.BigEndian.AppendUint32(s, mpegts.CRC32(s))
}

func PAT(tsID uint16, programs ...Program) []byte {
	var body []byte
	for _, p := range programs {
		body = binary.BigEndian.AppendUint16(body, p.Number)
		body = binary.BigEndian.AppendUint16(body, 0xE000|p.PMTPID)
	}
	return Section(0x00, tsID, body)
}

func PMT(program, pcrPID uint16, streams ...Stream) []byte {
	body := binary.BigEndian.AppendUint16(nil, 0xE000|pcrPID)
	body = append(body, 0xF0, 0x00)
	for _, s := range streams {
		var desc []byte
		if s.Registration != "" {
			desc = append(desc, 0x05, 4)
			desc = append(desc, s.Registration[:4]...)
		}
		if s.Language != "" {
			desc = append(desc, 0x0A, 4)
			desc = append(desc, s.Language[:3]...)
			desc = append(desc, 0x00)
		}
		body = append(body, s.Type)
		body = binary.BigEndian.AppendUint16(body, 0xE000|s.PID)
		body = binary.BigEndian.AppendUint16(body, 0xF000|uint16(len(desc)))
		body = append(body, desc...)
	}
	return Section(0x02, program, body)
}

// PES builds a PES packet. Negative pts or dts are omitted; dts is only
// written alongside pts.
func PES(streamID byte, pts, dts int64, data []byte) []byte {
	var hdr []byte
	flags := byte(0)
	switch {
	case pts >= 0 && dts >= 0:
		flags = 0xC0
		hdr = append(Timestamp(0x3, pts), Timestamp(0x1, dts)...)
	case pts >= 0:
		flags = 0x80
		hdr = Timestamp(0x2, pts)
	}
	pes := []byte{0x00, 0x00, 0x01, streamID, 0, 0, 0x84, flags, byte(len(hdr))}
	pes = append(pes, hdr...)
	pes = append(pes, data...)
	if n := len(pes) - 6; n <= 0xFFFF && streamID&0xF0 != 0xE0 {
		binary.BigEndian.PutUint16(pes[4:], uint16(n))
	}
	return pes
}

// Timestamp encodes a 33-bit PTS/DTS with its 4-bit prefix and marker bits.
func Timestamp(prefix byte, ts int64) []byte {
	return []byte{
		prefix<<4 | byte(ts>>29)&0x0E | 0x01,
		byte(ts >> 22),
		byte(ts>>14)&0xFE | 0x01,
		byte(ts >> 7),
		byte(ts<<1) | 0x01,
	}
}

// M2TS converts 188-byte packets into 192-byte units with a zero timecode
// prefix.
func M2TS(ts []byte) []byte {
	out := make([]byte, 0, len(ts)/mpegts.PacketSize*192)
	for off := 0; off+mpegts.PacketSize <= len(ts); off += mpegts.PacketSize {
		out = append(out, 0, 0, 0, 0)
		out = append(out, ts[off:off+mpegts.PacketSize]...)
	}
	return out
}
