package mpegts

import "fmt"

const (
	// PacketSize is the size of a plain transport packet.
	PacketSize = 188
	syncByte   = 0x47
)

// Packet sizes seen in the wild: plain, M2TS (4-byte timecode prefix) and
// DVB with 16 trailing Reed-Solomon bytes.
var packetSizes = [...]int{188, 192, 204}

// syncOffset is where the 188-byte packet starts inside a unit of size n.
func syncOffset(n int) int {
	if n == 192 {
		return 4
	}
	return 0
}

// ProbeSync reports the packet size (188, 192 or 204) for which data holds
// at least n consecutive sync bytes starting at off, or 0.
func ProbeSync(data []byte, off, n int) int {
	for _, size := range packetSizes {
		ok := true
		for i := range n {
			p := off + syncOffset(size) + i*size
			if p >= len(data) || data[p] != syncByte {
				ok = false
				break
			}
		}
		if ok {
			return size
		}
	}
	return 0
}

func parsePacket(buf []byte) (*Packet, error) {
	if len(buf) != PacketSize {
		return nil, fmt.Errorf("mpegts: packet size %d, expected %d", len(buf), PacketSize)
	}
	if buf[0] != syncByte {
		return nil, fmt.Errorf("mpegts: invalid sync byte 0x%02X", buf[0])
	}

	p := &Packet{Header: PacketHeader{
		TransportErrorIndicator:   buf[1]&0x80 != 0,
		PayloadUnitStartIndicator: buf[1]&0x40 != 0,
		PID:                       uint16(buf[1]&0x1F)<<8 | uint16(buf[2]),
		HasAdaptationField:        buf[3]&0x20 != 0,
		HasPayload:                buf[3]&0x10 != 0,
		ContinuityCounter:         buf[3] & 0x0F,
	}}

	off := 4
	if p.Header.HasAdaptationField {
		afLen := int(buf[4])
		if afLen > 0 {
			p.Header.DiscontinuityIndicator = buf[5]&0x80 != 0
			p.Header.RandomAccessIndicator = buf[5]&0x40 != 0
		}
		off = min(off+1+afLen, PacketSize)
	}
	if p.Header.HasPayload && off < PacketSize {
		p.Payload = append([]byte(nil), buf[off:]...)
	}
	return p, nil
}
