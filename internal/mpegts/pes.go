package mpegts

import "errors"

var (
	errPESShort     = errors.New("mpegts: PES packet too short")
	errPESStartCode = errors.New("mpegts: invalid PES start code")
)

func isPESPayload(data []byte) bool {
	return len(data) >= 3 && data[0] == 0x00 && data[1] == 0x00 && data[2] == 0x01
}

// Stream IDs without the optional PES header: program_stream_map, padding,
// private_stream_2, ECM, EMM, program_stream_directory, DSMCC, H.222.1 type E.
func hasOptionalHeader(streamID byte) bool {
	switch streamID {
	case 0xBC, 0xBE, 0xBF, 0xF0, 0xF1, 0xF2, 0xF8, 0xFF:
		return false
	}
	return true
}

func parsePES(payload []byte) (*PESData, error) {
	if len(payload) < 6 {
		return nil, errPESShort
	}
	if !isPESPayload(payload) {
		return nil, errPESStartCode
	}

	pes := &PESData{Header: &PESHeader{StreamID: payload[3]}}
	end := len(payload)
	if n := int(payload[4])<<8 | int(payload[5]); n > 0 && 6+n < end {
		end = 6 + n
	}

	if !hasOptionalHeader(pes.Header.StreamID) {
		pes.Data = payload[6:end]
		return pes, nil
	}
	if end < 9 {
		return nil, errPESShort
	}

	opt := &PESOptionalHeader{DataAlignment: payload[6]&0x04 != 0}
	pes.Header.OptionalHeader = opt
	switch payload[7] >> 6 {
	case 2:
		opt.PTS = parseTimestamp(payload[9:min(14, end)])
	case 3:
		opt.PTS = parseTimestamp(payload[9:min(14, end)])
		if end >= 19 {
			opt.DTS = parseTimestamp(payload[14:19])
		}
	}
	pes.Data = payload[min(9+int(payload[8]), end):end]
	return pes, nil
}

// parseTimestamp decodes a 5-byte PTS/DTS field with its marker bits.
func parseTimestamp(bs []byte) *ClockReference {
	if len(bs) < 5 {
		return nil
	}
	base := int64(bs[0]>>1&0x07)<<30 |
		int64(bs[1])<<22 |
		int64(bs[2]>>1)<<15 |
		int64(bs[3])<<7 |
		int64(bs[4]>>1)
	return &ClockReference{Base: base}
}
