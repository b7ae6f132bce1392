package mpegts

import (
	"errors"
	"fmt"
)

const (
	pidPAT     = 0x0000
	tableIDPAT = 0x00
	tableIDPMT = 0x02

	descriptorRegistration = 0x05
	descriptorLanguage     = 0x0A
)

var errPSIShort = errors.New("mpegts: PSI section too short")

// sections splits a PSI payload (pointer field first) into complete
// sections. complete is false when the last section needs more data.
func sections(payload []byte) (out [][]byte, complete bool) {
	if len(payload) < 1 {
		return nil, false
	}
	off := 1 + int(payload[0])
	if off >= len(payload) {
		return nil, false
	}
	for off < len(payload) {
		// 0xFF stuffing, or zero padding without section_syntax_indicator
		if payload[off] == 0xFF {
			break
		}
		if off+3 > len(payload) {
			return out, false
		}
		if payload[off+1]&0x80 == 0 {
			break
		}
		end := off + 3 + (int(payload[off+1]&0x0F)<<8 | int(payload[off+2]))
		if end > len(payload) {
			return out, false
		}
		out = append(out, payload[off:end])
		off = end
	}
	return out, true
}

func parsePSI(payload []byte, first *Packet) ([]*DemuxerData, error) {
	secs, _ := sections(payload)
	if len(secs) == 0 {
		return nil, errPSIShort
	}
	var results []*DemuxerData
	for _, s := range secs {
		d := &DemuxerData{FirstPacket: first}
		var err error
		switch s[0] {
		case tableIDPAT:
			d.PAT, err = parsePATSection(s)
		case tableIDPMT:
			d.PMT, err = parsePMTSection(s)
		default:
			continue
		}
		if err != nil {
			return results, err
		}
		results = append(results, d)
	}
	return results, nil
}

// Section layout shared by PAT and PMT:
//
//	[0] table_id  [1-2] flags + section_length  [3-4] table_id_extension
//	[5] version + current_next  [6] section_number  [7] last_section_number
//	...  [N-4:N] CRC_32
func parsePATSection(data []byte) (*PATData, error) {
	if len(data) < 12 {
		return nil, fmt.Errorf("mpegts: PAT: %w", errPSIShort)
	}
	if err := VerifyCRC32(data); err != nil {
		return nil, fmt.Errorf("mpegts: PAT: %w", err)
	}

	pat := &PATData{TransportStreamID: be16(data[3:])}
	for i := 8; i+4 <= len(data)-4; i += 4 {
		num := be16(data[i:])
		if num == 0 {
			continue // network PID
		}
		pat.Programs = append(pat.Programs, &PATProgram{
			ProgramNumber: num,
			ProgramMapID:  be16(data[i+2:]) & 0x1FFF,
		})
	}
	return pat, nil
}

func parsePMTSection(data []byte) (*PMTData, error) {
	if len(data) < 16 {
		return nil, fmt.Errorf("mpegts: PMT: %w", errPSIShort)
	}
	if err := VerifyCRC32(data); err != nil {
		return nil, fmt.Errorf("mpegts: PMT: %w", err)
	}

	pmt := &PMTData{
		ProgramNumber: be16(data[3:]),
		Version:       data[5] >> 1 & 0x1F,
		PCRPID:        be16(data[8:]) & 0x1FFF,
	}
	end := len(data) - 4
	off := 12 + int(be16(data[10:])&0x0FFF)
	for off+5 <= end {
		es := &PMTElementaryStream{
			StreamType:    data[off],
			ElementaryPID: be16(data[off+1:]) & 0x1FFF,
		}
		infoEnd := min(off+5+int(be16(data[off+3:])&0x0FFF), end)
		parseDescriptors(data[off+5:infoEnd], es)
		pmt.ElementaryStreams = append(pmt.ElementaryStreams, es)
		off = infoEnd
	}
	return pmt, nil
}

func parseDescriptors(data []byte, es *PMTElementaryStream) {
	for len(data) >= 2 {
		tag, n := data[0], int(data[1])
		if 2+n > len(data) {
			return
		}
		body := data[2 : 2+n]
		switch {
		case tag == descriptorLanguage && n >= 3:
			es.Language = string(body[:3])
		case tag == descriptorRegistration && n >= 4:
			es.Registration = string(body[:4])
		}
		data = data[2+n:]
	}
}

func be16(b []byte) uint16 {
	return uint16(b[0])<<8 | uint16(b[1])
}
