// Package scte35 decodes and encodes SCTE-35 splice_info_sections. It
// understands splice_null, splice_insert and time_signal commands and the
// segmentation descriptor; other commands and descriptors are carried
// opaquely or skipped.
package scte35

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/zsiec/vdemux/internal/mpegts"
)

const (
	tableID = 0xFC

	// header bytes up to and including splice_command_type
	headerLen = 14
	minLen    = headerLen + 2 + 4

	ptsMask = 1<<33 - 1
)

var (
	ErrShort   = errors.New("scte35: section truncated")
	ErrTableID = errors.New("scte35: not a splice_info_section")
)

// SpliceInfoSection is one decoded splice_info_section.
type SpliceInfoSection struct {
	SAPType           uint32
	PTSAdjustment     uint64
	Tier              uint32
	SpliceCommand     SpliceCommand
	SpliceDescriptors SpliceDescriptors
}

// DecodeBytes decodes a section starting at its table_id. Bytes past
// section_length are ignored.
func DecodeBytes(data []byte) (*SpliceInfoSection, error) {
	if len(data) < 3 {
		return nil, ErrShort
	}
	if data[0] != tableID {
		return nil, fmt.Errorf("%w: table_id 0x%02X", ErrTableID, data[0])
	}
	n := 3 + int(binary.BigEndian.Uint16(data[1:])&0x0FFF)
	if n < minLen || n > len(data) {
		return nil, ErrShort
	}
	data = data[:n]
	if err := mpegts.VerifyCRC32(data); err != nil {
		return nil, fmt.Errorf("scte35: %w", err)
	}

	sis := &SpliceInfoSection{}
	r := newReader(data[:headerLen])
	r.skip(8 + 1 + 1) // table_id, section_syntax_indicator, private_indicator
	sis.SAPType = r.u32(2)
	r.skip(12 + 8) // section_length, protocol_version
	if r.flag() {
		return nil, errors.New("scte35: encrypted sections are not supported")
	}
	r.skip(6)
	sis.PTSAdjustment = r.u64(33)
	r.skip(8) // cw_index
	sis.Tier = r.u32(12)
	cmdLen := int(r.u32(12))
	cmdType := r.u32(8)

	body := data[headerLen : n-4]
	cmd, used, err := decodeCommand(cmdType, body, cmdLen)
	if err != nil {
		return nil, fmt.Errorf("scte35: command 0x%02X: %w", cmdType, err)
	}
	sis.SpliceCommand = cmd

	rest := body[used:]
	if len(rest) < 2 {
		return nil, ErrShort
	}
	loop := int(binary.BigEndian.Uint16(rest))
	if 2+loop > len(rest) {
		return nil, ErrShort
	}
	sis.SpliceDescriptors, err = decodeDescriptors(rest[2 : 2+loop])
	if err != nil {
		return nil, err
	}
	return sis, nil
}

// decodeCommand decodes the command at the start of body. A length of
// 0xFFF is the legacy "unspecified" value; the command's own syntax then
// determines how many bytes it used.
func decodeCommand(typ uint32, body []byte, length int) (SpliceCommand, int, error) {
	if length != 0xFFF {
		if length > len(body) {
			return nil, 0, ErrShort
		}
		body = body[:length]
	}

	var cmd SpliceCommand
	switch typ {
	case SpliceNullType:
		cmd = &SpliceNull{}
	case SpliceInsertType:
		cmd = &SpliceInsert{}
	case TimeSignalType:
		cmd = &TimeSignal{}
	default:
		if length == 0xFFF {
			return nil, 0, errors.New("unknown command without length")
		}
		cmd = &UnknownCommand{CommandType: typ}
	}

	r := newReader(body)
	cmd.decode(r)
	if err := r.err(); err != nil {
		return nil, 0, err
	}
	if length == 0xFFF {
		return cmd, r.consumed(), nil
	}
	return cmd, length, nil
}

// Encode serializes the section, computing lengths and the CRC_32. A nil
// command is written as splice_null.
func (sis *SpliceInfoSection) Encode() ([]byte, error) {
	cmd := sis.SpliceCommand
	if cmd == nil {
		cmd = &SpliceNull{}
	}
	cmdBytes, err := encodeBits(cmd.encode)
	if err != nil {
		return nil, err
	}
	descBytes, err := sis.SpliceDescriptors.encode()
	if err != nil {
		return nil, err
	}

	sectionLen := headerLen - 3 + len(cmdBytes) + 2 + len(descBytes) + 4
	if sectionLen > 0xFFF-3 {
		return nil, fmt.Errorf("scte35: section length %d too large", sectionLen)
	}
	out, err := encodeBits(func(w writer) {
		w.u(tableID, 8)
		w.flag(false) // section_syntax_indicator
		w.flag(false) // private_indicator
		w.u(uint64(sis.SAPType), 2)
		w.u(uint64(sectionLen), 12)
		w.u(0, 8) // protocol_version
		w.flag(false)
		w.u(0, 6)
		w.u(sis.PTSAdjustment&ptsMask, 33)
		w.u(0, 8) // cw_index
		w.u(uint64(sis.Tier), 12)
		w.u(uint64(len(cmdBytes)), 12)
		w.u(uint64(cmd.Type()), 8)
	})
	if err != nil {
		return nil, err
	}
	out = append(out, cmdBytes...)
	out = binary.BigEndian.AppendUint16(out, uint16(len(descBytes)))
	out = append(out, descBytes...)
	return binary.BigEndian.AppendUint32(out, mpegts.CRC32(out)), nil
}

// SplicePTS returns the splice time of a splice_insert or time_signal with
// pts_adjustment applied, in 90 kHz units.
func (sis *SpliceInfoSection) SplicePTS() (uint64, bool) {
	var st SpliceTime
	switch cmd := sis.SpliceCommand.(type) {
	case *SpliceInsert:
		st = cmd.SpliceTime
	case *TimeSignal:
		st = cmd.SpliceTime
	}
	if st.PTSTime == nil {
		return 0, false
	}
	return (*st.PTSTime + sis.PTSAdjustment) & ptsMask, true
}

// Name describes the section by its first segmentation descriptor or,
// lacking one, by its command.
func (sis *SpliceInfoSection) Name() string {
	for _, d := range sis.SpliceDescriptors {
		if sd, ok := d.(*SegmentationDescriptor); ok {
			return sd.Name()
		}
	}
	switch cmd := sis.SpliceCommand.(type) {
	case *SpliceInsert:
		switch {
		case cmd.SpliceEventCancelIndicator:
			return "Splice Cancel"
		case cmd.OutOfNetworkIndicator:
			return "Splice Out"
		default:
			return "Splice In"
		}
	case *TimeSignal:
		return "Time Signal"
	case *SpliceNull:
		return "Splice Null"
	}
	return "Unknown"
}
