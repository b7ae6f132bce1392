// Package mpegts parses MPEG transport streams into PSI tables and PES
// packets. It is pull based: callers ask the Demuxer for the next unit and
// may Reset it after repositioning the underlying reader.
package mpegts

// Packet is one transport stream packet with its payload copied out.
type Packet struct {
	Header  PacketHeader
	Payload []byte
	// Pos is the byte offset of the packet in the input, counted from the
	// last Reset.
	Pos int64
}

// PacketHeader holds the transport header fields the demuxer acts on.
type PacketHeader struct {
	PID                       uint16
	ContinuityCounter         uint8
	HasAdaptationField        bool
	HasPayload                bool
	PayloadUnitStartIndicator bool
	TransportErrorIndicator   bool
	DiscontinuityIndicator    bool
	RandomAccessIndicator     bool
}

// DemuxerData is one parsed unit. Exactly one of PAT, PMT or PES is set.
type DemuxerData struct {
	FirstPacket *Packet
	PAT         *PATData
	PMT         *PMTData
	PES         *PESData
}

type PATData struct {
	TransportStreamID uint16
	Programs          []*PATProgram
}

type PATProgram struct {
	ProgramMapID  uint16
	ProgramNumber uint16
}

type PMTData struct {
	ProgramNumber     uint16
	Version           uint8
	PCRPID            uint16
	ElementaryStreams []*PMTElementaryStream
}

// PMTElementaryStream describes one elementary stream of a program.
type PMTElementaryStream struct {
	ElementaryPID uint16
	StreamType    uint8
	// Language is the ISO 639 code from the language descriptor, if any.
	Language string
	// Registration is the format identifier of a registration descriptor
	// (e.g. "CUEI" for SCTE-35), if any.
	Registration string
}

type PESData struct {
	Data   []byte
	Header *PESHeader
}

type PESHeader struct {
	OptionalHeader *PESOptionalHeader
	StreamID       uint8
}

type PESOptionalHeader struct {
	DataAlignment bool
	PTS           *ClockReference
	DTS           *ClockReference
}

// ClockReference holds a 33-bit timestamp in 90 kHz units.
type ClockReference struct {
	Base int64
}

// Seconds converts the timestamp to seconds.
func (c *ClockReference) Seconds() float64 {
	return float64(c.Base) / 90000
}

// PacketsParser intercepts the packets accumulated for a PID before the
// standard parsing. When skip is true the demuxer returns ds as is.
type PacketsParser func(ps []*Packet) (ds []*DemuxerData, skip bool, err error)

// Stream types found in PMTs.
const (
	StreamTypeMPEG1Audio = 0x03
	StreamTypeMPEG2Audio = 0x04
	StreamTypePrivate    = 0x06
	StreamTypeAAC        = 0x0F
	StreamTypeLATM       = 0x11
	StreamTypeH264       = 0x1B
	StreamTypeH265       = 0x24
	StreamTypeAC3        = 0x81
	StreamTypeSCTE35     = 0x86
)
